// Package oscout implements the outbound half of the bridge: an OSC 1.0
// message encoder and a UDP socket that sends one encoded message per
// emit. Sends never block the caller's tick loop — errors (a closed
// socket, an unreachable destination) are logged and dropped, never
// returned up to whatever drove the emit.
package oscout

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"net"

	"github.com/charmbracelet/log"
)

// Emitter owns one UDP socket bound to a source address and sends to a
// fixed destination. A deployment that wants two independent destinations
// (e.g. two downstream renderers) simply constructs two Emitters on
// distinct source ports and routes events to each — that's configuration
// at the cmd layer, not a feature of this type.
type Emitter struct {
	conn *net.UDPConn
	dest *net.UDPAddr
	log  *log.Logger
}

// New binds a UDP socket at source and targets dest. An unresolvable
// address or a bind failure are the only errors this package returns; once
// bound, the Send methods never fail visibly.
func New(source, dest string, logger *log.Logger) (*Emitter, error) {
	srcAddr, err := net.ResolveUDPAddr("udp", source)
	if err != nil {
		return nil, fmt.Errorf("oscout: resolving source %q: %w", source, err)
	}

	destAddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("oscout: resolving destination %q: %w", dest, err)
	}

	conn, err := net.ListenUDP("udp", srcAddr)
	if err != nil {
		return nil, fmt.Errorf("oscout: binding %q: %w", source, err)
	}

	if logger == nil {
		logger = log.Default()
	}

	logger.Info("osc emitter bound", "source", source, "destination", dest)

	return &Emitter{conn: conn, dest: destAddr, log: logger}, nil
}

// Close releases the underlying socket.
func (e *Emitter) Close() error {
	return e.conn.Close()
}

// send encodes one OSC message and fires it at the destination. Any error
// — an unreachable destination, a transient OS error — is logged at debug
// level and otherwise swallowed.
func (e *Emitter) send(address string, arg oscArg) {
	buf, err := encodeMessage(address, arg)
	if err != nil {
		e.log.Debug("osc encode failed", "address", address, "err", err)
		return
	}

	if _, err := e.conn.WriteToUDP(buf, e.dest); err != nil {
		e.log.Debug("osc send failed", "address", address, "err", err)
	}
}

// SendTime emits /time/master, converting milliseconds to seconds.
func (e *Emitter) SendTime(timeMS int32) {
	e.send("/time/master", floatArg(float32(timeMS)/1000.0))
}

// SendBPM emits /bpm/master/current.
func (e *Emitter) SendBPM(bpm float32) {
	e.send("/bpm/master/current", floatArg(bpm))
}

// SendBeat emits /beat/master.
func (e *Emitter) SendBeat(beat int32) {
	e.send("/beat/master", intArg(beat))
}

// SendTrackTitle emits /track/master/title.
func (e *Emitter) SendTrackTitle(title string) {
	e.send("/track/master/title", stringArg(title))
}

// SendTrackArtist emits /track/master/artist.
func (e *Emitter) SendTrackArtist(artist string) {
	e.send("/track/master/artist", stringArg(artist))
}

// SendTrackPath emits /track/master/path.
func (e *Emitter) SendTrackPath(path string) {
	e.send("/track/master/path", stringArg(path))
}

// SendMasterDeck emits /deck/master.
func (e *Emitter) SendMasterDeck(deckIndex uint8) {
	e.send("/deck/master", intArg(int32(deckIndex)))
}

// oscArg is one OSC 1.0 argument: a type tag byte plus its encoded bytes.
type oscArg struct {
	tag   byte
	bytes []byte
}

func floatArg(v float32) oscArg {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(v))
	return oscArg{tag: 'f', bytes: buf[:]}
}

func intArg(v int32) oscArg {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return oscArg{tag: 'i', bytes: buf[:]}
}

func stringArg(v string) oscArg {
	return oscArg{tag: 's', bytes: padOSCString([]byte(v))}
}

// encodeMessage lays out an OSC 1.0 message: a padded address string, a
// padded type-tag string, then the single argument's bytes (already padded
// for strings; fixed 4 bytes for numerics, which need no extra padding).
func encodeMessage(address string, arg oscArg) ([]byte, error) {
	if len(address) == 0 || address[0] != '/' {
		return nil, fmt.Errorf("oscout: invalid address %q", address)
	}

	var buf bytes.Buffer

	buf.Write(padOSCString([]byte(address)))
	buf.Write(padOSCString([]byte{',', arg.tag}))
	buf.Write(arg.bytes)

	return buf.Bytes(), nil
}

// padOSCString NUL-terminates b and pads it to a multiple of 4 bytes, the
// framing every OSC string (address, type-tag string, string argument)
// uses.
func padOSCString(b []byte) []byte {
	padded := make([]byte, len(b)+1) // +1 for the mandatory terminating NUL
	copy(padded, b)

	for len(padded)%4 != 0 {
		padded = append(padded, 0)
	}

	return padded
}
