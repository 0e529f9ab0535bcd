// Package rekordbox owns the attachment to a running Rekordbox process and
// reconstructs its observable playback state: tempo, position, beat grid
// and track identity for each deck, plus which deck is currently "master".
package rekordbox

import (
	"strings"
	"unicode/utf8"

	"github.com/rkbx-osc/bridge/internal/catalogue"
	"github.com/rkbx-osc/bridge/internal/procmem"
)

// defaultMasterBPM is the value the master_bpm field starts at and keeps
// until its pointer chain resolves and a read succeeds; a failed read
// after that keeps the last value read. (BeatKeeper's unbound fallback
// phase mode uses its own, different reference tempo.)
const defaultMasterBPM = 120.0

// undefinedMasterDeck is the sentinel masterdeck_index value meaning "no
// deck is currently authoritative." It must never be confused with "no
// change since the last tick" — Snapshot always writes the freshly-read
// value (or this sentinel on failure), and it is BeatKeeper's job to decide
// whether 255 means anything changed.
const undefinedMasterDeck = 255

// Snapshot holds the last-read values of every observed field plus the
// lazily-resolved pointer chain behind each one. Update reads every field
// once, tolerating per-field failure per the policy table: some fields
// keep their previous value on failure, others fall back to a fixed
// default.
type Snapshot struct {
	reader procmem.Reader
	base   uintptr
	bundle catalogue.Bundle

	ptrMasterBPM       procmem.ResolvedPointer[float32]
	ptrBar1            procmem.ResolvedPointer[int32]
	ptrBeat1           procmem.ResolvedPointer[int32]
	ptrBar2            procmem.ResolvedPointer[int32]
	ptrBeat2           procmem.ResolvedPointer[int32]
	ptrMasterDeckIndex procmem.ResolvedPointer[uint8]
	ptrDeck1Time       procmem.ResolvedPointer[int32]
	ptrDeck2Time       procmem.ResolvedPointer[int32]
	ptrDeck1TrackID    procmem.ResolvedPointer[int32]
	ptrDeck2TrackID    procmem.ResolvedPointer[int32]
	ptrAPIBearer       procmem.ResolvedPointer[[]byte]

	MasterBPM       float32
	Bar1, Beat1     int32
	Bar2, Beat2     int32
	MasterDeckIndex uint8
	Deck1Time       int32
	Deck2Time       int32
	Deck1TrackID    int32
	Deck2TrackID    int32
	APIBearer       string

	Beats1, Beats2 int32
	MasterBeats    int32
	MasterTime     int32

	// These record whether the master_bpm/master_beats/master_time values
	// above came from a read that actually succeeded *this* tick, as
	// opposed to a kept-last or failure-default value. BeatKeeper gates its
	// edge events on these so a transient read failure never masquerades
	// as a genuine change.
	bpmOK         bool
	masterBeatsOK bool
	masterTimeOK  bool
}

// New creates a snapshot anchored at base, reading through r according to
// bundle. MasterBPM starts at its failure-default so a tick loop started
// before the first successful read still has a sane tempo to integrate
// phase against.
func New(r procmem.Reader, base uintptr, bundle catalogue.Bundle) *Snapshot {
	return &Snapshot{
		reader:          r,
		base:            base,
		bundle:          bundle,
		MasterBPM:       defaultMasterBPM,
		MasterDeckIndex: undefinedMasterDeck,
	}
}

// Update re-resolves any pointer currently unresolved, reads every tracked
// field, and re-derives beats_k/master_beats/master_time. It never returns
// an error: a per-field read failure degrades only that field, per the
// error-handling design's soft-failure policy.
func (s *Snapshot) Update() {
	s.bpmOK = s.readFloat32(&s.ptrMasterBPM, s.bundle.MasterBPM, &s.MasterBPM)

	barBeatOK1 := s.readInt32(&s.ptrBar1, s.bundle.Bar1, &s.Bar1) &&
		s.readInt32(&s.ptrBeat1, s.bundle.Beat1, &s.Beat1)
	if barBeatOK1 {
		s.Beats1 = s.Bar1*4 + s.Beat1
	}

	barBeatOK2 := s.readInt32(&s.ptrBar2, s.bundle.Bar2, &s.Bar2) &&
		s.readInt32(&s.ptrBeat2, s.bundle.Beat2, &s.Beat2)
	if barBeatOK2 {
		s.Beats2 = s.Bar2*4 + s.Beat2
	}

	s.ptrMasterDeckIndex.Ensure(s.reader, s.base, s.bundle.MasterDeckIndex)
	if addr, ok := s.ptrMasterDeckIndex.Addr(); ok {
		if v, err := s.reader.ReadUint8(addr); err == nil {
			s.MasterDeckIndex = v
		} else {
			s.ptrMasterDeckIndex.Invalidate()
			s.MasterDeckIndex = undefinedMasterDeck
		}
	} else {
		s.MasterDeckIndex = undefinedMasterDeck
	}

	deck1TimeOK := s.readInt32OrZero(&s.ptrDeck1Time, s.bundle.Deck1Time, &s.Deck1Time)
	deck2TimeOK := s.readInt32OrZero(&s.ptrDeck2Time, s.bundle.Deck2Time, &s.Deck2Time)
	s.readInt32OrZero(&s.ptrDeck1TrackID, s.bundle.Deck1TrackID, &s.Deck1TrackID)
	s.readInt32OrZero(&s.ptrDeck2TrackID, s.bundle.Deck2TrackID, &s.Deck2TrackID)

	switch s.MasterDeckIndex {
	case 0:
		s.MasterBeats = s.Beats1
		s.MasterTime = s.Deck1Time
		s.masterBeatsOK = barBeatOK1
		s.masterTimeOK = deck1TimeOK
	case 1:
		s.MasterBeats = s.Beats2
		s.MasterTime = s.Deck2Time
		s.masterBeatsOK = barBeatOK2
		s.masterTimeOK = deck2TimeOK
	default:
		// Undefined: neither derived field is touched this tick, and
		// neither can have been freshly read for an undefined deck.
		s.masterBeatsOK = false
		s.masterTimeOK = false
	}
}

// MasterBPMFresh reports whether MasterBPM was read successfully on the
// most recent Update call, as opposed to holding its kept-last or
// failure-default value.
func (s *Snapshot) MasterBPMFresh() bool { return s.bpmOK }

// MasterBeatsFresh reports whether MasterBeats reflects a bar/beat read
// that succeeded on the most recent Update call for whichever deck is
// currently master.
func (s *Snapshot) MasterBeatsFresh() bool { return s.masterBeatsOK }

// MasterTimeFresh reports whether MasterTime reflects a deck_time read
// that succeeded on the most recent Update call for whichever deck is
// currently master.
func (s *Snapshot) MasterTimeFresh() bool { return s.masterTimeOK }

// readInt32 reads one int32 field, leaving *out at its previous value on
// failure, and reports whether the read succeeded.
func (s *Snapshot) readInt32(p *procmem.ResolvedPointer[int32], chain procmem.PointerChain, out *int32) bool {
	p.Ensure(s.reader, s.base, chain)

	addr, ok := p.Addr()
	if !ok {
		return false
	}

	v, err := s.reader.ReadInt32(addr)
	if err != nil {
		p.Invalidate()
		return false
	}

	*out = v
	return true
}

// readInt32OrZero reads one int32 field, falling back to 0 on failure
// (deck_time and track_id both use this policy), and reports whether the
// read succeeded this tick.
func (s *Snapshot) readInt32OrZero(p *procmem.ResolvedPointer[int32], chain procmem.PointerChain, out *int32) bool {
	ok := s.readInt32(p, chain, out)
	if !ok {
		*out = 0
	}

	return ok
}

// readFloat32 reads one float32 field, leaving *out at its previous value
// on failure, and reports whether the read succeeded.
func (s *Snapshot) readFloat32(p *procmem.ResolvedPointer[float32], chain procmem.PointerChain, out *float32) bool {
	p.Ensure(s.reader, s.base, chain)

	addr, ok := p.Addr()
	if !ok {
		return false
	}

	v, err := s.reader.ReadFloat32(addr)
	if err != nil {
		p.Invalidate()
		return false
	}

	*out = v
	return true
}

// bearerBufferLen is the fixed size of the bearer-token buffer in the
// target process, per the data model.
const bearerBufferLen = 64

// UpdateAPIBearer re-reads the bearer-token buffer and, on success,
// unconditionally overwrites APIBearer — this is a periodic refresh, not a
// per-tick field, so it is exposed separately from Update for the tick
// loop to call on its own cadence.
func (s *Snapshot) UpdateAPIBearer() {
	s.ptrAPIBearer.Ensure(s.reader, s.base, s.bundle.APIBearer)

	addr, ok := s.ptrAPIBearer.Addr()
	if !ok {
		return
	}

	buf, err := s.reader.ReadBytes(addr, bearerBufferLen)
	if err != nil {
		s.ptrAPIBearer.Invalidate()
		return
	}

	s.APIBearer = decodeBearer(buf)
}

// decodeBearer cuts buf at the first NUL byte, validates it as UTF-8
// (yielding an empty string on failure), and trims surrounding whitespace.
func decodeBearer(buf []byte) string {
	if i := indexNUL(buf); i >= 0 {
		buf = buf[:i]
	}

	if !utf8.Valid(buf) {
		return ""
	}

	return strings.TrimSpace(string(buf))
}

func indexNUL(buf []byte) int {
	for i, b := range buf {
		if b == 0 {
			return i
		}
	}

	return -1
}
