// Package tickloop drives the pipeline at a configured frequency: refresh
// the beat keeper, refresh the bearer token on its own slower cadence,
// dispatch edge events to one or more OSC sinks, poll the keystroke side
// channel, sleep the remainder of the period.
package tickloop

import (
	"time"

	"github.com/charmbracelet/log"
)

// Keeper is the subset of beatkeeper.Keeper the loop drives. An interface
// here keeps this package testable with a fake at full tick-loop speed,
// without a real process binding.
type Keeper interface {
	Tick(delta time.Duration)
	MasterBeats() int32
	MasterTime() int32
	MasterBPM() float32
	MasterDeckIndex() uint8
	ConsumeNewBeat() bool
	ConsumeNewTime() bool
	ConsumeNewTrack() bool
	ConsumeNewBPM() bool
	ConsumeNewMasterDeck() bool
}

// TrackMetadata is the subset of beatkeeper.Keeper needed to re-emit track
// info on a new_track edge or an operator-requested resend.
type TrackMetadata interface {
	TrackTitle() string
	TrackArtist() string
	TrackFolderPath() string
}

// BearerRefresher re-reads the bearer-token buffer; implemented by
// rekordbox.Snapshot. A nil refresher simply disables the periodic
// refresh (e.g. in fallback phase mode, where there's no process to read
// a bearer token from).
type BearerRefresher interface {
	UpdateAPIBearer()
}

// EventSink is anything that can render the seven OSC addresses named in
// the emitter contract. oscout.Emitter implements it directly.
type EventSink interface {
	SendTime(timeMS int32)
	SendBPM(bpm float32)
	SendBeat(beat int32)
	SendTrackTitle(title string)
	SendTrackArtist(artist string)
	SendTrackPath(path string)
	SendMasterDeck(deckIndex uint8)
}

// EventKind is a bitmask selecting which of the seven OSC addresses a Route
// should receive. A split-destination deployment is two Routes over two
// Emitters, each with a different mask — configuration, not a distinct
// wire protocol.
type EventKind uint8

const (
	EventTime EventKind = 1 << iota
	EventBPM
	EventBeat
	EventTrack
	EventDeck
)

// AllEvents is the mask a single-destination deployment uses.
const AllEvents = EventTime | EventBPM | EventBeat | EventTrack | EventDeck

// Route pairs a sink with the subset of events it should receive.
type Route struct {
	Sink   EventSink
	Events EventKind
}

// Keystrokes is the keystroke side channel; implemented by keyboard.Channel.
type Keystrokes interface {
	Poll() (byte, bool)
}

// Config configures a Loop's cadence.
type Config struct {
	// RateHz is the tick frequency; 0 defaults to 60.
	RateHz int
	// BearerRefreshEvery is how many ticks elapse between bearer-token
	// refreshes; 0 defaults to 5*RateHz, per the component design.
	BearerRefreshEvery int
}

func (c Config) rate() int {
	if c.RateHz <= 0 {
		return 60
	}
	return c.RateHz
}

func (c Config) bearerRefreshEvery() int {
	if c.BearerRefreshEvery > 0 {
		return c.BearerRefreshEvery
	}
	return 5 * c.rate()
}

// Loop owns the tick cadence and fans edge events out to its routes.
type Loop struct {
	keeper  Keeper
	track   TrackMetadata
	bearer  BearerRefresher
	routes  []Route
	keys    Keystrokes
	cfg     Config
	log     *log.Logger
	tickNum uint64
	quit    bool
}

// New builds a Loop. bearer and keys may be nil (fallback mode / headless
// operation respectively).
func New(keeper Keeper, track TrackMetadata, bearer BearerRefresher, keys Keystrokes, routes []Route, cfg Config, logger *log.Logger) *Loop {
	if logger == nil {
		logger = log.Default()
	}

	return &Loop{keeper: keeper, track: track, bearer: bearer, routes: routes, keys: keys, cfg: cfg, log: logger}
}

// Run drives the loop until Stop is called (via the 'c' keystroke) or
// aliveCheck reports the target process is gone. aliveCheck may be nil,
// in which case the loop only stops on keystroke.
func (l *Loop) Run(aliveCheck func() bool) {
	period := time.Second / time.Duration(l.cfg.rate())
	last := time.Now()

	for !l.quit {
		if aliveCheck != nil && !aliveCheck() {
			l.log.Error("target process handle lost, stopping")
			return
		}

		now := time.Now()
		delta := now.Sub(last)
		last = now

		l.step(delta)

		elapsed := time.Since(now)
		if remaining := period - elapsed; remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

// Stop requests the loop exit after its current iteration.
func (l *Loop) Stop() { l.quit = true }

func (l *Loop) step(delta time.Duration) {
	l.keeper.Tick(delta)
	l.tickNum++

	if l.bearer != nil && l.tickNum%uint64(l.cfg.bearerRefreshEvery()) == 0 {
		l.bearer.UpdateAPIBearer()
	}

	l.dispatchEdges()
	l.pollKeystrokes()
}

func (l *Loop) dispatchEdges() {
	if l.keeper.ConsumeNewTime() {
		l.fanOut(EventTime, func(s EventSink) { s.SendTime(l.keeper.MasterTime()) })
	}

	if l.keeper.ConsumeNewBPM() {
		l.fanOut(EventBPM, func(s EventSink) { s.SendBPM(l.keeper.MasterBPM()) })
	}

	if l.keeper.ConsumeNewBeat() {
		l.fanOut(EventBeat, func(s EventSink) { s.SendBeat(l.keeper.MasterBeats()) })
	}

	if l.keeper.ConsumeNewMasterDeck() {
		l.fanOut(EventDeck, func(s EventSink) { s.SendMasterDeck(l.keeper.MasterDeckIndex()) })
	}

	if l.keeper.ConsumeNewTrack() {
		l.emitTrack()
	}
}

func (l *Loop) emitTrack() {
	l.fanOut(EventTrack, func(s EventSink) {
		s.SendTrackTitle(l.track.TrackTitle())
		s.SendTrackArtist(l.track.TrackArtist())
		s.SendTrackPath(l.track.TrackFolderPath())
	})
}

// ResendTrack re-emits the current cached master-track metadata, for the
// 'r' keystroke, without waiting for a fresh track-change edge.
func (l *Loop) ResendTrack() {
	if l.track == nil {
		return
	}
	l.emitTrack()
}

func (l *Loop) fanOut(kind EventKind, emit func(EventSink)) {
	for _, r := range l.routes {
		if r.Events&kind != 0 {
			emit(r.Sink)
		}
	}
}

func (l *Loop) pollKeystrokes() {
	if l.keys == nil {
		return
	}

	for {
		b, ok := l.keys.Poll()
		if !ok {
			return
		}

		switch b {
		case 'c':
			l.log.Info("quit requested")
			l.Stop()
		case 'r':
			l.log.Info("resending master track metadata")
			l.ResendTrack()
		}
	}
}
