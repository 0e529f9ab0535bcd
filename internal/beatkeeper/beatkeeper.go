// Package beatkeeper turns the raw, directly-observed Rekordbox snapshot
// into edge-triggered events (new beat, new playback position, new master
// track) and a continuous beat-phase estimate that a downstream OSC
// consumer can render against, even between two integer-beat ticks.
package beatkeeper

import "time"

// fallbackBPM is the tempo beat_fraction advances against when the Keeper
// has no snapshot to consume — useful for driving a dependent UI before a
// target process is attached, or in a demo/test harness.
const fallbackBPM = 130.0

// undefinedMasterDeck mirrors rekordbox's sentinel; duplicated here so this
// package doesn't need to import rekordbox just for one constant.
const undefinedMasterDeck = 255

// TrackInfo is the resolved metadata for a master-track change.
type TrackInfo struct {
	Title      string
	Artist     string
	FolderPath string
}

// Resolver looks up display metadata for a track id, authenticated with a
// bearer token harvested from the target process. Implemented by
// internal/trackinfo.Client; defined here so beatkeeper depends on an
// interface, not the HTTP client's concrete type.
type Resolver interface {
	Resolve(trackID int32, bearer string) (*TrackInfo, error)
}

// Snapshot is the subset of rekordbox.Snapshot the Keeper consumes each
// tick. Declared as an interface so tests don't need a real process
// binding to exercise event derivation and phase estimation.
type Snapshot interface {
	Update()
	MasterBPMValue() float32
	MasterBPMOK() bool
	MasterBeatsValue() int32
	MasterBeatsOK() bool
	MasterTimeValue() int32
	MasterTimeOK() bool
	MasterDeckIndexValue() uint8
	DeckTrackID(deck int) int32
	Bearer() string
}

// Keeper reconstructs edge events and continuous phase from a stream of
// snapshots. A nil Snapshot puts it in fallback phase mode: beat_fraction
// still advances, at a fixed reference tempo, but no events are ever
// raised.
type Keeper struct {
	snapshot Snapshot
	resolver Resolver

	prevDeckIndex                  uint8
	prevDeck1Track, prevDeck2Track int32
	lastMasterTrack                int32
	masterTrackChanged             bool

	havePrevBeats bool
	prevBeats     int32
	havePrevTime  bool
	prevTime      int32
	havePrevBPM   bool
	prevBPM       float32

	beatFraction float32

	newBeat, newTime, newTrack, newBPM, newMasterDeck bool

	Title, Artist, FolderPath string
}

// New creates a Keeper over snapshot (nil for fallback mode) and resolver
// (nil if master-track metadata lookups should simply never fire).
func New(snapshot Snapshot, resolver Resolver) *Keeper {
	return &Keeper{
		snapshot:      snapshot,
		resolver:      resolver,
		prevDeckIndex: undefinedMasterDeck,
	}
}

// Tick advances the Keeper by wall-clock delta: refreshes the snapshot (if
// any), derives edge events, and integrates beat_fraction. It is meant to
// be called once per tick-loop iteration.
func (k *Keeper) Tick(delta time.Duration) {
	bpm := float32(fallbackBPM)

	if k.snapshot != nil {
		k.snapshot.Update()
		bpm = k.snapshot.MasterBPMValue()

		k.updateTrackIdentity()
		k.updateBeatAndTimeEdges()
		k.updateBPMEdge(bpm)
		k.resolveTrackIfChanged()
	}

	k.advancePhase(delta, bpm)
}

func (k *Keeper) updateTrackIdentity() {
	idx := k.snapshot.MasterDeckIndexValue()
	changed := false

	if idx != k.prevDeckIndex {
		if idx == 0 || idx == 1 {
			k.lastMasterTrack = k.snapshot.DeckTrackID(int(idx))
			changed = true
			k.newMasterDeck = true
		}
		k.prevDeckIndex = idx
	}

	if id := k.snapshot.DeckTrackID(0); id != k.prevDeck1Track && id > 0 {
		k.prevDeck1Track = id
		if idx == 0 {
			k.lastMasterTrack = id
			changed = true
		}
	}

	if id := k.snapshot.DeckTrackID(1); id != k.prevDeck2Track && id > 0 {
		k.prevDeck2Track = id
		if idx == 1 {
			k.lastMasterTrack = id
			changed = true
		}
	}

	k.masterTrackChanged = k.masterTrackChanged || changed
}

// updateBeatAndTimeEdges derives new_beat/new_time purely from values read
// successfully this tick — a failed read that falls back to a kept-last or
// zero value must never be mistaken for a genuine change.
func (k *Keeper) updateBeatAndTimeEdges() {
	if k.snapshot.MasterBeatsOK() {
		beats := k.snapshot.MasterBeatsValue()
		if !k.havePrevBeats || beats != k.prevBeats {
			k.beatFraction = 0
			k.newBeat = true
			k.prevBeats = beats
			k.havePrevBeats = true
		}
	}

	if k.snapshot.MasterTimeOK() {
		t := k.snapshot.MasterTimeValue()
		if !k.havePrevTime || t != k.prevTime {
			k.newTime = true
			k.prevTime = t
			k.havePrevTime = true
		}
	}
}

// updateBPMEdge derives new_bpm only from a tempo read that succeeded this
// tick. A cold-start chain-hop failure leaves MasterBPM at its fallback
// default; without this gate, havePrevBPM being false would fire an edge
// on the fallback value itself.
func (k *Keeper) updateBPMEdge(bpm float32) {
	if !k.snapshot.MasterBPMOK() {
		return
	}

	if !k.havePrevBPM || bpm != k.prevBPM {
		k.newBPM = true
		k.prevBPM = bpm
		k.havePrevBPM = true
	}
}

func (k *Keeper) resolveTrackIfChanged() {
	if !k.masterTrackChanged {
		return
	}
	k.masterTrackChanged = false

	if k.lastMasterTrack <= 0 || k.resolver == nil {
		return
	}

	info, err := k.resolver.Resolve(k.lastMasterTrack, k.snapshot.Bearer())
	if err != nil || info == nil {
		return
	}

	k.Title, k.Artist, k.FolderPath = info.Title, info.Artist, info.FolderPath
	k.newTrack = true
}

func (k *Keeper) advancePhase(delta time.Duration, bpm float32) {
	micros := float32(delta.Microseconds())
	k.beatFraction += micros * bpm / 60_000_000
	k.beatFraction = wrapUnit(k.beatFraction)
}

func wrapUnit(f float32) float32 {
	for f >= 1 {
		f -= 1
	}
	for f < 0 {
		f += 1
	}
	return f
}

// BeatFraction reports the continuous phase in [0,1) between beats.
func (k *Keeper) BeatFraction() float32 { return k.beatFraction }

// MasterBeats reports the last-derived master beat counter (0 in fallback
// mode, where there is no snapshot to derive it from).
func (k *Keeper) MasterBeats() int32 {
	if k.snapshot == nil {
		return 0
	}
	return k.snapshot.MasterBeatsValue()
}

// MasterTime reports the last-derived master playback position in
// milliseconds.
func (k *Keeper) MasterTime() int32 {
	if k.snapshot == nil {
		return 0
	}
	return k.snapshot.MasterTimeValue()
}

// MasterBPM reports the last-read master tempo.
func (k *Keeper) MasterBPM() float32 {
	if k.snapshot == nil {
		return fallbackBPM
	}
	return k.snapshot.MasterBPMValue()
}

// MasterDeckIndex reports the last-read master deck index.
func (k *Keeper) MasterDeckIndex() uint8 {
	if k.snapshot == nil {
		return undefinedMasterDeck
	}
	return k.snapshot.MasterDeckIndexValue()
}

// ConsumeNewBeat returns whether a new integer beat was observed since the
// last call, clearing the flag (single-shot, single-consumer).
func (k *Keeper) ConsumeNewBeat() bool { return consume(&k.newBeat) }

// ConsumeNewTime returns whether a new playback position was observed
// since the last call, clearing the flag.
func (k *Keeper) ConsumeNewTime() bool { return consume(&k.newTime) }

// ConsumeNewTrack returns whether a resolved master-track change is
// pending since the last call, clearing the flag.
func (k *Keeper) ConsumeNewTrack() bool { return consume(&k.newTrack) }

// ConsumeNewBPM returns whether the master tempo changed since the last
// call, clearing the flag.
func (k *Keeper) ConsumeNewBPM() bool { return consume(&k.newBPM) }

// ConsumeNewMasterDeck returns whether the master deck index changed to a
// defined value (0 or 1) since the last call, clearing the flag.
func (k *Keeper) ConsumeNewMasterDeck() bool { return consume(&k.newMasterDeck) }

// TrackTitle returns the cached master-track title (tickloop.TrackMetadata).
func (k *Keeper) TrackTitle() string { return k.Title }

// TrackArtist returns the cached master-track artist.
func (k *Keeper) TrackArtist() string { return k.Artist }

// TrackFolderPath returns the cached master-track folder path.
func (k *Keeper) TrackFolderPath() string { return k.FolderPath }

func consume(flag *bool) bool {
	v := *flag
	*flag = false
	return v
}
