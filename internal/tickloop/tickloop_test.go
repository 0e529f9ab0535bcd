package tickloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeKeeper struct {
	beats, time_     int32
	bpm              float32
	deck             uint8
	newBeat, newTime bool
	newBPM, newDeck  bool
	newTrack         bool
	ticks            int
}

func (k *fakeKeeper) Tick(delta time.Duration)     { k.ticks++ }
func (k *fakeKeeper) MasterBeats() int32           { return k.beats }
func (k *fakeKeeper) MasterTime() int32            { return k.time_ }
func (k *fakeKeeper) MasterBPM() float32           { return k.bpm }
func (k *fakeKeeper) MasterDeckIndex() uint8       { return k.deck }
func (k *fakeKeeper) ConsumeNewBeat() bool         { return consumeFlag(&k.newBeat) }
func (k *fakeKeeper) ConsumeNewTime() bool         { return consumeFlag(&k.newTime) }
func (k *fakeKeeper) ConsumeNewTrack() bool        { return consumeFlag(&k.newTrack) }
func (k *fakeKeeper) ConsumeNewBPM() bool          { return consumeFlag(&k.newBPM) }
func (k *fakeKeeper) ConsumeNewMasterDeck() bool   { return consumeFlag(&k.newDeck) }

func consumeFlag(f *bool) bool {
	v := *f
	*f = false
	return v
}

type fakeTrack struct{ title, artist, path string }

func (t *fakeTrack) TrackTitle() string      { return t.title }
func (t *fakeTrack) TrackArtist() string     { return t.artist }
func (t *fakeTrack) TrackFolderPath() string { return t.path }

type recordingSink struct {
	calls []string
}

func (s *recordingSink) SendTime(ms int32)         { s.calls = append(s.calls, "time") }
func (s *recordingSink) SendBPM(bpm float32)       { s.calls = append(s.calls, "bpm") }
func (s *recordingSink) SendBeat(beat int32)       { s.calls = append(s.calls, "beat") }
func (s *recordingSink) SendTrackTitle(t string)   { s.calls = append(s.calls, "title") }
func (s *recordingSink) SendTrackArtist(a string)  { s.calls = append(s.calls, "artist") }
func (s *recordingSink) SendTrackPath(p string)    { s.calls = append(s.calls, "path") }
func (s *recordingSink) SendMasterDeck(i uint8)    { s.calls = append(s.calls, "deck") }

type fakeBearer struct{ n int }

func (b *fakeBearer) UpdateAPIBearer() { b.n++ }

type fakeKeys struct {
	queue []byte
}

func (k *fakeKeys) Poll() (byte, bool) {
	if len(k.queue) == 0 {
		return 0, false
	}
	b := k.queue[0]
	k.queue = k.queue[1:]
	return b, true
}

func TestLoop_DispatchesOnlyConsumedEdges(t *testing.T) {
	keeper := &fakeKeeper{newTime: true, newBPM: true}
	track := &fakeTrack{}
	sink := &recordingSink{}

	l := New(keeper, track, nil, nil, []Route{{Sink: sink, Events: AllEvents}}, Config{RateHz: 60}, nil)
	l.step(0)

	assert.Equal(t, []string{"time", "bpm"}, sink.calls)
}

func TestLoop_TrackEdgeEmitsAllThreeTrackAddresses(t *testing.T) {
	keeper := &fakeKeeper{newTrack: true}
	track := &fakeTrack{title: "T", artist: "A", path: "P"}
	sink := &recordingSink{}

	l := New(keeper, track, nil, nil, []Route{{Sink: sink, Events: AllEvents}}, Config{RateHz: 60}, nil)
	l.step(0)

	assert.Equal(t, []string{"title", "artist", "path"}, sink.calls)
}

func TestLoop_SplitDestinationRoutesOnlyTheirSubset(t *testing.T) {
	keeper := &fakeKeeper{newTime: true, newBeat: true}
	track := &fakeTrack{}
	timeSink := &recordingSink{}
	beatSink := &recordingSink{}

	routes := []Route{
		{Sink: timeSink, Events: EventTime},
		{Sink: beatSink, Events: EventBeat},
	}

	l := New(keeper, track, nil, nil, routes, Config{RateHz: 60}, nil)
	l.step(0)

	assert.Equal(t, []string{"time"}, timeSink.calls)
	assert.Equal(t, []string{"beat"}, beatSink.calls)
}

func TestLoop_BearerRefreshesOnConfiguredCadence(t *testing.T) {
	keeper := &fakeKeeper{}
	bearer := &fakeBearer{}

	l := New(keeper, &fakeTrack{}, bearer, nil, nil, Config{RateHz: 60, BearerRefreshEvery: 3}, nil)

	l.step(0)
	l.step(0)
	assert.Equal(t, 0, bearer.n)

	l.step(0)
	assert.Equal(t, 1, bearer.n)
}

func TestLoop_QuitKeystrokeStopsTheLoop(t *testing.T) {
	keeper := &fakeKeeper{}
	keys := &fakeKeys{queue: []byte{'c'}}

	l := New(keeper, &fakeTrack{}, nil, keys, nil, Config{RateHz: 60}, nil)
	l.step(0)

	assert.True(t, l.quit)
}

func TestLoop_ResendKeystrokeReemitsTrackMetadata(t *testing.T) {
	keeper := &fakeKeeper{}
	track := &fakeTrack{title: "T", artist: "A", path: "P"}
	sink := &recordingSink{}
	keys := &fakeKeys{queue: []byte{'r'}}

	l := New(keeper, track, nil, keys, []Route{{Sink: sink, Events: AllEvents}}, Config{RateHz: 60}, nil)
	l.step(0)

	assert.Equal(t, []string{"title", "artist", "path"}, sink.calls)
}
