package player

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cbegin/pattrns-go/internal/audio"
	"github.com/cbegin/pattrns-go/internal/emitter"
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/sequencer"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

type call struct {
	op    string
	voice audio.VoiceID
	at    uint64
	speed float64
	glide float32
	opts  audio.PlaybackOptions
	ctx   audio.PlaybackContext
}

// recordingBackend records every scheduled command instead of rendering audio.
type recordingBackend struct {
	position  uint64
	suspended bool
	next      audio.VoiceID
	failSpeed bool
	calls     []call
}

func (b *recordingBackend) SampleRate() uint32     { return 44100 }
func (b *recordingBackend) OutputPosition() uint64 { return b.position }
func (b *recordingBackend) Suspended() bool        { return b.suspended }

func (b *recordingBackend) Play(_ *audio.Sample, opts audio.PlaybackOptions, at uint64, ctx audio.PlaybackContext) (audio.VoiceID, error) {
	b.next++
	b.calls = append(b.calls, call{op: "play", voice: b.next, at: at, opts: opts, ctx: ctx})
	return b.next, nil
}

func (b *recordingBackend) Stop(id audio.VoiceID, at uint64) error {
	b.calls = append(b.calls, call{op: "stop", voice: id, at: at})
	return nil
}

func (b *recordingBackend) SetSpeed(id audio.VoiceID, speed float64, glide float32, at uint64) error {
	if b.failSpeed {
		return audio.ErrVoiceNotFound
	}
	b.calls = append(b.calls, call{op: "speed", voice: id, at: at, speed: speed, glide: glide})
	return nil
}

func (b *recordingBackend) SetVolume(id audio.VoiceID, _ float32, at uint64) error {
	b.calls = append(b.calls, call{op: "volume", voice: id, at: at})
	return nil
}

func (b *recordingBackend) SetPanning(id audio.VoiceID, _ float32, at uint64) error {
	b.calls = append(b.calls, call{op: "panning", voice: id, at: at})
	return nil
}

func (b *recordingBackend) StopAll() error {
	b.calls = append(b.calls, call{op: "stopall"})
	return nil
}

func (b *recordingBackend) ops(op string) []call {
	var out []call
	for _, c := range b.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func testTimeBase(t *testing.T) timebase.TimeBase {
	t.Helper()
	tb, err := timebase.New(120, 4, 44100)
	if err != nil {
		t.Fatal(err)
	}
	return tb
}

func testPool() (*SamplePool, event.InstrumentID) {
	pool := NewSamplePool()
	id := pool.Insert(audio.NewSample("click", 44100, make([]float32, 64)))
	return pool, id
}

func noteEvent(n event.Note, instrument event.InstrumentID, edit func(*event.NoteEvent)) event.Event {
	ne := event.NewNoteEvent(n)
	ne.Instrument = &instrument
	if edit != nil {
		edit(&ne)
	}
	return event.NewNoteEvents(&ne)
}

// sequenceOf plays events on beats, with pulses cycling, in a single long phrase.
func sequenceOf(tb timebase.TimeBase, pulses []float64, repeats int, events ...event.Event) *sequencer.Sequence {
	pat := sequencer.NewStepPattern(tb, timebase.Beats(1), sequencer.NewFixedRhythm(pulses, repeats), emitter.NewFixed(events))
	phrase := sequencer.NewPhrase(tb, []sequencer.Slot{sequencer.PatternSlot(pat)}, timebase.Bars(1000))
	return sequencer.NewSequence(tb, []*sequencer.Phrase{phrase})
}

func TestGlideRate(t *testing.T) {
	inf := float32(math.Inf(1))
	cases := []struct {
		name     string
		glide    float32
		from, to event.Note
		duration uint64
		want     float32
	}{
		{"zero glide", 0, event.NoteC4, event.NoteC4 + 2, 44100, inf},
		{"same note", 1, event.NoteC4, event.NoteC4, 44100, inf},
		{"no duration", 1, event.NoteC4, event.NoteC4 + 2, 0, inf},
		{"full glide", 1, event.NoteC4, event.NoteC4 + 2, 44100, 2},
		{"downwards", 1, event.NoteC4 + 2, event.NoteC4, 44100, 2},
		{"half glide", 0.5, event.NoteC4, event.NoteC4 + 2, 44100, 4},
		{"short event", 1, event.NoteC4, event.NoteC4 + 12, 22050, 24},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := GlideRate(tc.glide, tc.from, tc.to, 44100, tc.duration); got != tc.want {
				t.Fatalf("GlideRate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSpeedFromNote(t *testing.T) {
	p := NewSamplePlayer(&recordingBackend{}, NewSamplePool())
	cases := map[event.Note]float64{
		event.NoteC5:      1,
		event.NoteC5 + 12: 2,
		event.NoteC4:      0.5,
		event.Note(127):   math.Exp2(float64(127-60) / 12),
	}
	for note, want := range cases {
		if got := p.SpeedFromNote(note); math.Abs(got-want) > 1e-12 {
			t.Fatalf("SpeedFromNote(%v) = %v, want %v", note, got, want)
		}
	}
	p.SetSampleRootNote(event.NoteC4)
	if got := p.SpeedFromNote(event.NoteC4); got != 1 {
		t.Fatalf("speed at custom root = %v, want 1", got)
	}
}

func TestRunUntilTimePlaysAndStopsNotes(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{}
	p := NewSamplePlayer(b, pool)
	seq := sequenceOf(tb, []float64{1}, -1,
		noteEvent(event.NoteC4, id, nil),
		noteEvent(event.NoteC4+4, id, nil))

	p.PrepareRunUntilTime(nil, seq, 1000, 0)
	p.RunUntilTime(seq, 1000, 2*22050)

	want := []call{
		{op: "play", voice: 1, at: 1000},
		{op: "stop", voice: 1, at: 23050},
		{op: "play", voice: 2, at: 23050},
	}
	if len(b.calls) != len(want) {
		t.Fatalf("got %d calls %+v, want %d", len(b.calls), b.calls, len(want))
	}
	for i, w := range want {
		got := b.calls[i]
		if got.op != w.op || got.voice != w.voice || got.at != w.at {
			t.Fatalf("call %d = %s v%d @%d, want %s v%d @%d", i, got.op, got.voice, got.at, w.op, w.voice, w.at)
		}
	}
	first := b.calls[0]
	if first.opts.Speed != 0.5 {
		t.Fatalf("speed of C4 = %v, want 0.5", first.opts.Speed)
	}
	if first.opts.FadeOut != 100*time.Millisecond {
		t.Fatalf("fade out = %v, want 100ms", first.opts.FadeOut)
	}
	if first.ctx != (audio.PlaybackContext{Slot: 0, Voice: 0}) {
		t.Fatalf("context = %+v, want slot 0 voice 0", first.ctx)
	}
}

func TestMissingSampleIsDropped(t *testing.T) {
	tb := testTimeBase(t)
	b := &recordingBackend{}
	p := NewSamplePlayer(b, NewSamplePool())
	seq := sequenceOf(tb, []float64{1}, -1, noteEvent(event.NoteC4, 42, nil))

	p.PrepareRunUntilTime(nil, seq, 0, 0)
	p.RunUntilTime(seq, 0, 4*22050)
	if len(b.calls) != 0 {
		t.Fatalf("got calls %+v for a missing sample, want none", b.calls)
	}
}

func TestNoteDelayAndVolume(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{}
	p := NewSamplePlayer(b, pool)
	seq := sequenceOf(tb, []float64{1}, -1, noteEvent(event.NoteC5, id, func(ne *event.NoteEvent) {
		ne.Delay = 0.5
		ne.Volume = 0.25
		ne.Panning = -0.5
	}))

	p.PrepareRunUntilTime(nil, seq, 100, 0)
	p.RunUntilTime(seq, 100, 1)
	plays := b.ops("play")
	if len(plays) != 1 {
		t.Fatalf("got %d plays, want 1", len(plays))
	}
	if plays[0].at != 100+11025 {
		t.Fatalf("delayed start = %d, want %d", plays[0].at, 100+11025)
	}
	if plays[0].opts.Volume != 0.25 || plays[0].opts.Panning != -0.5 || plays[0].opts.Speed != 1 {
		t.Fatalf("options = %+v", plays[0].opts)
	}
}

func TestContinueActionKeepsNotesPlaying(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{}
	p := NewSamplePlayer(b, pool, WithNewNoteAction(Continue()))
	seq := sequenceOf(tb, []float64{1}, -1, noteEvent(event.NoteC4, id, nil))

	p.PrepareRunUntilTime(nil, seq, 0, 0)
	p.RunUntilTime(seq, 0, 3*22050)
	if n := len(b.ops("stop")); n != 0 {
		t.Fatalf("got %d stops with continue action, want 0", n)
	}
	if n := len(b.ops("play")); n != 3 {
		t.Fatalf("got %d plays, want 3", n)
	}
}

func TestNoteOffFadesWithAction(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{}
	p := NewSamplePlayer(b, pool, WithNewNoteAction(Off(time.Second)))
	off := event.NewNoteEvent(event.NoteOff)
	seq := sequenceOf(tb, []float64{1}, -1, noteEvent(event.NoteC4, id, nil), event.NewNoteEvents(&off))

	p.PrepareRunUntilTime(nil, seq, 0, 0)
	p.RunUntilTime(seq, 0, 2*22050)
	plays, stops := b.ops("play"), b.ops("stop")
	if len(plays) != 1 || plays[0].opts.FadeOut != time.Second {
		t.Fatalf("plays = %+v, want one with 1s fade", plays)
	}
	if len(stops) != 1 || stops[0].at != 22050 {
		t.Fatalf("stops = %+v, want one at 22050", stops)
	}
}

func TestGlidedNoteRetunesVoice(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{}
	p := NewSamplePlayer(b, pool)
	glide := func(ne *event.NoteEvent) {
		g := float32(1)
		ne.Glide = &g
	}
	seq := sequenceOf(tb, []float64{1}, -1,
		noteEvent(event.NoteC4, id, nil),
		noteEvent(event.NoteC4+2, id, glide),
		noteEvent(event.NoteC4+2, id, glide))

	p.PrepareRunUntilTime(nil, seq, 0, 0)
	p.RunUntilTime(seq, 0, 3*22050)
	if n := len(b.ops("play")); n != 1 {
		t.Fatalf("got %d plays, want 1 glided voice", n)
	}
	if n := len(b.ops("stop")); n != 0 {
		t.Fatalf("got %d stops, want none for glided notes", n)
	}
	speeds := b.ops("speed")
	if len(speeds) != 2 {
		t.Fatalf("got %d speed changes, want 2", len(speeds))
	}
	// two semitones within half a second
	if speeds[0].at != 22050 || speeds[0].glide != 4 {
		t.Fatalf("first glide = %+v, want 4 semitones/s at 22050", speeds[0])
	}
	if want := math.Exp2(-10.0 / 12); math.Abs(speeds[0].speed-want) > 1e-12 {
		t.Fatalf("glide target speed = %v, want %v", speeds[0].speed, want)
	}
	// the tracked note moved to the glide target, so the next glide is a jump
	if !math.IsInf(float64(speeds[1].glide), 1) {
		t.Fatalf("second glide = %v, want +Inf", speeds[1].glide)
	}
}

func TestFailedGlideStartsNewNote(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{failSpeed: true}
	p := NewSamplePlayer(b, pool)
	seq := sequenceOf(tb, []float64{1}, -1,
		noteEvent(event.NoteC4, id, nil),
		noteEvent(event.NoteC4+2, id, func(ne *event.NoteEvent) {
			g := float32(1)
			ne.Glide = &g
		}))

	p.PrepareRunUntilTime(nil, seq, 0, 0)
	p.RunUntilTime(seq, 0, 2*22050)
	if n := len(b.ops("play")); n != 2 {
		t.Fatalf("got %d plays, want 2", n)
	}
}

func TestHotSwapStopsSoundingNotesOnce(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{}
	p := NewSamplePlayer(b, pool)
	off := event.NewNoteEvent(event.NoteOff)
	prev := sequenceOf(tb, []float64{1, 1}, -1, noteEvent(event.NoteC4, id, nil), event.NewNoteEvents(&off))
	next := sequenceOf(tb, []float64{1}, -1, noteEvent(event.NoteC5, id, nil))

	p.PrepareRunUntilTime(nil, prev, 0, 0)
	p.RunUntilTime(prev, 0, 50000)
	// voice 2 started at 44100 and is still sounding
	b.calls = nil

	p.PrepareRunUntilTime(prev, next, 0, 50000)
	stops := b.ops("stop")
	if len(stops) != 1 {
		t.Fatalf("got stops %+v, want exactly one", stops)
	}
	horizon := uint64(22050 * 4)
	if stops[0].voice != 2 || stops[0].at != 66150 || stops[0].at > 50000+horizon {
		t.Fatalf("stop = %+v, want voice 2 at its note-off 66150", stops[0])
	}
	if n := len(b.ops("play")); n != 0 {
		t.Fatalf("lookup played %d notes, want none", n)
	}

	b.calls = nil
	p.RunUntilTime(next, 0, 50000+22050)
	plays := b.ops("play")
	if len(plays) != 1 || plays[0].at != 66150 {
		t.Fatalf("next sequence plays = %+v, want one at 66150", plays)
	}
}

func TestHotSwapStopsUnresolvedNotesAtHorizon(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{}
	p := NewSamplePlayer(b, pool)
	// a single note which never receives an off
	prev := sequenceOf(tb, []float64{1}, 0, noteEvent(event.NoteC4, id, nil))
	next := sequenceOf(tb, []float64{1}, -1, noteEvent(event.NoteC5, id, nil))

	p.PrepareRunUntilTime(nil, prev, 0, 0)
	p.RunUntilTime(prev, 0, 1000)
	b.calls = nil

	p.PrepareRunUntilTime(prev, next, 0, 1000)
	stops := b.ops("stop")
	if len(stops) != 1 || stops[0].at != 1000+4*22050 {
		t.Fatalf("stops = %+v, want one at %d", stops, 1000+4*22050)
	}
}

func TestHotSwapWithoutPreviousStopsAtSwapTime(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{}
	p := NewSamplePlayer(b, pool)
	seq := sequenceOf(tb, []float64{1}, 0, noteEvent(event.NoteC4, id, nil))

	p.PrepareRunUntilTime(nil, seq, 500, 0)
	p.RunUntilTime(seq, 500, 1000)
	b.calls = nil

	p.PrepareRunUntilTime(nil, seq.Duplicate(), 500, 1000)
	stops := b.ops("stop")
	if len(stops) != 1 || stops[0].at != 1500 {
		t.Fatalf("stops = %+v, want one at 1500", stops)
	}
}

func TestRunPacesAgainstOutputPosition(t *testing.T) {
	tb := testTimeBase(t)
	b := &recordingBackend{position: 500}
	sleeps := 0
	p := NewSamplePlayer(b, NewSamplePool(), WithSleep(func(_ context.Context, d time.Duration) {
		sleeps++
		b.position += uint64(d.Milliseconds()) * 441 / 10
	}))
	seq := sequenceOf(tb, []float64{1}, -1, event.NewNoteEvents())

	err := p.RunUntil(context.Background(), nil, seq, true, func() bool { return sleeps >= 6 })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.Origin() != 500 {
		t.Fatalf("origin = %d, want 500", p.Origin())
	}
	// one second up front, then half a second after waiting half a second
	if got := p.Emitted(); got != 44100+22050 {
		t.Fatalf("emitted = %d, want %d", got, 44100+22050)
	}
	if b.calls[0].op != "stopall" {
		t.Fatalf("first call = %s, want stopall on reset", b.calls[0].op)
	}
}

func TestRunUntilStopsWhenStopConsumesRequest(t *testing.T) {
	tb := testTimeBase(t)
	b := &recordingBackend{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requests := make(chan struct{}, 1)
	sleeps := 0
	p := NewSamplePlayer(b, NewSamplePool(), WithSleep(func(context.Context, time.Duration) {
		sleeps++
		if sleeps == 1 {
			requests <- struct{}{}
		}
		if sleeps > 50 {
			cancel()
		}
	}))
	seq := sequenceOf(tb, []float64{1}, -1, event.NewNoteEvents())
	// reports a request only once, like a channel handing over a new sequence
	stop := func() bool {
		select {
		case <-requests:
			return true
		default:
			return false
		}
	}

	if err := p.RunUntil(ctx, nil, seq, true, stop); err != nil {
		t.Fatalf("run: %v, want a stop right after the request", err)
	}
	if sleeps != 1 {
		t.Fatalf("slept %d times, want 1", sleeps)
	}
}

func TestResumeUntilKeepsSoundingNotes(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{}
	p := NewSamplePlayer(b, pool, WithSleep(func(_ context.Context, d time.Duration) {
		b.position += uint64(d.Milliseconds()) * 441 / 10
	}))
	off := event.NewNoteEvent(event.NoteOff)
	// c4 held for 8 beats
	seq := sequenceOf(tb, []float64{1, 0, 0, 0, 0, 0, 0, 0}, -1, noteEvent(event.NoteC4, id, nil), event.NewNoteEvents(&off))

	ctx := context.Background()
	if err := p.RunUntil(ctx, nil, seq, true, func() bool { return p.Emitted() > 0 }); err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.Emitted() != 44100 {
		t.Fatalf("emitted = %d, want 44100 (beat 2)", p.Emitted())
	}
	b.calls = nil

	if err := p.ResumeUntil(ctx, seq, func() bool { return p.Emitted() >= 9*22050 }); err != nil {
		t.Fatalf("resume: %v", err)
	}
	stops := b.ops("stop")
	if len(stops) != 1 || stops[0].voice != 1 || stops[0].at != 8*22050 {
		t.Fatalf("stops = %+v, want voice 1 at its note-off %d", stops, 8*22050)
	}
	if n := len(b.ops("stopall")); n != 0 {
		t.Fatalf("resume stopped all voices %d times", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	tb := testTimeBase(t)
	b := &recordingBackend{}
	p := NewSamplePlayer(b, NewSamplePool())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	seq := sequenceOf(tb, []float64{1}, -1, event.NewNoteEvents())
	if err := p.Run(ctx, seq, true); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestStopSourcesInPatternSlot(t *testing.T) {
	tb := testTimeBase(t)
	pool, id := testPool()
	b := &recordingBackend{position: 7}
	p := NewSamplePlayer(b, pool)
	seq := sequenceOf(tb, []float64{1}, 0, noteEvent(event.NoteC4, id, nil))
	p.PrepareRunUntilTime(nil, seq, 0, 0)
	p.RunUntilTime(seq, 0, 1)

	p.StopSourcesInPatternSlot(0)
	p.StopSourcesInPatternSlot(5)
	stops := b.ops("stop")
	if len(stops) != 1 || stops[0].at != 7 {
		t.Fatalf("stops = %+v, want one at the output position", stops)
	}
	b.calls = nil
	p.PrepareRunUntilTime(nil, seq.Duplicate(), 0, 10)
	if len(b.calls) != 0 {
		t.Fatalf("slot still tracked notes after stop: %+v", b.calls)
	}
}

func TestParseNewNoteAction(t *testing.T) {
	cases := map[string]NewNoteAction{
		"continue": Continue(),
		"Stop":     Stop(),
		"off":      Off(time.Second),
		"":         Off(time.Second),
	}
	for in, want := range cases {
		got, err := ParseNewNoteAction(in, time.Second)
		if err != nil || got != want {
			t.Fatalf("ParseNewNoteAction(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseNewNoteAction("fade", 0); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if DefaultNewNoteAction != Off(100*time.Millisecond) {
		t.Fatalf("default action = %v, want off(100ms)", DefaultNewNoteAction)
	}
}
