package player

import (
	"context"
	"math"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cbegin/pattrns-go/internal/audio"
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/sequencer"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

// DefaultPreload is how far the scheduler runs ahead of the output. Real
// event latency is twice the preload.
const DefaultPreload = 500 * time.Millisecond

const maxSleep = 100 * time.Millisecond

type Option func(*SamplePlayer)

func WithLogger(logger *zap.Logger) Option {
	return func(p *SamplePlayer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithNewNoteAction(action NewNoteAction) Option {
	return func(p *SamplePlayer) {
		p.newNoteAction = action
	}
}

// WithSampleRootNote sets the note at which samples play at their original speed.
func WithSampleRootNote(note event.Note) Option {
	return func(p *SamplePlayer) {
		p.rootNote = note
	}
}

func WithPreload(preload time.Duration) Option {
	return func(p *SamplePlayer) {
		if preload > 0 {
			p.preload = preload
		}
	}
}

// WithShowEvents logs every played pattern event at info level.
func WithShowEvents(show bool) Option {
	return func(p *SamplePlayer) {
		p.showEvents = show
	}
}

// WithSleep replaces the pacing sleep. The function must return early when ctx is done.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(p *SamplePlayer) {
		p.sleep = sleep
	}
}

type playingNote struct {
	voice   audio.VoiceID
	note    event.Note
	stopped bool
	stopAt  uint64
}

// stopsBefore reports whether a stop is already scheduled at or before t.
func (n *playingNote) stopsBefore(t uint64) bool {
	return n.stopped && n.stopAt <= t
}

// SamplePlayer schedules the events of a Sequence onto a Backend, running a
// bounded preload window ahead of the audible output position.
//
// A SamplePlayer is not safe for concurrent use. Run it on one goroutine and
// hand new sequences to that goroutine.
type SamplePlayer struct {
	backend       Backend
	pool          *SamplePool
	logger        *zap.Logger
	playing       []map[int]*playingNote
	newNoteAction NewNoteAction
	rootNote      event.Note
	preload       time.Duration
	showEvents    bool
	sleep         func(ctx context.Context, d time.Duration)
	origin        uint64
	emitted       uint64
}

func NewSamplePlayer(backend Backend, pool *SamplePool, opts ...Option) *SamplePlayer {
	p := &SamplePlayer{
		backend:       backend,
		pool:          pool,
		logger:        zap.NewNop(),
		newNoteAction: DefaultNewNoteAction,
		rootNote:      event.NoteC5,
		preload:       DefaultPreload,
		sleep:         sleepContext,
		origin:        backend.OutputPosition(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *SamplePlayer) Backend() Backend  { return p.backend }
func (p *SamplePlayer) Pool() *SamplePool { return p.pool }

func (p *SamplePlayer) SampleRate() uint32 { return p.backend.SampleRate() }

// OutputSuspended reports whether the output device currently is not consuming frames.
func (p *SamplePlayer) OutputSuspended() bool { return p.backend.Suspended() }

func (p *SamplePlayer) NewNoteAction() NewNoteAction          { return p.newNoteAction }
func (p *SamplePlayer) SetNewNoteAction(action NewNoteAction) { p.newNoteAction = action }
func (p *SamplePlayer) SampleRootNote() event.Note            { return p.rootNote }
func (p *SamplePlayer) SetSampleRootNote(note event.Note)     { p.rootNote = note }
func (p *SamplePlayer) ShowEvents() bool                      { return p.showEvents }
func (p *SamplePlayer) SetShowEvents(show bool)               { p.showEvents = show }

// Origin is the output frame position at which sequence time 0 plays.
func (p *SamplePlayer) Origin() uint64 { return p.origin }

// Emitted is the sequence time up to which events have been scheduled.
func (p *SamplePlayer) Emitted() uint64 { return p.emitted }

// StopAllSources stops every voice and forgets all playing notes.
func (p *SamplePlayer) StopAllSources() {
	if err := p.backend.StopAll(); err != nil {
		p.logger.Warn("failed to stop all sources", zap.Error(err))
	}
	for _, notes := range p.playing {
		clear(notes)
	}
}

// StopSourcesInPatternSlot stops the voices started by the given slot.
func (p *SamplePlayer) StopSourcesInPatternSlot(slot int) {
	if slot < 0 || slot >= len(p.playing) {
		return
	}
	at := p.backend.OutputPosition()
	for _, n := range p.playing[slot] {
		// the voice may have finished already
		_ = p.backend.Stop(n.voice, at)
	}
	clear(p.playing[slot])
}

// Run plays seq until ctx is done.
func (p *SamplePlayer) Run(ctx context.Context, seq *sequencer.Sequence, reset bool) error {
	return p.RunUntil(ctx, nil, seq, reset, nil)
}

// RunUntil plays seq until ctx is done or stop returns true. Unless reset is
// set, playback continues from the previous run's position, and prev (which
// may be nil) is used to find the end of notes that are still sounding.
func (p *SamplePlayer) RunUntil(ctx context.Context, prev, seq *sequencer.Sequence, reset bool, stop func() bool) error {
	tb := seq.TimeBase()
	if reset || p.emitted == 0 {
		p.resetPlaybackPosition(seq)
		p.logger.Debug("reset playback position", zap.Uint64("origin", p.origin))
	} else {
		p.PrepareRunUntilTime(prev, seq, p.origin, p.emitted)
		p.logger.Debug("advanced sequence", zap.Float64("seconds", tb.SamplesToSeconds(p.emitted)))
	}
	return p.run(ctx, seq, stop)
}

// ResumeUntil continues seq, which must be the sequence of the previous run,
// from the emitted position. Sounding notes are left alone: seq still holds
// their note-offs.
func (p *SamplePlayer) ResumeUntil(ctx context.Context, seq *sequencer.Sequence, stop func() bool) error {
	if p.emitted == 0 {
		return p.RunUntil(ctx, nil, seq, true, stop)
	}
	return p.run(ctx, seq, stop)
}

func (p *SamplePlayer) run(ctx context.Context, seq *sequencer.Sequence, stop func() bool) error {
	tb := seq.TimeBase()
	// stop may consume what it reports, so it is asked until it fires once
	stopRequested := false
	stopped := func() bool {
		if ctx.Err() != nil {
			return true
		}
		if !stopRequested && stop != nil {
			stopRequested = stop()
		}
		return stopRequested
	}
	preload := p.preload.Seconds()
	for !stopped() {
		emitted := tb.SamplesToSeconds(p.emitted)
		played := tb.SamplesToSeconds(p.played())
		toEmit := played - emitted + 2*preload
		if toEmit >= preload || p.emitted == 0 {
			p.logger.Debug("emitting",
				zap.Float64("emitted", emitted),
				zap.Float64("played", played),
				zap.Float64("to_emit", toEmit))
			n := tb.SecondsToSamples(toEmit)
			p.RunUntilTime(seq, p.origin, p.emitted+n)
			p.emitted += n
			continue
		}
		wait := time.Duration((preload - toEmit) * float64(time.Second))
		for slept := time.Duration(0); slept < wait && !stopped(); {
			d := min(wait-slept, maxSleep)
			p.sleep(ctx, d)
			slept += d
		}
	}
	return ctx.Err()
}

func (p *SamplePlayer) played() uint64 {
	pos := p.backend.OutputPosition()
	if pos < p.origin {
		return 0
	}
	return pos - p.origin
}

func (p *SamplePlayer) resetPlaybackPosition(seq *sequencer.Sequence) {
	p.StopAllSources()
	p.resizeSlots(seq.PhraseSlotCount())
	p.origin = p.backend.OutputPosition()
	p.emitted = 0
}

func (p *SamplePlayer) resizeSlots(n int) {
	for len(p.playing) < n {
		p.playing = append(p.playing, make(map[int]*playingNote))
	}
	p.playing = p.playing[:n]
}

func (p *SamplePlayer) slot(i int) map[int]*playingNote {
	if i >= len(p.playing) {
		p.resizeSlots(i + 1)
	}
	return p.playing[i]
}

func (p *SamplePlayer) anyPlaying() bool {
	for _, notes := range p.playing {
		if len(notes) > 0 {
			return true
		}
	}
	return false
}

// PrepareRunUntilTime seeks seq to time and ends the notes that are still
// sounding. When prev is set it is run ahead, silently, for the longest
// pattern cycle of its active slots (at least 4 steps) to find the note-offs
// those notes would have received. Notes still unresolved after that are
// stopped at the end of the lookup window, or at time when prev is nil.
func (p *SamplePlayer) PrepareRunUntilTime(prev, seq *sequencer.Sequence, origin, time uint64) {
	if p.anyPlaying() {
		stopAt := origin + time
		if prev != nil {
			horizon := 0.0
			for _, pat := range prev.ActivePatterns() {
				if pat == nil {
					continue
				}
				horizon = max(horizon, pat.StepLength()*float64(max(pat.StepCount(), 4)))
			}
			lookup := time + uint64(math.Ceil(horizon))
			prev.ConsumeEventsUntilTime(lookup, func(slot int, ev event.PatternEvent) {
				p.handleNoteOffs(slot, ev, origin)
			})
			stopAt = origin + lookup
		}
		for _, notes := range p.playing {
			for _, n := range notes {
				if !n.stopped {
					_ = p.backend.Stop(n.voice, stopAt)
					n.stopped, n.stopAt = true, stopAt
				}
			}
		}
	}
	p.resizeSlots(seq.PhraseSlotCount())
	seq.AdvanceUntilTime(time)
}

// AdvanceUntilTime stops all sources and seeks seq without playing anything.
func (p *SamplePlayer) AdvanceUntilTime(seq *sequencer.Sequence, time uint64) {
	p.StopAllSources()
	seq.AdvanceUntilTime(time)
}

// RunUntilTime schedules the events of seq up to sequence time. origin is the
// output frame at which sequence time 0 plays.
func (p *SamplePlayer) RunUntilTime(seq *sequencer.Sequence, origin, time uint64) {
	tb := seq.TimeBase()
	seq.ConsumeEventsUntilTime(time, func(slot int, ev event.PatternEvent) {
		p.handlePatternEvent(slot, ev, tb, origin)
	})
}

// stopsNote reports whether ne ends the note playing on its voice.
func (p *SamplePlayer) stopsNote(ne *event.NoteEvent) bool {
	return ne.Note.IsNoteOff() ||
		(ne.Note.IsNoteOn() && ne.Glide == nil && p.newNoteAction.Kind != ActionContinue)
}

func (p *SamplePlayer) handleNoteOffs(slot int, ev event.PatternEvent, origin uint64) {
	if ev.Event == nil || ev.Event.IsParameterChange() {
		return
	}
	notes := p.slot(slot)
	for voice, ne := range ev.Event.Notes {
		if ne != nil && p.stopsNote(ne) {
			p.stopNote(notes, voice, noteEventTime(ev, ne, origin))
		}
	}
}

func (p *SamplePlayer) handlePatternEvent(slot int, ev event.PatternEvent, tb timebase.TimeBase, origin uint64) {
	if p.showEvents {
		text := "---"
		if ev.Event != nil {
			text = ev.Event.String()
		}
		p.logger.Info("event", zap.String("time", tb.Display(ev.Time)), zap.Int("slot", slot), zap.String("event", text))
	}

	notes := p.slot(slot)
	for voice, n := range notes {
		if n.stopped && n.stopAt < ev.Time+origin {
			delete(notes, voice)
		}
	}

	if ev.Event == nil || ev.Event.IsParameterChange() {
		return
	}
	for voice, ne := range ev.Event.Notes {
		if ne == nil {
			continue
		}
		at := noteEventTime(ev, ne, origin)
		if p.stopsNote(ne) {
			p.stopNote(notes, voice, at)
		}
		if !ne.Note.IsNoteOn() || ne.Instrument == nil {
			continue
		}
		if ne.Glide == nil || !p.playGlidedNote(notes, voice, ev, ne, at) {
			p.playNewNote(notes, slot, voice, ne, *ne.Instrument, at)
		}
	}
}

func (p *SamplePlayer) stopNote(notes map[int]*playingNote, voice int, at uint64) {
	n, ok := notes[voice]
	if !ok || n.stopsBefore(at) {
		return
	}
	// the voice may have finished already
	_ = p.backend.Stop(n.voice, at)
	n.stopped, n.stopAt = true, at
}

func (p *SamplePlayer) playGlidedNote(notes map[int]*playingNote, voice int, ev event.PatternEvent, ne *event.NoteEvent, at uint64) bool {
	n, ok := notes[voice]
	if !ok || n.stopsBefore(at) {
		return false
	}
	rate := GlideRate(max(*ne.Glide, 0), n.note, ne.Note, p.backend.SampleRate(), ev.Duration)
	err := multierr.Combine(
		p.backend.SetSpeed(n.voice, p.SpeedFromNote(ne.Note), rate, at),
		p.backend.SetVolume(n.voice, max(ne.Volume, 0), at),
		p.backend.SetPanning(n.voice, min(max(ne.Panning, -1), 1), at),
	)
	if err != nil {
		return false
	}
	n.note = ne.Note
	return true
}

func (p *SamplePlayer) playNewNote(notes map[int]*playingNote, slot, voice int, ne *event.NoteEvent, instrument event.InstrumentID, at uint64) {
	sample, err := p.pool.Sample(instrument)
	if err != nil {
		p.logger.Error("sample not found", zap.Uint32("instrument", uint32(instrument)))
		return
	}
	opts := audio.PlaybackOptions{
		Speed:   p.SpeedFromNote(ne.Note),
		Volume:  max(ne.Volume, 0),
		Panning: min(max(ne.Panning, -1), 1),
		FadeOut: p.newNoteAction.fadeOut(),
	}
	id, err := p.backend.Play(sample, opts, at, audio.PlaybackContext{Slot: slot, Voice: voice})
	if err != nil {
		p.logger.Warn("failed to play sample", zap.Uint32("instrument", uint32(instrument)), zap.Error(err))
		return
	}
	notes[voice] = &playingNote{voice: id, note: ne.Note}
}

// SpeedFromNote returns the playback speed for note, relative to the sample root note.
func (p *SamplePlayer) SpeedFromNote(note event.Note) float64 {
	midi := min(max(int(note)+60-int(p.rootNote), 0), 127)
	return math.Exp2(float64(midi-60) / 12)
}

// GlideRate converts a normalized glide into semitones per second: a glide
// of 1 reaches the target note within duration samples. Zero glides, equal
// notes and empty durations give +Inf, which jumps.
func GlideRate(glide float32, from, to event.Note, sampleRate uint32, duration uint64) float32 {
	semitones := float32(math.Abs(float64(int(to) - int(from))))
	if glide <= 0 || semitones == 0 || duration == 0 {
		return float32(math.Inf(1))
	}
	seconds := float32(float64(duration) / float64(sampleRate))
	return semitones / seconds / glide
}

func noteEventTime(ev event.PatternEvent, ne *event.NoteEvent, origin uint64) uint64 {
	delay := min(max(ne.Delay, 0), 1)
	return origin + ev.Time + uint64(delay*float32(ev.Duration))
}
