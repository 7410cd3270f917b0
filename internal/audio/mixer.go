package audio

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viterin/vek/vek32"
)

var (
	ErrVoiceNotFound = errors.New("voice not found")
	ErrNoSample      = errors.New("no sample to play")
)

// VoiceID identifies a playing sample voice in a Mixer.
type VoiceID uint64

// PlaybackContext tags a voice with the pattern slot and note column that
// started it. It is echoed back in StatusEvents.
type PlaybackContext struct {
	Slot  int
	Voice int
}

// PlaybackOptions are the initial voice settings.
type PlaybackOptions struct {
	Speed   float64
	Volume  float32
	Panning float32
	FadeOut time.Duration
}

type StatusKind int

const (
	VoiceStarted StatusKind = iota
	VoiceFinished
)

// StatusEvent is posted when a voice starts or finishes rendering.
type StatusEvent struct {
	Kind     StatusKind
	Voice    VoiceID
	Context  PlaybackContext
	Position uint64
}

type MixerOption func(*Mixer)

// WithStatus installs a channel for voice status events. Sends never block;
// events are dropped when the channel is full.
func WithStatus(ch chan<- StatusEvent) MixerOption {
	return func(m *Mixer) {
		m.status = ch
	}
}

// WithGain sets the master gain applied to every rendered buffer.
func WithGain(gain float32) MixerOption {
	return func(m *Mixer) {
		m.gain = gain
	}
}

// Mixer renders sample voices into an interleaved stereo float32 stream.
// All voice commands are stamped with an absolute output frame position and
// take effect exactly at that frame.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	position   atomic.Uint64
	suspended  atomic.Bool
	peak       atomic.Uint32
	voices     map[VoiceID]*voice
	order      []VoiceID
	nextID     VoiceID
	gain       float32
	status     chan<- StatusEvent
}

func NewMixer(sampleRate int, opts ...MixerOption) *Mixer {
	m := &Mixer{
		sampleRate: sampleRate,
		voices:     make(map[VoiceID]*voice),
		gain:       1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mixer) SampleRate() uint32 { return uint32(m.sampleRate) }

// OutputPosition returns the number of frames rendered so far.
func (m *Mixer) OutputPosition() uint64 { return m.position.Load() }

func (m *Mixer) Suspended() bool         { return m.suspended.Load() }
func (m *Mixer) SetSuspended(value bool) { m.suspended.Store(value) }

// Peak returns the absolute peak of the last rendered buffer.
func (m *Mixer) Peak() float32 { return math.Float32frombits(m.peak.Load()) }

func (m *Mixer) SetGain(gain float32) {
	m.mu.Lock()
	m.gain = gain
	m.mu.Unlock()
}

// ActiveVoices returns the number of voices that are scheduled or playing.
func (m *Mixer) ActiveVoices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Play schedules sample to start at output frame at. Times in the past start
// with the next rendered frame.
func (m *Mixer) Play(sample *Sample, opts PlaybackOptions, at uint64, ctx PlaybackContext) (VoiceID, error) {
	if sample == nil || sample.Len() == 0 {
		return 0, ErrNoSample
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	v := newVoice(id, sample, m.sampleRate, opts, at, ctx)
	m.voices[id] = v
	m.order = append(m.order, id)
	return id, nil
}

// Stop fades out the voice at frame at. An earlier stop time wins.
func (m *Mixer) Stop(id VoiceID, at uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.voices[id]
	if !ok {
		return ErrVoiceNotFound
	}
	if at < v.stopAt {
		v.stopAt = at
	}
	return nil
}

// SetSpeed changes the playback speed at frame at, gliding with glide
// semitones per second. An infinite or non-positive glide jumps.
func (m *Mixer) SetSpeed(id VoiceID, speed float64, glide float32, at uint64) error {
	return m.schedule(id, change{at: at, kind: changeSpeed, value: speed, glide: glide})
}

func (m *Mixer) SetVolume(id VoiceID, volume float32, at uint64) error {
	return m.schedule(id, change{at: at, kind: changeVolume, value: float64(volume)})
}

func (m *Mixer) SetPanning(id VoiceID, panning float32, at uint64) error {
	return m.schedule(id, change{at: at, kind: changePanning, value: float64(panning)})
}

func (m *Mixer) schedule(id VoiceID, c change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.voices[id]
	if !ok {
		return ErrVoiceNotFound
	}
	v.push(c)
	return nil
}

// StopAll removes every voice immediately.
func (m *Mixer) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.position.Load()
	for _, id := range m.order {
		v := m.voices[id]
		if v.started {
			m.post(StatusEvent{Kind: VoiceFinished, Voice: id, Context: v.ctx, Position: pos})
		}
	}
	m.voices = make(map[VoiceID]*voice)
	m.order = m.order[:0]
	return nil
}

// Process renders len(dst)/2 stereo frames. It implements SampleSource.
func (m *Mixer) Process(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	frames := len(dst) / 2
	if frames == 0 {
		return
	}
	m.mu.Lock()
	pos := m.position.Load()
	live := m.order[:0]
	for _, id := range m.order {
		v := m.voices[id]
		wasStarted := v.started
		v.render(dst, pos)
		if !wasStarted && v.started {
			m.post(StatusEvent{Kind: VoiceStarted, Voice: id, Context: v.ctx, Position: v.start})
		}
		if v.done {
			delete(m.voices, id)
			m.post(StatusEvent{Kind: VoiceFinished, Voice: id, Context: v.ctx, Position: pos + uint64(frames)})
			continue
		}
		live = append(live, id)
	}
	m.order = live
	gain := m.gain
	m.mu.Unlock()

	if gain != 1 {
		vek32.MulNumber_Inplace(dst, gain)
	}
	peak := vek32.Max(dst)
	if low := -vek32.Min(dst); low > peak {
		peak = low
	}
	m.peak.Store(math.Float32bits(peak))
	m.position.Add(uint64(frames))
}

func (m *Mixer) post(ev StatusEvent) {
	if m.status == nil {
		return
	}
	select {
	case m.status <- ev:
	default:
	}
}
