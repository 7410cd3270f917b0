package pattrns

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/cbegin/pattrns-go/internal/audio"
	"github.com/cbegin/pattrns-go/internal/player"
)

// PlaybackEvent carries voice and playback events from Watch().
type PlaybackEvent struct {
	Kind     int // EventVoiceStarted, EventVoiceFinished or EventPlaybackEnded
	Slot     int
	Voice    int
	Position uint64
}

const (
	EventVoiceStarted int = iota
	EventVoiceFinished
	EventPlaybackEnded
)

// SequenceFunc builds the sequence to play. It runs on the scheduler
// goroutine, which makes it the place to create pattern instances while a
// sequence is playing.
type SequenceFunc func() (*Sequence, error)

// Player schedules sequences of sample patterns on an audio output device.
type Player struct {
	mu       sync.Mutex
	cfg      options
	logger   *zap.Logger
	mixer    *audio.Mixer
	device   audio.Device
	pool     *player.SamplePool
	player   *player.SamplePlayer
	volume   float64
	cancel   context.CancelFunc
	loopDone chan struct{}
	swap     chan SequenceFunc
	done     chan struct{}
	err      error
	statuses chan audio.StatusEvent
	quit     chan struct{}
	closed   bool

	eventCh   chan PlaybackEvent
	eventChMu sync.Mutex
}

func NewPlayer(sampleRate int, opts ...Option) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := applyOptions(opts)
	statuses := make(chan audio.StatusEvent, 64)
	mixer := audio.NewMixer(sampleRate, audio.WithStatus(statuses), audio.WithGain(cfg.gain))
	pool := player.NewSamplePool()
	p := &Player{
		cfg:      cfg,
		logger:   cfg.logger,
		mixer:    mixer,
		pool:     pool,
		player:   player.NewSamplePlayer(mixer, pool, cfg.playerOptions()...),
		volume:   1,
		statuses: statuses,
		quit:     make(chan struct{}),
	}
	go p.forwardStatuses()
	return p, nil
}

func (p *Player) SampleRate() int { return int(p.mixer.SampleRate()) }

// LoadSample decodes a wav, mp3 or ogg file into the player's sample pool.
func (p *Player) LoadSample(path string) (InstrumentID, error) {
	return p.pool.Load(path)
}

func (p *Player) LoadSampleBuffer(data []byte, name string) (InstrumentID, error) {
	return p.pool.LoadBuffer(data, name)
}

func (p *Player) RemoveSample(id InstrumentID) bool {
	_, ok := p.pool.Remove(id)
	return ok
}

// Play starts seq from its beginning, replacing whatever played before.
// seq's patterns must not be used elsewhere while it plays.
func (p *Player) Play(seq *Sequence) error {
	return p.PlayFunc(func() (*Sequence, error) { return seq, nil })
}

// PlayFunc is Play with a sequence built on the scheduler goroutine.
func (p *Player) PlayFunc(build SequenceFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("player is closed")
	}
	if err := p.openDeviceLocked(); err != nil {
		return err
	}
	p.stopLoopLocked()
	p.mixer.SetSuspended(false)

	// Signal any existing Wait() that the previous playback was replaced
	if p.done != nil {
		close(p.done)
	}
	p.done = make(chan struct{})
	p.err = nil

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.loopDone = make(chan struct{})
	p.swap = make(chan SequenceFunc, 1)
	go p.loop(ctx, build, p.swap, p.loopDone, p.done)
	return nil
}

// Swap replaces the playing sequence without resetting the playback
// position: seq continues at the time the previous one was emitted up to.
// Notes of the previous sequence end where it would have ended them.
// Swap starts playback when nothing plays.
func (p *Player) Swap(seq *Sequence) error {
	return p.SwapFunc(func() (*Sequence, error) { return seq, nil })
}

func (p *Player) SwapFunc(build SequenceFunc) error {
	p.mu.Lock()
	swap := p.swap
	p.mu.Unlock()
	if swap == nil {
		return p.PlayFunc(build)
	}
	// a pending swap which was not picked up yet is replaced
	for {
		select {
		case swap <- build:
			return nil
		default:
		}
		select {
		case <-swap:
		default:
		}
	}
}

func (p *Player) loop(ctx context.Context, build SequenceFunc, swap <-chan SequenceFunc, loopDone, done chan struct{}) {
	seq, err := build()
	if err != nil || seq == nil {
		if err == nil {
			err = errors.New("no sequence to play")
		}
		close(loopDone)
		p.finish(done, err)
		return
	}
	defer close(loopDone)
	var prev *Sequence
	reset, resume := true, false
	for {
		var next SequenceFunc
		stop := func() bool {
			if next != nil {
				return true
			}
			select {
			case next = <-swap:
				return true
			default:
				return false
			}
		}
		var err error
		if resume {
			err = p.player.ResumeUntil(ctx, seq, stop)
		} else {
			err = p.player.RunUntil(ctx, prev, seq, reset, stop)
		}
		if err != nil {
			p.player.StopAllSources()
			return
		}
		s, err := next()
		if err != nil || s == nil {
			p.logger.Warn("failed to build sequence, keeping the current one", zap.Error(err))
			resume = true
			continue
		}
		prev, seq, reset, resume = seq, s, false, false
	}
}

func (p *Player) finish(done chan struct{}, err error) {
	p.mu.Lock()
	if p.done != done {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.done = nil
	p.swap = nil
	p.mu.Unlock()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	close(done)
}

func (p *Player) openDeviceLocked() error {
	if p.device != nil {
		return nil
	}
	device, err := p.cfg.openDevice(p.mixer)
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		_ = device.Close()
		return err
	}
	p.device = device
	return nil
}

func (p *Player) stopLoopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.loopDone
	p.cancel = nil
	p.swap = nil
}

func (p *Player) forwardStatuses() {
	for {
		select {
		case <-p.quit:
			return
		case st := <-p.statuses:
			kind := EventVoiceStarted
			if st.Kind == audio.VoiceFinished {
				kind = EventVoiceFinished
			}
			p.sendEvent(PlaybackEvent{Kind: kind, Slot: st.Context.Slot, Voice: st.Context.Voice, Position: st.Position})
		}
	}
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return nil
	}
	return p.device.Suspend()
}

func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return nil
	}
	return p.device.Resume()
}

// Stop ends playback and silences all voices.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopLoopLocked()
	err := p.mixer.StopAll()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	if done != nil {
		close(done)
	}
	return err
}

// Close stops playback and releases the output device.
func (p *Player) Close() error {
	err := p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return err
	}
	p.closed = true
	close(p.quit)
	if p.device != nil {
		if cerr := p.device.Close(); err == nil {
			err = cerr
		}
		p.device = nil
	}
	return err
}

// Wait blocks until the current playback ends, and returns the error which
// ended it. Sequences loop forever, so Wait only returns after Stop, a
// replacing Play, or a sequence that failed to build.
func (p *Player) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Watch returns a channel that receives playback events:
//   - EventVoiceStarted / EventVoiceFinished: a sample voice started or ended
//     (Slot and Voice tell which pattern slot and note column played it)
//   - EventPlaybackEnded: playback was stopped or replaced
//
// The channel is buffered (cap 8); events are dropped while it is full.
// Only the most recent Watch() channel receives events.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	p.mixer.SetGain(p.cfg.gain * float32(volume))
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// PlaybackPosition returns the number of frames the output has consumed.
func (p *Player) PlaybackPosition() uint64 {
	return p.mixer.OutputPosition()
}

// Peak returns the absolute peak of the last rendered buffer.
func (p *Player) Peak() float32 { return p.mixer.Peak() }
