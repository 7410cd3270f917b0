package pattrns

import (
	"time"

	"go.uber.org/zap"

	"github.com/cbegin/pattrns-go/internal/audio"
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/player"
	"github.com/cbegin/pattrns-go/internal/script"
)

type Option func(*options)

type options struct {
	logger        *zap.Logger
	scriptTimeout time.Duration
	output        string
	bufferSize    time.Duration
	gain          float32
	newNoteAction player.NewNoteAction
	preload       time.Duration
	rootNote      event.Note
	showEvents    bool
	openDevice    func(*audio.Mixer) (audio.Device, error)
}

func defaultOptions() options {
	return options{
		logger:        zap.NewNop(),
		scriptTimeout: script.DefaultTimeout,
		output:        audio.OutputEbiten,
		bufferSize:    50 * time.Millisecond,
		gain:          1,
		newNoteAction: player.DefaultNewNoteAction,
		preload:       player.DefaultPreload,
		rootNote:      event.NoteC5,
	}
}

func applyOptions(opts []Option) options {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.openDevice == nil {
		output, bufferSize := cfg.output, cfg.bufferSize
		cfg.openDevice = func(m *audio.Mixer) (audio.Device, error) {
			return audio.OpenDevice(output, m, bufferSize)
		}
	}
	return cfg
}

func (o options) playerOptions() []player.Option {
	return []player.Option{
		player.WithLogger(o.logger),
		player.WithNewNoteAction(o.newNoteAction),
		player.WithSampleRootNote(o.rootNote),
		player.WithPreload(o.preload),
		player.WithShowEvents(o.showEvents),
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *options) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithScriptTimeout bounds every single script invocation. Zero disables the limit.
func WithScriptTimeout(d time.Duration) Option {
	return func(cfg *options) {
		cfg.scriptTimeout = d
	}
}

// WithOutput selects the output device: "ebiten" (default) or "oto".
func WithOutput(name string) Option {
	return func(cfg *options) {
		cfg.output = name
	}
}

func WithBufferSize(d time.Duration) Option {
	return func(cfg *options) {
		cfg.bufferSize = d
	}
}

// WithGain sets the base output gain. SetMasterVolume scales it.
func WithGain(gain float32) Option {
	return func(cfg *options) {
		if gain >= 0 {
			cfg.gain = gain
		}
	}
}

func WithNewNoteAction(action NewNoteAction) Option {
	return func(cfg *options) {
		cfg.newNoteAction = action
	}
}

func WithPreload(d time.Duration) Option {
	return func(cfg *options) {
		cfg.preload = d
	}
}

// WithSampleRootNote sets the note at which samples play at their original pitch.
func WithSampleRootNote(note Note) Option {
	return func(cfg *options) {
		cfg.rootNote = note
	}
}

// WithShowEvents logs every scheduled event at info level.
func WithShowEvents(show bool) Option {
	return func(cfg *options) {
		cfg.showEvents = show
	}
}
