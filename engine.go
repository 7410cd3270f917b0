package pattrns

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/script"
	"github.com/cbegin/pattrns-go/internal/sequencer"
)

// Engine compiles pattern scripts. An engine and all patterns created from it
// share one interpreter and must be used from a single goroutine at a time.
type Engine struct {
	script *script.Engine
	status script.Status
	logger *zap.Logger
}

func NewEngine(tb TimeBase, opts ...Option) (*Engine, error) {
	if err := tb.Validate(); err != nil {
		return nil, err
	}
	cfg := applyOptions(opts)
	return &Engine{
		script: script.NewEngine(tb, script.WithLogger(cfg.logger), script.WithTimeout(cfg.scriptTimeout)),
		logger: cfg.logger,
	}, nil
}

func (e *Engine) Close() { e.script.Close() }

// Errors returns the script errors queued since the last guarded call started.
func (e *Engine) Errors() []error { return e.script.Errors().All() }

// Status returns the most recent script error message, or "" once a script
// compiled or ran without errors again.
func (e *Engine) Status() string { return e.status.Message() }

// NewPatternFromString compiles a pattern script. A non-nil instrument is
// applied to all notes which do not pick an instrument themselves.
func (e *Engine) NewPatternFromString(tb TimeBase, instrument *InstrumentID, source, name string) (*Pattern, error) {
	var p *Pattern
	err := e.guard(func() error {
		if err := tb.Validate(); err != nil {
			return err
		}
		e.script.SetTimeBase(tb)
		spec, err := e.script.LoadString(source, name)
		if err != nil {
			return err
		}
		sp := sequencer.NewPatternFromSpec(spec, tb)
		if instrument != nil {
			sp.SetEventTransform(defaultInstrument(*instrument))
		}
		p = &Pattern{engine: e, pattern: sp}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("compiled pattern", zap.String("name", name))
	return p, nil
}

// NewPatternFromFile compiles the script at path. The script is named after
// the file's base name.
func (e *Engine) NewPatternFromFile(tb TimeBase, instrument *InstrumentID, path string) (*Pattern, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		e.status.Update(err)
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return e.NewPatternFromString(tb, instrument, string(src), name)
}

func defaultInstrument(id event.InstrumentID) event.Transform {
	return func(ev *event.Event) {
		for _, n := range ev.Notes {
			if n != nil && n.Instrument == nil {
				instrument := id
				n.Instrument = &instrument
			}
		}
	}
}
