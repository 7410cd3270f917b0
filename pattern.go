package pattrns

import (
	"errors"
	"fmt"
	"math"

	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/sequencer"
)

// ErrInternal wraps panics recovered from pattern evaluation.
var ErrInternal = errors.New("internal error")

// Pattern is a handle to one compiled pattern instance. All methods report the
// first script error raised while they ran, and never panic.
type Pattern struct {
	engine  *Engine
	pattern sequencer.Pattern
}

// guard clears the error queue, runs fn and reports fn's error, a recovered
// panic or the first queued script error, in that order.
func (e *Engine) guard(fn func() error) (err error) {
	queue := e.script.Errors()
	queue.Clear()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
		if err == nil {
			err = queue.First()
		}
		e.status.Update(err)
	}()
	return fn()
}

// NewInstance returns a fresh copy of the pattern, reset and moved to tb.
// Parameter values are copied and evolve independently afterwards.
func (p *Pattern) NewInstance(tb TimeBase) (*Pattern, error) {
	var instance *Pattern
	err := p.engine.guard(func() error {
		if err := tb.Validate(); err != nil {
			return err
		}
		dup := p.pattern.Duplicate()
		dup.SetTimeBase(tb)
		dup.Reset()
		instance = &Pattern{engine: p.engine, pattern: dup}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func (p *Pattern) Parameters() []*Parameter {
	return p.pattern.Parameters().All()
}

// SetParameterValue rejects unknown ids and out of range values and leaves
// the parameter unchanged in that case.
func (p *Pattern) SetParameterValue(id string, value float64) error {
	return p.engine.guard(func() error {
		return p.pattern.Parameters().SetValue(id, value)
	})
}

func (p *Pattern) SamplesPerStep() float64 { return p.pattern.StepLength() }
func (p *Pattern) StepCount() int          { return p.pattern.StepCount() }

func (p *Pattern) SetTimeBase(tb TimeBase) error {
	return p.engine.guard(func() error {
		if err := tb.Validate(); err != nil {
			return err
		}
		p.pattern.SetTimeBase(tb)
		return nil
	})
}

// SetTriggerEvent makes ev visible to the pattern's scripts as context.trigger.
func (p *Pattern) SetTriggerEvent(ev *Event) error {
	return p.engine.guard(func() error {
		p.pattern.SetTriggerEvent(ev)
		return nil
	})
}

// SetEventTransform replaces the instrument default set at creation.
func (p *Pattern) SetEventTransform(transform func(*Event)) {
	p.pattern.SetEventTransform(event.Transform(transform))
}

// Run returns the next event, however far in the future it is. ok is false
// once the pattern has ended.
func (p *Pattern) Run() (ev PatternEvent, ok bool, err error) {
	err = p.engine.guard(func() error {
		ev, ok = p.pattern.RunUntilTime(math.MaxUint64)
		return nil
	})
	return ev, ok, err
}

// RunUntilTime passes all events which start before time to fn.
func (p *Pattern) RunUntilTime(time uint64, fn func(PatternEvent)) error {
	return p.engine.guard(func() error {
		for {
			ev, ok := p.pattern.RunUntilTime(time)
			if !ok {
				return nil
			}
			fn(ev)
		}
	})
}

// AdvanceUntilTime skips all events which start before time.
func (p *Pattern) AdvanceUntilTime(time uint64) error {
	return p.engine.guard(func() error {
		p.pattern.AdvanceUntilTime(time)
		return nil
	})
}

// PatternSlot places p into a phrase slot. The phrase takes over the instance:
// use NewInstance to play the same pattern in more than one slot.
func PatternSlot(p *Pattern) Slot { return sequencer.PatternSlot(p.pattern) }
