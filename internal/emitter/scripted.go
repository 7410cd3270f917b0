package emitter

import (
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/parameter"
	"github.com/cbegin/pattrns-go/internal/script"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

// Scripted evaluates a script callback for every emitted pulse.
type Scripted struct {
	callback      *script.Callback
	state         []*event.NoteEvent
	pulseStep     int
	pulseTimeStep float64
	step          int
}

func NewScripted(callback *script.Callback, tb timebase.TimeBase) *Scripted {
	ctx := callback.Context()
	ctx.SetPlaybackState(script.Running)
	ctx.SetTimeBase(tb)
	ctx.SetPulse(0, 0)
	ctx.SetPulseStep(0, 0)
	ctx.SetStep(0)
	return &Scripted{callback: callback}
}

func (s *Scripted) SetTimeBase(tb timebase.TimeBase) { s.callback.Context().SetTimeBase(tb) }
func (s *Scripted) SetTriggerEvent(ev *event.Event)  { s.callback.Context().SetTriggerEvent(ev) }
func (s *Scripted) SetParameters(set *parameter.Set) { s.callback.Context().SetParameters(set) }

func (s *Scripted) Run(pulse Pulse, emit bool) []event.Event {
	if !emit {
		s.pulseStep++
		s.pulseTimeStep += pulse.StepTime
		return nil
	}
	events, err := s.run(pulse)
	if err != nil {
		s.callback.HandleError(err)
	}
	s.step++
	s.pulseStep++
	s.pulseTimeStep += pulse.StepTime
	return events
}

func (s *Scripted) run(pulse Pulse) ([]event.Event, error) {
	s.updateContext(script.Running, pulse)
	value, err := s.callback.Evaluate()
	if err != nil {
		return nil, err
	}
	ev, err := script.EventFromValue(value)
	if err != nil {
		return nil, &script.Error{Callback: s.callback.Name(), Err: err}
	}
	s.state = normalize(&ev, s.state)
	return []event.Event{ev}, nil
}

func (s *Scripted) Advance(pulse Pulse, emit bool) {
	if emit {
		// plain functions have no state to catch up on
		if stateful, known := s.callback.IsStateful(); stateful || !known {
			s.updateContext(script.Seeking, pulse)
			if _, err := s.callback.Evaluate(); err != nil {
				s.callback.HandleError(err)
			}
		}
		s.step++
	}
	s.pulseStep++
	s.pulseTimeStep += pulse.StepTime
}

func (s *Scripted) updateContext(state script.PlaybackState, pulse Pulse) {
	ctx := s.callback.Context()
	ctx.SetPlaybackState(state)
	ctx.SetPulse(pulse.Value, pulse.StepTime)
	ctx.SetPulseStep(s.pulseStep, s.pulseTimeStep)
	ctx.SetStep(s.step)
}

func (s *Scripted) Duplicate() Emitter {
	return &Scripted{
		callback:      s.callback.Duplicate(),
		state:         cloneState(s.state),
		pulseStep:     s.pulseStep,
		pulseTimeStep: s.pulseTimeStep,
		step:          s.step,
	}
}

func (s *Scripted) Reset() {
	s.step = 0
	s.pulseStep = 0
	s.pulseTimeStep = 0
	ctx := s.callback.Context()
	ctx.SetStep(0)
	ctx.SetPulseStep(0, 0)
	if err := s.callback.Reset(); err != nil {
		s.callback.HandleError(err)
	}
	s.state = nil
}
