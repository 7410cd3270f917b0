package sequencer

import (
	"math"

	"github.com/cbegin/pattrns-go/internal/emitter"
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/parameter"
	"github.com/cbegin/pattrns-go/internal/script"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

// Pattern is a pull-based source of timed events.
type Pattern interface {
	TimeBase() timebase.TimeBase
	SetTimeBase(tb timebase.TimeBase)
	SetTriggerEvent(ev *event.Event)
	SetEventTransform(transform event.Transform)
	// SetSampleOffset shifts all event times by offset samples.
	SetSampleOffset(offset uint64)
	// StepLength returns the length of one pulse in samples.
	StepLength() float64
	StepCount() int
	Parameters() *parameter.Set
	// RunUntilTime returns the next event, if one starts before time.
	RunUntilTime(time uint64) (event.PatternEvent, bool)
	// AdvanceUntilTime skips all events which start before time.
	AdvanceUntilTime(time uint64)
	Duplicate() Pattern
	Reset()
}

// StepPattern plays an emitter on a rhythm with a fixed step length.
type StepPattern struct {
	timeBase     timebase.TimeBase
	unit         timebase.Unit
	resolution   float64
	offset       float64
	rhythm       Rhythm
	emitter      emitter.Emitter
	parameters   *parameter.Set
	transform    event.Transform
	sampleOffset uint64
	pulseTime    float64
	pending      []event.PatternEvent
	finished     bool
}

func NewStepPattern(tb timebase.TimeBase, unit timebase.Unit, rhythm Rhythm, em emitter.Emitter) *StepPattern {
	p := &StepPattern{
		timeBase:   tb,
		unit:       unit,
		resolution: 1,
		rhythm:     rhythm,
		emitter:    em,
	}
	p.SetParameters(nil)
	return p
}

// NewPatternFromSpec builds a pattern from an evaluated pattern script.
func NewPatternFromSpec(spec *script.PatternSpec, tb timebase.TimeBase) *StepPattern {
	var rhythm Rhythm
	if spec.PulseFunc != nil {
		rhythm = NewScriptedRhythm(spec.PulseFunc, tb)
	} else {
		rhythm = NewFixedRhythm(spec.Pulse, spec.Repeats)
	}
	var em emitter.Emitter
	if spec.EventFunc != nil {
		em = emitter.NewScripted(spec.EventFunc, tb)
	} else {
		em = emitter.NewFixed(spec.Events)
	}
	p := NewStepPattern(tb, spec.Unit, rhythm, em)
	p.resolution = spec.Resolution
	p.offset = spec.Offset
	p.SetParameters(spec.Parameters)
	return p
}

// WithResolution multiplies the step length.
func (p *StepPattern) WithResolution(resolution float64) *StepPattern {
	p.resolution = resolution
	return p
}

// WithOffset delays the pattern start by the given number of steps.
func (p *StepPattern) WithOffset(steps float64) *StepPattern {
	p.offset = steps
	return p
}

func (p *StepPattern) TimeBase() timebase.TimeBase { return p.timeBase }

func (p *StepPattern) SetTimeBase(tb timebase.TimeBase) {
	p.timeBase = tb
	p.rhythm.SetTimeBase(tb)
	p.emitter.SetTimeBase(tb)
}

func (p *StepPattern) SetTriggerEvent(ev *event.Event) {
	p.rhythm.SetTriggerEvent(ev)
	p.emitter.SetTriggerEvent(ev)
}

// SetParameters replaces the parameter set the scripts read from.
func (p *StepPattern) SetParameters(set *parameter.Set) {
	if set == nil {
		set, _ = parameter.NewSet()
	}
	p.parameters = set
	p.rhythm.SetParameters(set)
	p.emitter.SetParameters(set)
}

func (p *StepPattern) SetEventTransform(transform event.Transform) { p.transform = transform }
func (p *StepPattern) SetSampleOffset(offset uint64)               { p.sampleOffset = offset }
func (p *StepPattern) Parameters() *parameter.Set                  { return p.parameters }
func (p *StepPattern) StepCount() int                              { return p.rhythm.StepCount() }

func (p *StepPattern) StepLength() float64 {
	return p.unit.Samples(p.timeBase) * p.resolution
}

func (p *StepPattern) exactTime(pulseTime float64) float64 {
	return (p.offset + pulseTime) * p.StepLength()
}

func (p *StepPattern) nextTime() uint64 {
	return p.sampleOffset + round(p.exactTime(p.pulseTime))
}

func (p *StepPattern) RunUntilTime(time uint64) (event.PatternEvent, bool) {
	if len(p.pending) > 0 {
		if p.pending[0].Time >= time {
			return event.PatternEvent{}, false
		}
		ev := p.pending[0]
		p.pending = p.pending[1:]
		return ev, true
	}
	if p.finished || p.nextTime() >= time {
		return event.PatternEvent{}, false
	}
	pulse, ok := p.rhythm.Next(script.Running)
	if !ok {
		p.finished = true
		return event.PatternEvent{}, false
	}
	start := round(p.exactTime(p.pulseTime))
	end := round(p.exactTime(p.pulseTime + pulse.StepTime))
	p.pulseTime += pulse.StepTime

	ev := event.PatternEvent{Time: p.sampleOffset + start, Duration: end - start}
	events := p.emitter.Run(pulse, pulse.Value > 0)
	if len(events) == 0 {
		return ev, true
	}
	for i := range events {
		e := events[i]
		if p.transform != nil {
			p.transform(&e)
		}
		if i == 0 {
			ev.Event = &e
			continue
		}
		p.pending = append(p.pending, event.PatternEvent{Time: ev.Time, Duration: ev.Duration, Event: &e})
	}
	return ev, true
}

func (p *StepPattern) AdvanceUntilTime(time uint64) {
	for len(p.pending) > 0 && p.pending[0].Time < time {
		p.pending = p.pending[1:]
	}
	for !p.finished && p.nextTime() < time {
		pulse, ok := p.rhythm.Next(script.Seeking)
		if !ok {
			p.finished = true
			return
		}
		p.emitter.Advance(pulse, pulse.Value > 0)
		p.pulseTime += pulse.StepTime
	}
}

// Duplicate returns an independent instance with its own parameter values.
func (p *StepPattern) Duplicate() Pattern {
	c := &StepPattern{
		timeBase:     p.timeBase,
		unit:         p.unit,
		resolution:   p.resolution,
		offset:       p.offset,
		rhythm:       p.rhythm.Duplicate(),
		emitter:      p.emitter.Duplicate(),
		transform:    p.transform,
		sampleOffset: p.sampleOffset,
		pulseTime:    p.pulseTime,
		pending:      append([]event.PatternEvent(nil), p.pending...),
		finished:     p.finished,
	}
	c.SetParameters(p.parameters.Clone())
	return c
}

func (p *StepPattern) Reset() {
	p.rhythm.Reset()
	p.emitter.Reset()
	p.pulseTime = 0
	p.pending = nil
	p.finished = false
}

func round(exact float64) uint64 {
	if exact <= 0 || math.IsNaN(exact) {
		return 0
	}
	return uint64(math.Round(exact))
}
