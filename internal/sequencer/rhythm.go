package sequencer

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/cbegin/pattrns-go/internal/emitter"
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/parameter"
	"github.com/cbegin/pattrns-go/internal/script"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

// Rhythm generates the pulses of a pattern. A pulse with a value > 0 triggers an event.
type Rhythm interface {
	// Next returns the next pulse, or false once the rhythm has finished.
	Next(state script.PlaybackState) (emitter.Pulse, bool)
	// StepCount is the number of pulses in one cycle.
	StepCount() int
	SetTimeBase(tb timebase.TimeBase)
	SetTriggerEvent(ev *event.Event)
	SetParameters(set *parameter.Set)
	Duplicate() Rhythm
	Reset()
}

// FixedRhythm cycles through a list of pulse values, repeating it a fixed number
// of times or forever when repeats is negative.
type FixedRhythm struct {
	pulses  []float64
	repeats int
	pos     int
	cycle   int
}

func NewFixedRhythm(pulses []float64, repeats int) *FixedRhythm {
	if len(pulses) == 0 {
		pulses = []float64{1}
	}
	return &FixedRhythm{pulses: pulses, repeats: repeats}
}

func (r *FixedRhythm) Next(script.PlaybackState) (emitter.Pulse, bool) {
	if r.pos == len(r.pulses) {
		r.pos = 0
		r.cycle++
	}
	if r.repeats >= 0 && r.cycle > r.repeats {
		return emitter.Pulse{}, false
	}
	value := r.pulses[r.pos]
	r.pos++
	return emitter.Pulse{Value: value, StepTime: 1}, true
}

func (r *FixedRhythm) StepCount() int                { return len(r.pulses) }
func (r *FixedRhythm) SetTimeBase(timebase.TimeBase) {}
func (r *FixedRhythm) SetTriggerEvent(*event.Event)  {}
func (r *FixedRhythm) SetParameters(*parameter.Set)  {}

func (r *FixedRhythm) Duplicate() Rhythm {
	c := *r
	return &c
}

func (r *FixedRhythm) Reset() {
	r.pos = 0
	r.cycle = 0
}

// ScriptedRhythm asks a script callback for every pulse. Returning nil ends the rhythm.
type ScriptedRhythm struct {
	callback      *script.Callback
	pulseStep     int
	pulseTimeStep float64
}

func NewScriptedRhythm(callback *script.Callback, tb timebase.TimeBase) *ScriptedRhythm {
	callback.Context().SetTimeBase(tb)
	return &ScriptedRhythm{callback: callback}
}

func (r *ScriptedRhythm) Next(state script.PlaybackState) (emitter.Pulse, bool) {
	ctx := r.callback.Context()
	ctx.SetPlaybackState(state)
	ctx.SetPulseStep(r.pulseStep, r.pulseTimeStep)
	value, err := r.callback.Evaluate()
	if err != nil {
		r.callback.HandleError(err)
		value = lua.LNumber(0)
	}
	if value == lua.LNil {
		return emitter.Pulse{}, false
	}
	pulse, err := script.PulseFromValue(value)
	if err != nil {
		r.callback.HandleError(&script.Error{Callback: r.callback.Name(), Err: err})
		pulse = 0
	}
	r.pulseStep++
	r.pulseTimeStep++
	return emitter.Pulse{Value: pulse, StepTime: 1}, true
}

func (r *ScriptedRhythm) StepCount() int                   { return 1 }
func (r *ScriptedRhythm) SetTimeBase(tb timebase.TimeBase) { r.callback.Context().SetTimeBase(tb) }
func (r *ScriptedRhythm) SetTriggerEvent(ev *event.Event)  { r.callback.Context().SetTriggerEvent(ev) }
func (r *ScriptedRhythm) SetParameters(set *parameter.Set) { r.callback.Context().SetParameters(set) }

func (r *ScriptedRhythm) Duplicate() Rhythm {
	return &ScriptedRhythm{
		callback:      r.callback.Duplicate(),
		pulseStep:     r.pulseStep,
		pulseTimeStep: r.pulseTimeStep,
	}
}

func (r *ScriptedRhythm) Reset() {
	r.pulseStep = 0
	r.pulseTimeStep = 0
	if err := r.callback.Reset(); err != nil {
		r.callback.HandleError(err)
	}
}
