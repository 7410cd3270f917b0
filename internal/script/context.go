package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/parameter"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

const (
	contextTypeName    = "pattrns.context"
	parametersTypeName = "pattrns.parameters"
)

type PlaybackState int

const (
	Running PlaybackState = iota
	Seeking
)

func (s PlaybackState) String() string {
	if s == Seeking {
		return "seeking"
	}
	return "running"
}

// Context is the value passed as first argument to every callback invocation.
// Scripts can read its fields but never write them.
type Context struct {
	playback      PlaybackState
	timeBase      timebase.TimeBase
	pulseValue    float64
	pulseTime     float64
	pulseStep     int
	pulseTimeStep float64
	step          int
	trigger       *event.Event
	parameters    *parameter.Set
}

func (c *Context) SetPlaybackState(s PlaybackState) { c.playback = s }
func (c *Context) SetTimeBase(tb timebase.TimeBase) { c.timeBase = tb }

func (c *Context) SetPulse(value, stepTime float64) {
	c.pulseValue = value
	c.pulseTime = stepTime
}

func (c *Context) SetPulseStep(step int, timeStep float64) {
	c.pulseStep = step
	c.pulseTimeStep = timeStep
}

func (c *Context) SetStep(step int) { c.step = step }

// SetTriggerEvent stores a copy of the event that started this pattern instance.
func (c *Context) SetTriggerEvent(ev *event.Event) {
	if ev == nil {
		c.trigger = nil
		return
	}
	clone := ev.Clone()
	c.trigger = &clone
}

func (c *Context) SetParameters(set *parameter.Set) { c.parameters = set }

func registerContextTypes(L *lua.LState) {
	mt := L.NewTypeMetatable(contextTypeName)
	L.SetField(mt, "__index", L.NewFunction(contextIndex))
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s", ErrReadOnlyContext.Error())
		return 0
	}))

	pmt := L.NewTypeMetatable(parametersTypeName)
	L.SetField(pmt, "__index", L.NewFunction(parametersIndex))
	L.SetField(pmt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("context inputs are read-only and thus can't be modified")
		return 0
	}))
}

func newContextUserData(L *lua.LState, c *Context) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = c
	L.SetMetatable(ud, L.GetTypeMetatable(contextTypeName))
	return ud
}

func contextIndex(L *lua.LState) int {
	c, ok := L.CheckUserData(1).Value.(*Context)
	if !ok {
		L.ArgError(1, "context expected")
	}
	key := L.CheckString(2)
	switch key {
	case "playback":
		L.Push(lua.LString(c.playback.String()))
	case "beats_per_min":
		L.Push(lua.LNumber(c.timeBase.BeatsPerMin))
	case "beats_per_bar":
		L.Push(lua.LNumber(c.timeBase.BeatsPerBar))
	case "samples_per_sec":
		L.Push(lua.LNumber(c.timeBase.SamplesPerSec))
	case "pulse_value":
		L.Push(lua.LNumber(c.pulseValue))
	case "pulse_time":
		L.Push(lua.LNumber(c.pulseTime))
	case "pulse_step":
		L.Push(lua.LNumber(c.pulseStep + 1))
	case "pulse_time_step":
		L.Push(lua.LNumber(c.pulseTimeStep))
	case "step":
		L.Push(lua.LNumber(c.step + 1))
	case "trigger":
		L.Push(EventToValue(L, c.trigger))
	case "parameter":
		ud := L.NewUserData()
		ud.Value = c.parameters
		L.SetMetatable(ud, L.GetTypeMetatable(parametersTypeName))
		L.Push(ud)
	default:
		L.RaiseError("undefined field '%s' in context", key)
	}
	return 1
}

func parametersIndex(L *lua.LState) int {
	set, _ := L.CheckUserData(1).Value.(*parameter.Set)
	id := L.CheckString(2)
	p, ok := set.Get(id)
	if !ok {
		L.RaiseError("undefined parameter id '%s' in inputs context", id)
	}
	L.Push(ParameterValue(p))
	return 1
}

// ParameterValue converts the live parameter value to its script representation.
func ParameterValue(p *parameter.Parameter) lua.LValue {
	switch p.Type() {
	case parameter.Boolean:
		return lua.LBool(p.Value() != 0)
	case parameter.Enum:
		return lua.LString(p.EnumValue())
	default:
		return lua.LNumber(p.Value())
	}
}
