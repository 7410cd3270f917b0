package script

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/parameter"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

const (
	patternTypeName   = "pattrns.pattern"
	parameterTypeName = "pattrns.parameter"

	defaultUnit = "1/16"
)

// PatternSpec is the evaluated pattern{} table of a script.
type PatternSpec struct {
	Unit       timebase.Unit
	Resolution float64
	Offset     float64 // in steps
	Repeats    int     // extra rhythm cycles, negative repeats forever
	Pulse      []float64
	PulseFunc  *Callback
	Events     []event.Event
	EventFunc  *Callback
	Parameters *parameter.Set
}

// StepLength returns the length of one pulse in samples.
func (s *PatternSpec) StepLength(tb timebase.TimeBase) float64 {
	return s.Unit.Samples(tb) * s.Resolution
}

func (e *Engine) registerBindings() {
	L := e.state
	L.NewTypeMetatable(patternTypeName)
	L.NewTypeMetatable(parameterTypeName)
	L.SetGlobal("pattern", L.NewFunction(e.luaPattern))

	params := L.NewTable()
	L.SetField(params, "boolean", L.NewFunction(luaBooleanParameter))
	L.SetField(params, "integer", L.NewFunction(luaIntegerParameter))
	L.SetField(params, "number", L.NewFunction(luaNumberParameter))
	L.SetField(params, "enum", L.NewFunction(luaEnumParameter))
	L.SetGlobal("parameter", params)
}

var patternProperties = map[string]bool{
	"unit": true, "resolution": true, "offset": true, "repeats": true,
	"pulse": true, "event": true, "parameter": true,
}

func (e *Engine) luaPattern(L *lua.LState) int {
	tbl := L.CheckTable(1)
	spec, err := e.patternFromTable(tbl)
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	ud := L.NewUserData()
	ud.Value = spec
	L.SetMetatable(ud, L.GetTypeMetatable(patternTypeName))
	L.Push(ud)
	return 1
}

func (e *Engine) patternFromTable(tbl *lua.LTable) (*PatternSpec, error) {
	var err error
	tbl.ForEach(func(k, _ lua.LValue) {
		if key, ok := k.(lua.LString); !ok || !patternProperties[string(key)] {
			if err == nil {
				err = fmt.Errorf("invalid pattern property '%s'", k.String())
			}
		}
	})
	if err != nil {
		return nil, err
	}

	spec := &PatternSpec{Resolution: 1, Repeats: -1}
	unit := defaultUnit
	switch v := tbl.RawGetString("unit").(type) {
	case *lua.LNilType:
	case lua.LString:
		unit = string(v)
	default:
		return nil, fmt.Errorf("pattern 'unit' must be a string, got a '%s'", v.Type())
	}
	if spec.Unit, err = timebase.ParseUnit(unit); err != nil {
		return nil, err
	}
	if spec.Resolution, err = optNumber(tbl, "resolution", 1); err != nil {
		return nil, err
	}
	if spec.Resolution <= 0 {
		return nil, fmt.Errorf("pattern 'resolution' must be > 0, got %v", spec.Resolution)
	}
	if spec.Offset, err = optNumber(tbl, "offset", 0); err != nil {
		return nil, err
	}
	if spec.Offset < 0 {
		return nil, fmt.Errorf("pattern 'offset' must be >= 0, got %v", spec.Offset)
	}
	if v := tbl.RawGetString("repeats"); v != lua.LNil {
		n, ok := v.(lua.LNumber)
		if !ok || n < 0 || float64(n) != math.Trunc(float64(n)) {
			return nil, fmt.Errorf("pattern 'repeats' must be a positive integer or zero, got '%s'", v.String())
		}
		spec.Repeats = int(n)
	}

	if spec.Parameters, err = parametersFromValue(tbl.RawGetString("parameter")); err != nil {
		return nil, err
	}
	if err := e.pulseFromValue(spec, tbl.RawGetString("pulse")); err != nil {
		return nil, err
	}
	if err := e.eventFromValue(spec, tbl.RawGetString("event")); err != nil {
		return nil, err
	}
	return spec, nil
}

func optNumber(tbl *lua.LTable, key string, def float64) (float64, error) {
	switch v := tbl.RawGetString(key).(type) {
	case *lua.LNilType:
		return def, nil
	case lua.LNumber:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("pattern '%s' must be a number, got a '%s'", key, v.Type())
	}
}

func (e *Engine) pulseFromValue(spec *PatternSpec, v lua.LValue) error {
	switch val := v.(type) {
	case *lua.LNilType:
		spec.Pulse = []float64{1}
	case *lua.LFunction:
		spec.PulseFunc = e.NewCallback(val)
		spec.PulseFunc.Context().SetParameters(spec.Parameters)
	case *lua.LTable:
		count := val.Len()
		if count == 0 {
			return fmt.Errorf("pattern 'pulse' must not be empty")
		}
		for i := 1; i <= count; i++ {
			p, err := PulseFromValue(val.RawGetInt(i))
			if err != nil {
				return fmt.Errorf("pattern 'pulse' #%d: %w", i, err)
			}
			spec.Pulse = append(spec.Pulse, p)
		}
	default:
		return fmt.Errorf("pattern 'pulse' must be an array or function, got a '%s'", v.Type())
	}
	return nil
}

// PulseFromValue converts a pulse value: numbers are used as is, booleans map to 1 and 0.
func PulseFromValue(v lua.LValue) (float64, error) {
	switch val := v.(type) {
	case lua.LNumber:
		return float64(val), nil
	case lua.LBool:
		if val {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("pulse value must be a number or boolean, got a '%s'", v.Type())
	}
}

func (e *Engine) eventFromValue(spec *PatternSpec, v lua.LValue) error {
	switch val := v.(type) {
	case *lua.LNilType:
		return fmt.Errorf("pattern needs an 'event' property")
	case *lua.LFunction:
		spec.EventFunc = e.NewCallback(val)
		spec.EventFunc.Context().SetParameters(spec.Parameters)
		return nil
	case *lua.LTable:
		if val.RawGetString("key") == lua.LNil && val.RawGetString("parameter") == lua.LNil {
			count := val.Len()
			if count == 0 {
				return fmt.Errorf("pattern 'event' must not be empty")
			}
			for i := 1; i <= count; i++ {
				ev, err := EventFromValue(val.RawGetInt(i))
				if err != nil {
					return fmt.Errorf("pattern 'event' #%d: %w", i, err)
				}
				spec.Events = append(spec.Events, ev)
			}
			return nil
		}
	}
	ev, err := EventFromValue(v)
	if err != nil {
		return fmt.Errorf("pattern 'event': %w", err)
	}
	spec.Events = []event.Event{ev}
	return nil
}

func parametersFromValue(v lua.LValue) (*parameter.Set, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return parameter.NewSet()
	case *lua.LTable:
		var params []*parameter.Parameter
		for i := 1; i <= val.Len(); i++ {
			ud, ok := val.RawGetInt(i).(*lua.LUserData)
			if !ok {
				return nil, fmt.Errorf("pattern 'parameter' #%d: expected a parameter, got a '%s'", i, val.RawGetInt(i).Type())
			}
			p, ok := ud.Value.(*parameter.Parameter)
			if !ok {
				return nil, fmt.Errorf("pattern 'parameter' #%d: expected a parameter", i)
			}
			params = append(params, p)
		}
		return parameter.NewSet(params...)
	default:
		return nil, fmt.Errorf("pattern 'parameter' must be an array, got a '%s'", v.Type())
	}
}

func pushParameter(L *lua.LState, p *parameter.Parameter, err error) int {
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	ud := L.NewUserData()
	ud.Value = p
	L.SetMetatable(ud, L.GetTypeMetatable(parameterTypeName))
	L.Push(ud)
	return 1
}

func checkParameterID(L *lua.LState) string {
	id, ok := L.Get(1).(lua.LString)
	if !ok {
		L.ArgError(1, "parameter id must be a string")
	}
	return string(id)
}

func checkRange(L *lua.LState, n int, lo, hi float64) (float64, float64) {
	switch v := L.Get(n).(type) {
	case *lua.LNilType:
		return lo, hi
	case *lua.LTable:
		first, ok1 := v.RawGetInt(1).(lua.LNumber)
		second, ok2 := v.RawGetInt(2).(lua.LNumber)
		if !ok1 || !ok2 {
			L.ArgError(n, "range must be a table of two numbers {min, max}")
		}
		return float64(first), float64(second)
	default:
		L.ArgError(n, "range must be a table of two numbers {min, max}")
	}
	return lo, hi
}

// parameter.boolean(id, default, [name], [description])
func luaBooleanParameter(L *lua.LState) int {
	id := checkParameterID(L)
	def := L.CheckBool(2)
	p, err := parameter.NewBoolean(id, def, L.OptString(3, ""), L.OptString(4, ""))
	return pushParameter(L, p, err)
}

// parameter.integer(id, default, [{min, max}], [name], [description])
func luaIntegerParameter(L *lua.LState) int {
	id := checkParameterID(L)
	def := float64(L.CheckNumber(2))
	if def != math.Trunc(def) {
		L.ArgError(2, "default value must be an integer")
	}
	lo, hi := checkRange(L, 3, 0, 100)
	if lo != math.Trunc(lo) || hi != math.Trunc(hi) {
		L.ArgError(3, "range must contain integers")
	}
	p, err := parameter.NewInteger(id, int(def), int(lo), int(hi), L.OptString(4, ""), L.OptString(5, ""))
	return pushParameter(L, p, err)
}

// parameter.number(id, default, [{min, max}], [name], [description])
func luaNumberParameter(L *lua.LState) int {
	id := checkParameterID(L)
	def := float64(L.CheckNumber(2))
	lo, hi := checkRange(L, 3, 0, 1)
	p, err := parameter.NewFloat(id, def, lo, hi, L.OptString(4, ""), L.OptString(5, ""))
	return pushParameter(L, p, err)
}

// parameter.enum(id, default, {values...}, [name], [description])
func luaEnumParameter(L *lua.LState) int {
	id := checkParameterID(L)
	def := L.CheckString(2)
	tbl := L.CheckTable(3)
	values := make([]string, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		s, ok := tbl.RawGetInt(i).(lua.LString)
		if !ok {
			L.ArgError(3, "enum values must be strings")
		}
		values = append(values, string(s))
	}
	p, err := parameter.NewEnum(id, def, values, L.OptString(4, ""), L.OptString(5, ""))
	return pushParameter(L, p, err)
}
