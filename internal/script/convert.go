package script

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/cbegin/pattrns-go/internal/event"
)

// EventFromValue converts a callback result into an event. nil yields an empty note
// vector, a table with a "parameter" field a parameter change, anything else one or
// more note events.
func EventFromValue(v lua.LValue) (event.Event, error) {
	if tbl, ok := v.(*lua.LTable); ok && tbl.RawGetString("parameter") != lua.LNil {
		return parameterChangeFromTable(tbl)
	}
	notes, err := NoteEventsFromValue(v)
	if err != nil {
		return event.Event{}, err
	}
	return event.NewNoteEvents(notes...), nil
}

// NoteEventsFromValue converts a note value or an array of note values into a note vector.
// Accepted note values are numbers (0-127), note strings ("c4", "off", "c4 #1 v0.5"),
// note tables ({key = "c4", volume = 0.5, ...}) and false/nil for a no-op slot.
func NoteEventsFromValue(v lua.LValue) ([]*event.NoteEvent, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return []*event.NoteEvent{}, nil
	case *lua.LTable:
		if val.RawGetString("key") != lua.LNil {
			n, err := noteFromValue(val)
			if err != nil {
				return nil, err
			}
			return []*event.NoteEvent{n}, nil
		}
		count := val.Len()
		notes := make([]*event.NoteEvent, 0, count)
		for i := 1; i <= count; i++ {
			n, err := noteFromValue(val.RawGetInt(i))
			if err != nil {
				return nil, fmt.Errorf("note #%d: %w", i, err)
			}
			notes = append(notes, n)
		}
		return notes, nil
	default:
		n, err := noteFromValue(v)
		if err != nil {
			return nil, err
		}
		return []*event.NoteEvent{n}, nil
	}
}

func noteFromValue(v lua.LValue) (*event.NoteEvent, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		if val {
			return nil, fmt.Errorf("invalid note value 'true'")
		}
		return nil, nil
	case lua.LNumber:
		note, err := noteFromNumber(val)
		if err != nil {
			return nil, err
		}
		n := event.NewNoteEvent(note)
		return &n, nil
	case lua.LString:
		n, err := event.ParseNoteEvent(string(val))
		if err != nil {
			return nil, err
		}
		return &n, nil
	case *lua.LTable:
		return noteFromTable(val)
	default:
		return nil, fmt.Errorf("invalid note value of type '%s'", v.Type())
	}
}

func noteFromNumber(v lua.LNumber) (event.Note, error) {
	f := float64(v)
	if f != math.Trunc(f) {
		return event.NoteEmpty, fmt.Errorf("note number must be an integer, got %v", f)
	}
	return event.NoteFromNumber(int(f))
}

func noteFromTable(tbl *lua.LTable) (*event.NoteEvent, error) {
	var n event.NoteEvent
	switch key := tbl.RawGetString("key").(type) {
	case lua.LNumber:
		note, err := noteFromNumber(key)
		if err != nil {
			return nil, err
		}
		n = event.NewNoteEvent(note)
	case lua.LString:
		parsed, err := event.ParseNoteEvent(string(key))
		if err != nil {
			return nil, err
		}
		n = parsed
	default:
		return nil, fmt.Errorf("note table needs a 'key' number or string, got '%s'", key.Type())
	}
	if v, ok := tbl.RawGetString("instrument").(lua.LNumber); ok {
		if v < 0 {
			return nil, fmt.Errorf("invalid instrument %v", float64(v))
		}
		id := event.InstrumentID(v)
		n.Instrument = &id
	}
	if v, ok := tbl.RawGetString("volume").(lua.LNumber); ok {
		n.Volume = float32(v)
	}
	if v, ok := tbl.RawGetString("panning").(lua.LNumber); ok {
		n.Panning = float32(v)
	}
	if v, ok := tbl.RawGetString("delay").(lua.LNumber); ok {
		n.Delay = float32(v)
	}
	if v, ok := tbl.RawGetString("glide").(lua.LNumber); ok {
		g := float32(v)
		n.Glide = &g
	}
	n.Clamp()
	return &n, nil
}

func parameterChangeFromTable(tbl *lua.LTable) (event.Event, error) {
	var id *event.ParameterID
	switch p := tbl.RawGetString("parameter").(type) {
	case lua.LNumber:
		if p < 0 {
			return event.Event{}, fmt.Errorf("invalid parameter id %v", float64(p))
		}
		pid := event.ParameterID(p)
		id = &pid
	case lua.LBool:
		// false: change without a target parameter
	default:
		return event.Event{}, fmt.Errorf("parameter change needs a numeric 'parameter' id, got '%s'", p.Type())
	}
	value, ok := tbl.RawGetString("value").(lua.LNumber)
	if !ok {
		return event.Event{}, fmt.Errorf("parameter change needs a numeric 'value'")
	}
	return event.NewParameterChange(id, float32(value)), nil
}

// EventToValue converts an event into the table form scripts see as context.trigger:
// {notes = {{key = 48, volume = 1, ...}, false, ...}} or {parameter = 1, value = 0.5}.
func EventToValue(L *lua.LState, ev *event.Event) lua.LValue {
	if ev == nil {
		return lua.LNil
	}
	tbl := L.NewTable()
	if ev.ParameterChange != nil {
		if ev.ParameterChange.Parameter != nil {
			tbl.RawSetString("parameter", lua.LNumber(*ev.ParameterChange.Parameter))
		} else {
			tbl.RawSetString("parameter", lua.LFalse)
		}
		tbl.RawSetString("value", lua.LNumber(ev.ParameterChange.Value))
		return tbl
	}
	notes := L.CreateTable(len(ev.Notes), 0)
	for i, n := range ev.Notes {
		if n == nil {
			notes.RawSetInt(i+1, lua.LFalse)
			continue
		}
		notes.RawSetInt(i+1, noteToTable(L, n))
	}
	tbl.RawSetString("notes", notes)
	return tbl
}

func noteToTable(L *lua.LState, n *event.NoteEvent) *lua.LTable {
	tbl := L.CreateTable(0, 6)
	switch {
	case n.Note.IsNoteOn():
		tbl.RawSetString("key", lua.LNumber(n.Note))
	case n.Note.IsNoteOff():
		tbl.RawSetString("key", lua.LString("off"))
	default:
		tbl.RawSetString("key", lua.LString("---"))
	}
	if n.Instrument != nil {
		tbl.RawSetString("instrument", lua.LNumber(*n.Instrument))
	}
	tbl.RawSetString("volume", lua.LNumber(n.Volume))
	tbl.RawSetString("panning", lua.LNumber(n.Panning))
	tbl.RawSetString("delay", lua.LNumber(n.Delay))
	if n.Glide != nil {
		tbl.RawSetString("glide", lua.LNumber(*n.Glide))
	}
	return tbl
}
