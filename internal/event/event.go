package event

import (
	"fmt"
	"strings"
)

// InstrumentID refers to a sample or patch in the sample pool.
type InstrumentID uint32

// ParameterID refers to a host parameter in a ParameterChangeEvent.
type ParameterID uint32

type NoteEvent struct {
	Note       Note
	Instrument *InstrumentID
	Glide      *float32
	Volume     float32 // [0, inf)
	Panning    float32 // [-1, 1]
	Delay      float32 // [0, 1], fraction of the enclosing event's duration
}

// NewNoteEvent returns a note event with default volume, centered panning and no delay.
func NewNoteEvent(note Note) NoteEvent {
	return NoteEvent{Note: note, Volume: 1}
}

// Clamp forces volume, panning and delay into their valid ranges.
func (e *NoteEvent) Clamp() {
	e.Volume = max(e.Volume, 0)
	e.Panning = min(max(e.Panning, -1), 1)
	e.Delay = min(max(e.Delay, 0), 1)
	if e.Glide != nil && *e.Glide < 0 {
		g := float32(0)
		e.Glide = &g
	}
}

func (e NoteEvent) Equal(o NoteEvent) bool {
	return e.Note == o.Note &&
		optEqual(e.Instrument, o.Instrument) &&
		optEqual(e.Glide, o.Glide) &&
		e.Volume == o.Volume && e.Panning == o.Panning && e.Delay == o.Delay
}

func (e NoteEvent) String() string {
	instrument := "NA"
	if e.Instrument != nil {
		instrument = fmt.Sprintf("#%02d", *e.Instrument)
	}
	return fmt.Sprintf("%s %s %.2f %.2f %.2f", e.Note, instrument, e.Volume, e.Panning, e.Delay)
}

type ParameterChangeEvent struct {
	Parameter *ParameterID
	Value     float32
}

func (e ParameterChangeEvent) String() string {
	if e.Parameter == nil {
		return fmt.Sprintf("NA %.3f", e.Value)
	}
	return fmt.Sprintf("%02d %.3f", *e.Parameter, e.Value)
}

// Event is either a vector of note events (one slot per voice, nil meaning no-op for
// that voice) or a single parameter change.
type Event struct {
	Notes           []*NoteEvent
	ParameterChange *ParameterChangeEvent
}

func NewNoteEvents(notes ...*NoteEvent) Event {
	return Event{Notes: notes}
}

func NewParameterChange(parameter *ParameterID, value float32) Event {
	return Event{ParameterChange: &ParameterChangeEvent{Parameter: parameter, Value: value}}
}

func (e Event) IsParameterChange() bool { return e.ParameterChange != nil }

// Clone returns a deep copy, so transforms can mutate the result freely.
func (e Event) Clone() Event {
	if e.ParameterChange != nil {
		pc := *e.ParameterChange
		return Event{ParameterChange: &pc}
	}
	if e.Notes == nil {
		return Event{}
	}
	notes := make([]*NoteEvent, len(e.Notes))
	for i, n := range e.Notes {
		if n != nil {
			c := *n
			notes[i] = &c
		}
	}
	return Event{Notes: notes}
}

func (e Event) Equal(o Event) bool {
	if (e.ParameterChange == nil) != (o.ParameterChange == nil) {
		return false
	}
	if e.ParameterChange != nil {
		return optEqual(e.ParameterChange.Parameter, o.ParameterChange.Parameter) &&
			e.ParameterChange.Value == o.ParameterChange.Value
	}
	if len(e.Notes) != len(o.Notes) {
		return false
	}
	for i := range e.Notes {
		a, b := e.Notes[i], o.Notes[i]
		if (a == nil) != (b == nil) {
			return false
		}
		if a != nil && !a.Equal(*b) {
			return false
		}
	}
	return true
}

func (e Event) String() string {
	if e.ParameterChange != nil {
		return e.ParameterChange.String()
	}
	parts := make([]string, len(e.Notes))
	for i, n := range e.Notes {
		if n == nil {
			parts[i] = "---"
		} else {
			parts[i] = n.String()
		}
	}
	return strings.Join(parts, " | ")
}

// PatternEvent is an event placed on the sample timeline. A nil Event is a rest.
type PatternEvent struct {
	Time     uint64
	Duration uint64
	Event    *Event
}

func (e PatternEvent) String() string {
	if e.Event == nil {
		return fmt.Sprintf("%d +%d: ---", e.Time, e.Duration)
	}
	return fmt.Sprintf("%d +%d: %s", e.Time, e.Duration, e.Event)
}

// Transform post-processes generated events, e.g. to route instruments or transpose.
type Transform func(*Event)

func optEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
