package emitter

import (
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/parameter"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

// Pulse is one tick of a rhythm: its value and its length in steps.
type Pulse struct {
	Value    float64
	StepTime float64
}

// Emitter produces events one pulse at a time.
type Emitter interface {
	SetTimeBase(tb timebase.TimeBase)
	SetTriggerEvent(ev *event.Event)
	SetParameters(set *parameter.Set)
	// Run returns the events for the pulse, or nil when emit is false.
	Run(pulse Pulse, emit bool) []event.Event
	// Advance moves past the pulse without producing events.
	Advance(pulse Pulse, emit bool)
	Duplicate() Emitter
	Reset()
}

// normalize inserts note-offs for voices that sounded in the previous note vector but are
// left empty in ev, and returns the note-ons of ev as the new state.
func normalize(ev *event.Event, state []*event.NoteEvent) []*event.NoteEvent {
	if ev.IsParameterChange() {
		return state
	}
	n := max(len(state), len(ev.Notes))
	for len(ev.Notes) < n {
		ev.Notes = append(ev.Notes, nil)
	}
	next := make([]*event.NoteEvent, n)
	for i, cur := range ev.Notes {
		var prev *event.NoteEvent
		if i < len(state) {
			prev = state[i]
		}
		if prev != nil && (cur == nil || cur.Note.IsEmpty()) {
			off := event.NoteEvent{Note: event.NoteOff, Instrument: prev.Instrument, Volume: 1}
			ev.Notes[i] = &off
			continue
		}
		if cur != nil && cur.Note.IsNoteOn() {
			c := *cur
			next[i] = &c
		}
	}
	return next
}

func cloneState(state []*event.NoteEvent) []*event.NoteEvent {
	if state == nil {
		return nil
	}
	out := make([]*event.NoteEvent, len(state))
	for i, n := range state {
		if n != nil {
			c := *n
			out[i] = &c
		}
	}
	return out
}
