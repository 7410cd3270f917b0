package emitter

import (
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/parameter"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

// Fixed cycles through a static list of events.
type Fixed struct {
	events []event.Event
	state  []*event.NoteEvent
	step   int
}

func NewFixed(events []event.Event) *Fixed {
	return &Fixed{events: events}
}

func (f *Fixed) SetTimeBase(timebase.TimeBase) {}
func (f *Fixed) SetTriggerEvent(*event.Event)  {}
func (f *Fixed) SetParameters(*parameter.Set)  {}

func (f *Fixed) Run(_ Pulse, emit bool) []event.Event {
	if !emit || len(f.events) == 0 {
		return nil
	}
	ev := f.events[f.step%len(f.events)].Clone()
	f.step++
	f.state = normalize(&ev, f.state)
	return []event.Event{ev}
}

func (f *Fixed) Advance(_ Pulse, emit bool) {
	if emit {
		f.step++
	}
}

func (f *Fixed) Duplicate() Emitter {
	return &Fixed{events: f.events, state: cloneState(f.state), step: f.step}
}

func (f *Fixed) Reset() {
	f.step = 0
	f.state = nil
}
