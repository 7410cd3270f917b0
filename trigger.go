package pattrns

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/pattrns-go/internal/event"
)

// TriggerEventFromMIDI converts a MIDI note-on into a trigger event for
// SetTriggerEvent. Velocity maps to volume. ok is false for all other
// messages, including note-ons with zero velocity.
func TriggerEventFromMIDI(msg midi.Message, instrument *InstrumentID) (ev *Event, ok bool) {
	var channel, key, velocity uint8
	if !msg.GetNoteOn(&channel, &key, &velocity) || velocity == 0 {
		return nil, false
	}
	note, err := event.NoteFromNumber(int(key))
	if err != nil {
		return nil, false
	}
	ne := event.NewNoteEvent(note)
	ne.Volume = float32(velocity) / 127
	if instrument != nil {
		id := *instrument
		ne.Instrument = &id
	}
	trigger := event.NewNoteEvents(&ne)
	return &trigger, true
}
