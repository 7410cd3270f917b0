package pattrns

import (
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/parameter"
	"github.com/cbegin/pattrns-go/internal/player"
	"github.com/cbegin/pattrns-go/internal/sequencer"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

type (
	TimeBase      = timebase.TimeBase
	Unit          = timebase.Unit
	Note          = event.Note
	InstrumentID  = event.InstrumentID
	NoteEvent     = event.NoteEvent
	Event         = event.Event
	PatternEvent  = event.PatternEvent
	Parameter     = parameter.Parameter
	NewNoteAction = player.NewNoteAction
	Phrase        = sequencer.Phrase
	Sequence      = sequencer.Sequence
	Slot          = sequencer.Slot
)

var (
	StopSlot     = sequencer.StopSlot
	ContinueSlot = sequencer.ContinueSlot
)

func NewTimeBase(beatsPerMin float32, beatsPerBar, samplesPerSec uint32) (TimeBase, error) {
	return timebase.New(beatsPerMin, beatsPerBar, samplesPerSec)
}

func Beats(v float64) Unit   { return timebase.Beats(v) }
func Bars(v float64) Unit    { return timebase.Bars(v) }
func Seconds(v float64) Unit { return timebase.Seconds(v) }

// ParseNote parses note names such as "c4", "C#5", "off" or "---".
func ParseNote(s string) (Note, error) { return event.ParseNote(s) }

// NewPhrase plays slots in parallel for length.
func NewPhrase(tb TimeBase, slots []Slot, length Unit) *Phrase {
	return sequencer.NewPhrase(tb, slots, length)
}

// NewSequence loops over phrases.
func NewSequence(tb TimeBase, phrases ...*Phrase) *Sequence {
	return sequencer.NewSequence(tb, phrases)
}
