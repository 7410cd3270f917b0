package sequencer

import (
	"github.com/cbegin/pattrns-go/internal/timebase"
)

type SlotKind int

const (
	SlotPattern SlotKind = iota
	// SlotStop silences the slot for the duration of the phrase.
	SlotStop
	// SlotContinue keeps the pattern of the previous phrase running.
	SlotContinue
)

type Slot struct {
	Kind    SlotKind
	Pattern Pattern
}

func PatternSlot(p Pattern) Slot { return Slot{Kind: SlotPattern, Pattern: p} }

var (
	StopSlot     = Slot{Kind: SlotStop}
	ContinueSlot = Slot{Kind: SlotContinue}
)

// Phrase plays a set of patterns in parallel for a fixed length.
type Phrase struct {
	timeBase timebase.TimeBase
	slots    []Slot
	length   timebase.Unit
}

func NewPhrase(tb timebase.TimeBase, slots []Slot, length timebase.Unit) *Phrase {
	for _, s := range slots {
		if s.Kind == SlotPattern && s.Pattern != nil {
			s.Pattern.SetTimeBase(tb)
		}
	}
	return &Phrase{timeBase: tb, slots: slots, length: length}
}

func (ph *Phrase) Slots() []Slot { return ph.slots }

// Length returns the phrase length in samples.
func (ph *Phrase) Length() uint64 {
	return round(ph.length.Samples(ph.timeBase))
}

func (ph *Phrase) SetTimeBase(tb timebase.TimeBase) {
	ph.timeBase = tb
	for _, s := range ph.slots {
		if s.Kind == SlotPattern && s.Pattern != nil {
			s.Pattern.SetTimeBase(tb)
		}
	}
}
