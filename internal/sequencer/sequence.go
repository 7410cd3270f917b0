package sequencer

import (
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

// Sequence plays phrases one after another and loops at the end. Each slot index
// is one polyphonic voice group across all phrases.
type Sequence struct {
	timeBase     timebase.TimeBase
	phrases      []*Phrase
	index        int
	phraseStart  uint64
	sampleOffset uint64
	active       []Pattern
	heads        []*event.PatternEvent
	voices       []int
}

func NewSequence(tb timebase.TimeBase, phrases []*Phrase) *Sequence {
	s := &Sequence{timeBase: tb, phrases: phrases}
	for _, ph := range phrases {
		ph.SetTimeBase(tb)
	}
	s.Reset()
	return s
}

func (s *Sequence) TimeBase() timebase.TimeBase { return s.timeBase }
func (s *Sequence) Phrases() []*Phrase          { return s.phrases }
func (s *Sequence) CurrentPhraseIndex() int     { return s.index }

func (s *Sequence) CurrentPhrase() *Phrase {
	if len(s.phrases) == 0 {
		return nil
	}
	return s.phrases[s.index]
}

// PhraseSlotCount returns the largest slot count of all phrases.
func (s *Sequence) PhraseSlotCount() int {
	n := 0
	for _, ph := range s.phrases {
		n = max(n, len(ph.slots))
	}
	return n
}

// ActivePatterns returns the patterns currently playing, indexed by slot. Stopped slots are nil.
func (s *Sequence) ActivePatterns() []Pattern { return s.active }

func (s *Sequence) SetTimeBase(tb timebase.TimeBase) {
	s.timeBase = tb
	for _, ph := range s.phrases {
		ph.SetTimeBase(tb)
	}
}

func (s *Sequence) SetSampleOffset(offset uint64) {
	s.sampleOffset = offset
	for _, p := range s.active {
		if p != nil {
			p.SetSampleOffset(offset + s.phraseStart)
		}
	}
}

func (s *Sequence) Reset() {
	slots := s.PhraseSlotCount()
	s.index = 0
	s.phraseStart = 0
	s.active = make([]Pattern, slots)
	s.heads = make([]*event.PatternEvent, slots)
	s.voices = make([]int, slots)
	if len(s.phrases) == 0 {
		return
	}
	for i, slot := range s.phrases[0].slots {
		if slot.Kind == SlotPattern && slot.Pattern != nil {
			s.startPattern(i, slot.Pattern)
		}
	}
}

func (s *Sequence) startPattern(slot int, p Pattern) {
	p.Reset()
	p.SetSampleOffset(s.sampleOffset + s.phraseStart)
	s.active[slot] = p
	s.heads[slot] = nil
}

// ConsumeEventsUntilTime passes all events starting before time to consume, in time order.
func (s *Sequence) ConsumeEventsUntilTime(time uint64, consume func(slot int, ev event.PatternEvent)) {
	s.run(time, consume)
}

// AdvanceUntilTime seeks to time without producing events.
func (s *Sequence) AdvanceUntilTime(time uint64) {
	s.run(time, nil)
}

func (s *Sequence) run(time uint64, consume func(slot int, ev event.PatternEvent)) {
	if len(s.phrases) == 0 {
		return
	}
	for {
		phraseEnd := s.sampleOffset + s.phraseStart + s.phrases[s.index].Length()
		limit := min(time, phraseEnd)
		if consume != nil {
			s.consume(limit, consume)
		} else {
			s.advance(limit)
		}
		if time <= phraseEnd || s.phrases[s.index].Length() == 0 {
			return
		}
		s.nextPhrase(phraseEnd, consume)
	}
}

func (s *Sequence) consume(limit uint64, consume func(slot int, ev event.PatternEvent)) {
	for {
		best := -1
		for i, p := range s.active {
			if p == nil {
				continue
			}
			if s.heads[i] == nil {
				if ev, ok := p.RunUntilTime(limit); ok {
					s.heads[i] = &ev
				}
			}
			if s.heads[i] != nil && (best < 0 || s.heads[i].Time < s.heads[best].Time) {
				best = i
			}
		}
		if best < 0 {
			return
		}
		ev := *s.heads[best]
		s.heads[best] = nil
		if ev.Event != nil && !ev.Event.IsParameterChange() {
			s.voices[best] = max(s.voices[best], len(ev.Event.Notes))
		}
		consume(best, ev)
	}
}

func (s *Sequence) advance(limit uint64) {
	for i, p := range s.active {
		if p == nil {
			continue
		}
		if s.heads[i] != nil && s.heads[i].Time < limit {
			s.heads[i] = nil
		}
		p.AdvanceUntilTime(limit)
		s.voices[i] = 0
	}
}

// nextPhrase switches to the following phrase at time at. Slots whose pattern stops,
// changes or restarts get a note-off for every voice they used.
func (s *Sequence) nextPhrase(at uint64, consume func(slot int, ev event.PatternEvent)) {
	s.phraseStart += s.phrases[s.index].Length()
	s.index = (s.index + 1) % len(s.phrases)
	next := s.phrases[s.index]
	for i := range s.active {
		slot := StopSlot
		if i < len(next.slots) {
			slot = next.slots[i]
		}
		switch slot.Kind {
		case SlotContinue:
			continue
		case SlotStop:
			s.stopSlot(i, at, consume)
			s.active[i] = nil
			s.heads[i] = nil
		case SlotPattern:
			if slot.Pattern == nil {
				s.stopSlot(i, at, consume)
				s.active[i] = nil
				s.heads[i] = nil
				continue
			}
			s.stopSlot(i, at, consume)
			s.startPattern(i, slot.Pattern)
		}
	}
}

func (s *Sequence) stopSlot(slot int, at uint64, consume func(slot int, ev event.PatternEvent)) {
	voices := s.voices[slot]
	s.voices[slot] = 0
	if consume == nil || voices == 0 || s.active[slot] == nil {
		return
	}
	notes := make([]*event.NoteEvent, voices)
	for i := range notes {
		off := event.NewNoteEvent(event.NoteOff)
		notes[i] = &off
	}
	ev := event.NewNoteEvents(notes...)
	consume(slot, event.PatternEvent{Time: at, Event: &ev})
}

// Duplicate returns an independent copy. Patterns shared between phrases stay shared
// within the copy.
func (s *Sequence) Duplicate() *Sequence {
	copies := make(map[Pattern]Pattern)
	dup := func(p Pattern) Pattern {
		if p == nil {
			return nil
		}
		if c, ok := copies[p]; ok {
			return c
		}
		c := p.Duplicate()
		copies[p] = c
		return c
	}
	c := &Sequence{
		timeBase:     s.timeBase,
		index:        s.index,
		phraseStart:  s.phraseStart,
		sampleOffset: s.sampleOffset,
		active:       make([]Pattern, len(s.active)),
		heads:        make([]*event.PatternEvent, len(s.heads)),
		voices:       append([]int(nil), s.voices...),
	}
	for _, ph := range s.phrases {
		slots := make([]Slot, len(ph.slots))
		for i, slot := range ph.slots {
			slots[i] = Slot{Kind: slot.Kind, Pattern: dup(slot.Pattern)}
		}
		c.phrases = append(c.phrases, &Phrase{timeBase: ph.timeBase, slots: slots, length: ph.length})
	}
	for i, p := range s.active {
		c.active[i] = dup(p)
		if s.heads[i] != nil {
			h := *s.heads[i]
			c.heads[i] = &h
		}
	}
	return c
}
