package event

import (
	"fmt"
	"strconv"
	"strings"
)

// Note is a MIDI-like note value. C0 is 0, C4 is 48 and C5 is 60.
// Values 0xFE and 0xFF are the empty and note-off sentinels.
type Note uint8

const (
	NoteC4    Note = 48
	NoteC5    Note = 60
	NoteA4    Note = 57
	NoteEmpty Note = 0xFE
	NoteOff   Note = 0xFF

	maxNote Note = 127
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

func (n Note) IsNoteOn() bool  { return n <= maxNote }
func (n Note) IsNoteOff() bool { return n == NoteOff }
func (n Note) IsEmpty() bool   { return n == NoteEmpty }

func (n Note) String() string {
	switch {
	case n == NoteOff:
		return "OFF"
	case n == NoteEmpty || n > maxNote:
		return "---"
	}
	return noteNames[n%12] + strconv.Itoa(int(n/12))
}

// NoteFromNumber converts a 0-127 note number.
func NoteFromNumber(v int) (Note, error) {
	if v < 0 || v > int(maxNote) {
		return NoteEmpty, fmt.Errorf("note number %d out of range [0, 127]", v)
	}
	return Note(v), nil
}

// ParseNote parses note names such as "c4", "C#4", "db5", "off" and "---".
// The octave defaults to 4 when omitted.
func ParseNote(s string) (Note, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	switch str {
	case "", "-", "--", "---", "empty":
		return NoteEmpty, nil
	case "off", "~", "=":
		return NoteOff, nil
	}
	base, ok := noteOffsets[str[0]]
	if !ok {
		return NoteEmpty, fmt.Errorf("invalid note %q", s)
	}
	i := 1
accidentals:
	for ; i < len(str); i++ {
		switch str[i] {
		case '#':
			base++
		case 'b':
			base--
		default:
			break accidentals
		}
	}
	octave := 4
	if i < len(str) {
		o, err := strconv.Atoi(str[i:])
		if err != nil {
			return NoteEmpty, fmt.Errorf("invalid note octave in %q", s)
		}
		octave = o
	}
	return NoteFromNumber(octave*12 + base)
}
