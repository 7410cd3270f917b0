package event

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseNoteEvent parses a note name optionally followed by properties:
// "#N" instrument, "vX" volume, "pX" panning, "dX" delay and "gX" glide,
// e.g. "c4 #2 v0.5 p-0.5 d0.25".
func ParseNoteEvent(s string) (NoteEvent, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return NoteEvent{Note: NoteEmpty, Volume: 1}, nil
	}
	note, err := ParseNote(fields[0])
	if err != nil {
		return NoteEvent{}, err
	}
	ev := NewNoteEvent(note)
	for _, f := range fields[1:] {
		if len(f) < 2 {
			return NoteEvent{}, fmt.Errorf("invalid note property %q in %q", f, s)
		}
		prefix, rest := f[0], f[1:]
		if prefix == '#' {
			id, err := strconv.ParseUint(rest, 10, 32)
			if err != nil {
				return NoteEvent{}, fmt.Errorf("invalid instrument %q in %q", f, s)
			}
			instrument := InstrumentID(id)
			ev.Instrument = &instrument
			continue
		}
		v, err := strconv.ParseFloat(rest, 32)
		if err != nil {
			return NoteEvent{}, fmt.Errorf("invalid note property %q in %q", f, s)
		}
		switch prefix {
		case 'v':
			ev.Volume = float32(v)
		case 'p':
			ev.Panning = float32(v)
		case 'd':
			ev.Delay = float32(v)
		case 'g':
			glide := float32(v)
			ev.Glide = &glide
		default:
			return NoteEvent{}, fmt.Errorf("unknown note property %q in %q", f, s)
		}
	}
	ev.Clamp()
	return ev, nil
}
