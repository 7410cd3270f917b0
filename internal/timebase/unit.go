package timebase

import (
	"fmt"
	"strconv"
	"strings"
)

type UnitKind int

const (
	UnitSeconds UnitKind = iota
	UnitBeats
	UnitBars
)

// Unit is a step length, either absolute (seconds) or relative to the time base (beats, bars).
// Note fractions like "1/4" are expressed in beats, with one beat being a quarter note.
type Unit struct {
	Kind  UnitKind
	Value float64
}

func Seconds(v float64) Unit { return Unit{Kind: UnitSeconds, Value: v} }
func Beats(v float64) Unit   { return Unit{Kind: UnitBeats, Value: v} }
func Bars(v float64) Unit    { return Unit{Kind: UnitBars, Value: v} }

// Samples returns the exact length of the unit in sample frames.
func (u Unit) Samples(tb TimeBase) float64 {
	switch u.Kind {
	case UnitBeats:
		return tb.BeatsToExactSamples(u.Value)
	case UnitBars:
		return tb.BeatsToExactSamples(u.Value * float64(tb.BeatsPerBar))
	default:
		return u.Value * float64(tb.SamplesPerSec)
	}
}

func (u Unit) String() string {
	switch u.Kind {
	case UnitBeats:
		return strconv.FormatFloat(u.Value, 'g', -1, 64) + " beats"
	case UnitBars:
		return strconv.FormatFloat(u.Value, 'g', -1, 64) + " bars"
	default:
		return strconv.FormatFloat(u.Value, 'g', -1, 64) + " seconds"
	}
}

// ParseUnit parses step unit names: "ms", "seconds", "beats", "bars", "1/N" and
// triplet fractions "1/Nt".
func ParseUnit(name string) (Unit, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	switch s {
	case "ms":
		return Seconds(0.001), nil
	case "s", "sec", "seconds":
		return Seconds(1), nil
	case "beat", "beats":
		return Beats(1), nil
	case "bar", "bars":
		return Bars(1), nil
	}
	if rest, ok := strings.CutPrefix(s, "1/"); ok {
		triplet := false
		if trimmed, ok := strings.CutSuffix(rest, "t"); ok {
			triplet = true
			rest = trimmed
		}
		n, err := strconv.Atoi(rest)
		if err == nil && n > 0 && n&(n-1) == 0 {
			beats := 4.0 / float64(n)
			if triplet {
				beats = beats * 2.0 / 3.0
			}
			return Beats(beats), nil
		}
	}
	return Unit{}, fmt.Errorf("invalid step unit %q (expected ms|seconds|beats|bars|1/N|1/Nt)", name)
}
