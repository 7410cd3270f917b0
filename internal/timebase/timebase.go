package timebase

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidTimeBase = errors.New("invalid time base")

// TimeBase converts between musical beats, seconds and sample frames.
// It is a plain value and safe to copy and share between goroutines.
type TimeBase struct {
	BeatsPerMin   float32
	BeatsPerBar   uint32
	SamplesPerSec uint32
}

func New(beatsPerMin float32, beatsPerBar uint32, samplesPerSec uint32) (TimeBase, error) {
	tb := TimeBase{BeatsPerMin: beatsPerMin, BeatsPerBar: beatsPerBar, SamplesPerSec: samplesPerSec}
	if err := tb.Validate(); err != nil {
		return TimeBase{}, err
	}
	return tb, nil
}

// Validate reports an error unless all rates are strictly positive.
func (tb TimeBase) Validate() error {
	if !(tb.BeatsPerMin > 0) || math.IsInf(float64(tb.BeatsPerMin), 0) {
		return fmt.Errorf("%w: beats per minute must be positive, got %v", ErrInvalidTimeBase, tb.BeatsPerMin)
	}
	if tb.BeatsPerBar == 0 {
		return fmt.Errorf("%w: beats per bar must be positive", ErrInvalidTimeBase)
	}
	if tb.SamplesPerSec == 0 {
		return fmt.Errorf("%w: samples per second must be positive", ErrInvalidTimeBase)
	}
	return nil
}

func (tb TimeBase) SamplesPerBeat() float64 {
	return 60.0 / float64(tb.BeatsPerMin) * float64(tb.SamplesPerSec)
}

func (tb TimeBase) SamplesPerBar() float64 {
	return tb.SamplesPerBeat() * float64(tb.BeatsPerBar)
}

// BeatsToExactSamples returns the unrounded sample position of the given beat.
func (tb TimeBase) BeatsToExactSamples(beats float64) float64 {
	return beats * tb.SamplesPerBeat()
}

func (tb TimeBase) BeatsToSamples(beats float64) uint64 {
	return roundSamples(tb.BeatsToExactSamples(beats))
}

func (tb TimeBase) SamplesToBeats(samples uint64) float64 {
	return float64(samples) / tb.SamplesPerBeat()
}

func (tb TimeBase) SecondsToSamples(seconds float64) uint64 {
	return roundSamples(seconds * float64(tb.SamplesPerSec))
}

func (tb TimeBase) SamplesToSeconds(samples uint64) float64 {
	return float64(samples) / float64(tb.SamplesPerSec)
}

// Display formats a sample position as 1-based "bar:beat.fraction".
func (tb TimeBase) Display(sampleTime uint64) string {
	beats := tb.SamplesToBeats(sampleTime)
	bar := uint64(beats / float64(tb.BeatsPerBar))
	inBar := beats - float64(bar)*float64(tb.BeatsPerBar)
	beat := math.Floor(inBar)
	frac := int((inBar - beat) * 1000)
	return fmt.Sprintf("%d:%d.%03d", bar+1, int(beat)+1, frac)
}

func roundSamples(exact float64) uint64 {
	if exact <= 0 || math.IsNaN(exact) {
		return 0
	}
	return uint64(math.Round(exact))
}
