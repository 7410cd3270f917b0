package pattrns

import (
	"encoding/binary"
	"math"

	"github.com/cbegin/pattrns-go/internal/audio"
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/player"
)

const renderBlockFrames = 512

// SequenceEvent is a pattern event together with the phrase slot it came from.
type SequenceEvent struct {
	Slot int
	PatternEvent
}

// RenderEvents collects all events of seq which start before until.
func RenderEvents(seq *Sequence, until uint64) []SequenceEvent {
	var out []SequenceEvent
	seq.ConsumeEventsUntilTime(until, func(slot int, ev event.PatternEvent) {
		out = append(out, SequenceEvent{Slot: slot, PatternEvent: ev})
	})
	return out
}

// SamplePool holds the samples RenderSamples plays.
type SamplePool = player.SamplePool

func NewSamplePool() *SamplePool { return player.NewSamplePool() }

// RenderSamples plays seq into interleaved stereo frames at the sequence's
// sample rate, without an output device.
func RenderSamples(seq *Sequence, pool *SamplePool, seconds float64, opts ...Option) []float32 {
	cfg := applyOptions(opts)
	tb := seq.TimeBase()
	mixer := audio.NewMixer(int(tb.SamplesPerSec), audio.WithGain(cfg.gain))
	sp := player.NewSamplePlayer(mixer, pool, cfg.playerOptions()...)
	frames := tb.SecondsToSamples(seconds)
	out := make([]float32, frames*2)
	for pos := uint64(0); pos < frames; {
		n := min(renderBlockFrames, frames-pos)
		sp.RunUntilTime(seq, 0, pos+n)
		mixer.Process(out[pos*2 : (pos+n)*2])
		pos += n
	}
	return out
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
