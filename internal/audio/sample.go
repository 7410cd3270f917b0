package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
)

var ErrUnsupportedFormat = errors.New("unsupported sample format")

// Sample is a decoded, interleaved stereo float32 buffer.
type Sample struct {
	Name       string
	SampleRate int
	Frames     []float32
}

// NewSample wraps already decoded interleaved stereo frames.
func NewSample(name string, sampleRate int, frames []float32) *Sample {
	return &Sample{Name: name, SampleRate: sampleRate, Frames: frames}
}

// Len returns the number of stereo frames.
func (s *Sample) Len() int { return len(s.Frames) / 2 }

// Duration in seconds at the sample's own rate.
func (s *Sample) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.Len()) / float64(s.SampleRate)
}

type f32Stream interface {
	io.Reader
	SampleRate() int
}

// DecodeSample decodes a wav, mp3 or ogg/vorbis file. The format is picked from
// the extension of name.
func DecodeSample(r io.Reader, name string) (*Sample, error) {
	var (
		stream f32Stream
		err    error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		stream, err = wav.DecodeF32(r)
	case ".mp3":
		stream, err = mp3.DecodeF32(r)
	case ".ogg", ".oga":
		stream, err = vorbis.DecodeF32(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	raw, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	frames := make([]float32, len(raw)/4)
	for i := range frames {
		frames[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	if len(frames)%2 != 0 {
		frames = frames[:len(frames)-1]
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return NewSample(base, stream.SampleRate(), frames), nil
}

// LoadSample reads and decodes the file at path.
func LoadSample(path string) (*Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeSample(bytes.NewReader(data), path)
}
