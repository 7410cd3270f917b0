package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to an io.Reader producing interleaved
// stereo float32 little-endian frames, the format both output devices accept.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

// EbitenDevice plays a Mixer through the ebiten audio context.
type EbitenDevice struct {
	mixer  *Mixer
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioContextErr  error
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioContextErr != nil {
		return nil, audioContextErr
	}
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

func NewEbitenDevice(mixer *Mixer, bufferSize time.Duration) (*EbitenDevice, error) {
	ctx, err := sharedAudioContext(int(mixer.SampleRate()))
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(mixer)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	if bufferSize > 0 {
		pl.SetBufferSize(bufferSize)
	}
	return &EbitenDevice{
		mixer:  mixer,
		player: pl,
		reader: reader,
	}, nil
}

func (d *EbitenDevice) Start() error {
	d.player.Play()
	d.mixer.SetSuspended(false)
	return nil
}

func (d *EbitenDevice) Suspend() error {
	d.player.Pause()
	d.mixer.SetSuspended(true)
	return nil
}

func (d *EbitenDevice) Resume() error { return d.Start() }

// Position returns the current playback position (what the listener actually hears).
func (d *EbitenDevice) Position() time.Duration {
	return d.player.Position()
}

func (d *EbitenDevice) Close() error {
	d.player.Pause()
	d.mixer.SetSuspended(true)
	if err := d.player.Close(); err != nil {
		return err
	}
	return d.reader.Close()
}
