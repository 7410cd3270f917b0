package player

import "github.com/cbegin/pattrns-go/internal/audio"

// Backend plays samples at absolute output frame positions. audio.Mixer
// implements it; tests use a recording fake.
type Backend interface {
	SampleRate() uint32
	OutputPosition() uint64
	Suspended() bool
	Play(sample *audio.Sample, opts audio.PlaybackOptions, at uint64, ctx audio.PlaybackContext) (audio.VoiceID, error)
	Stop(id audio.VoiceID, at uint64) error
	SetSpeed(id audio.VoiceID, speed float64, glide float32, at uint64) error
	SetVolume(id audio.VoiceID, volume float32, at uint64) error
	SetPanning(id audio.VoiceID, panning float32, at uint64) error
	StopAll() error
}

var _ Backend = (*audio.Mixer)(nil)
