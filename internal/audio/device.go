package audio

import (
	"fmt"
	"strings"
	"time"
)

const (
	OutputEbiten = "ebiten"
	OutputOto    = "oto"
)

// Device drives a Mixer from an audio output.
type Device interface {
	Start() error
	Suspend() error
	Resume() error
	Close() error
}

// OpenDevice creates the named output device for mixer. An empty name picks
// the ebiten output.
func OpenDevice(name string, mixer *Mixer, bufferSize time.Duration) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", OutputEbiten:
		return NewEbitenDevice(mixer, bufferSize)
	case OutputOto:
		return NewOtoDevice(mixer, bufferSize)
	default:
		return nil, fmt.Errorf("invalid output %q (expected %s|%s)", name, OutputEbiten, OutputOto)
	}
}
