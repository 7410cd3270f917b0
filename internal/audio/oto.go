package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	otoContextOnce sync.Once
	otoContext     *oto.Context
	otoContextErr  error
	otoSampleRate  int
)

// oto allows a single context per process.
func sharedOtoContext(sampleRate int, bufferSize time.Duration) (*oto.Context, error) {
	otoContextOnce.Do(func() {
		otoSampleRate = sampleRate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   bufferSize,
		})
		if err != nil {
			otoContextErr = err
			return
		}
		<-ready
		otoContext = ctx
	})
	if otoContextErr != nil {
		return nil, otoContextErr
	}
	if otoSampleRate != sampleRate {
		return nil, fmt.Errorf("oto context already initialized at %d Hz (requested %d Hz)", otoSampleRate, sampleRate)
	}
	return otoContext, nil
}

// OtoDevice plays a Mixer directly through oto.
type OtoDevice struct {
	mixer   *Mixer
	context *oto.Context
	player  *oto.Player
}

func NewOtoDevice(mixer *Mixer, bufferSize time.Duration) (*OtoDevice, error) {
	ctx, err := sharedOtoContext(int(mixer.SampleRate()), bufferSize)
	if err != nil {
		return nil, err
	}
	return &OtoDevice{
		mixer:   mixer,
		context: ctx,
		player:  ctx.NewPlayer(NewStreamReader(mixer)),
	}, nil
}

func (d *OtoDevice) Start() error {
	d.player.Play()
	d.mixer.SetSuspended(false)
	return nil
}

// Suspend pauses the whole oto context, as a suspended OS audio session would.
func (d *OtoDevice) Suspend() error {
	if err := d.context.Suspend(); err != nil {
		return err
	}
	d.mixer.SetSuspended(true)
	return nil
}

func (d *OtoDevice) Resume() error {
	if err := d.context.Resume(); err != nil {
		return err
	}
	d.mixer.SetSuspended(false)
	return nil
}

func (d *OtoDevice) Close() error {
	d.player.Pause()
	d.mixer.SetSuspended(true)
	return d.player.Close()
}
