package audio

import (
	"math"
	"sort"
)

type changeKind int

const (
	changeSpeed changeKind = iota
	changeVolume
	changePanning
)

type change struct {
	at    uint64
	kind  changeKind
	value float64
	glide float32
}

const noStop = math.MaxUint64

type voice struct {
	id     VoiceID
	sample *Sample
	ctx    PlaybackContext
	step   float64 // source frames per output frame at speed 1
	rate   float64
	start  uint64
	stopAt uint64

	pos         float64
	speed       float64
	targetSpeed float64
	glideMul    float64
	volume      float32
	panning     float32

	fadeFrames int
	fadeLeft   int
	fading     bool
	started    bool
	done       bool

	changes []change
}

func newVoice(id VoiceID, sample *Sample, outRate int, opts PlaybackOptions, at uint64, ctx PlaybackContext) *voice {
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}
	step := 1.0
	if outRate > 0 && sample.SampleRate > 0 {
		step = float64(sample.SampleRate) / float64(outRate)
	}
	return &voice{
		id:          id,
		sample:      sample,
		ctx:         ctx,
		step:        step,
		rate:        float64(outRate),
		start:       at,
		stopAt:      noStop,
		speed:       speed,
		targetSpeed: speed,
		volume:      opts.Volume,
		panning:     clampPanning(opts.Panning),
		fadeFrames:  int(opts.FadeOut.Seconds() * float64(outRate)),
		glideMul:    1,
	}
}

// push keeps changes ordered by time; equal times apply in arrival order.
func (v *voice) push(c change) {
	i := sort.Search(len(v.changes), func(i int) bool { return v.changes[i].at > c.at })
	v.changes = append(v.changes, change{})
	copy(v.changes[i+1:], v.changes[i:])
	v.changes[i] = c
}

func (v *voice) apply(c change) {
	switch c.kind {
	case changeSpeed:
		if c.value <= 0 {
			return
		}
		v.targetSpeed = c.value
		glide := float64(c.glide)
		if glide <= 0 || math.IsInf(glide, 1) || math.IsNaN(glide) {
			v.speed = c.value
			v.glideMul = 1
			return
		}
		v.glideMul = math.Exp2(glide / v.rate / 12)
	case changeVolume:
		v.volume = float32(c.value)
	case changePanning:
		v.panning = clampPanning(float32(c.value))
	}
}

// render mixes this voice into dst, whose first frame is output frame pos.
func (v *voice) render(dst []float32, pos uint64) {
	frames := len(dst) / 2
	data := v.sample.Frames
	last := v.sample.Len() - 1
	for i := 0; i < frames && !v.done; i++ {
		t := pos + uint64(i)
		if t < v.start && !v.started {
			continue
		}
		v.started = true
		for len(v.changes) > 0 && v.changes[0].at <= t {
			v.apply(v.changes[0])
			v.changes = v.changes[1:]
		}
		if !v.fading && t >= v.stopAt {
			v.fading = true
			v.fadeLeft = v.fadeFrames
		}
		gain := v.volume
		if v.fading {
			if v.fadeLeft <= 0 {
				v.done = true
				break
			}
			gain *= float32(v.fadeLeft) / float32(v.fadeFrames)
			v.fadeLeft--
		}

		idx := int(v.pos)
		if idx >= last {
			v.done = true
			break
		}
		frac := float32(v.pos - float64(idx))
		l := data[idx*2]*(1-frac) + data[idx*2+2]*frac
		r := data[idx*2+1]*(1-frac) + data[idx*2+3]*frac
		lg, rg := panGains(v.panning)
		dst[i*2] += l * gain * lg
		dst[i*2+1] += r * gain * rg

		v.advanceGlide()
		v.pos += v.speed * v.step
	}
}

func (v *voice) advanceGlide() {
	if v.speed == v.targetSpeed {
		return
	}
	if v.glideMul <= 1 {
		v.speed = v.targetSpeed
		return
	}
	if v.targetSpeed > v.speed {
		v.speed *= v.glideMul
		if v.speed >= v.targetSpeed {
			v.speed = v.targetSpeed
		}
		return
	}
	v.speed /= v.glideMul
	if v.speed <= v.targetSpeed {
		v.speed = v.targetSpeed
	}
}

func panGains(panning float32) (float32, float32) {
	l, r := float32(1), float32(1)
	if panning > 0 {
		l = 1 - panning
	} else if panning < 0 {
		r = 1 + panning
	}
	return l, r
}

func clampPanning(p float32) float32 {
	if p < -1 {
		return -1
	}
	if p > 1 {
		return 1
	}
	return p
}
