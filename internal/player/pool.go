package player

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cbegin/pattrns-go/internal/audio"
	"github.com/cbegin/pattrns-go/internal/event"
)

var ErrSampleNotFound = errors.New("sample not found")

// SamplePool holds decoded samples by instrument id. It is safe for concurrent
// use, so the scheduler can read from it while another goroutine loads or
// removes samples.
type SamplePool struct {
	samples sync.Map // event.InstrumentID -> *audio.Sample
	nextID  atomic.Uint32
}

func NewSamplePool() *SamplePool {
	return &SamplePool{}
}

// Load decodes the sample file at path and returns its new instrument id.
func (p *SamplePool) Load(path string) (event.InstrumentID, error) {
	s, err := audio.LoadSample(path)
	if err != nil {
		return 0, fmt.Errorf("load sample: %w", err)
	}
	return p.Insert(s), nil
}

// LoadBuffer decodes an encoded file buffer. name picks the decoder and is
// used to identify the sample in logs.
func (p *SamplePool) LoadBuffer(buf []byte, name string) (event.InstrumentID, error) {
	s, err := audio.DecodeSample(bytes.NewReader(buf), name)
	if err != nil {
		return 0, fmt.Errorf("load sample: %w", err)
	}
	return p.Insert(s), nil
}

// Insert adds an already decoded sample under a new unique id.
func (p *SamplePool) Insert(s *audio.Sample) event.InstrumentID {
	id := event.InstrumentID(p.nextID.Add(1) - 1)
	p.samples.Store(id, s)
	return id
}

func (p *SamplePool) Sample(id event.InstrumentID) (*audio.Sample, error) {
	v, ok := p.samples.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: instrument %d", ErrSampleNotFound, id)
	}
	return v.(*audio.Sample), nil
}

func (p *SamplePool) Remove(id event.InstrumentID) (*audio.Sample, bool) {
	v, ok := p.samples.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	return v.(*audio.Sample), true
}

// Retain keeps the samples for which keep returns true and drops all others.
func (p *SamplePool) Retain(keep func(event.InstrumentID) bool) {
	p.samples.Range(func(k, _ any) bool {
		if id := k.(event.InstrumentID); !keep(id) {
			p.samples.Delete(id)
		}
		return true
	})
}

func (p *SamplePool) Clear() {
	p.samples.Clear()
}

func (p *SamplePool) Len() int {
	n := 0
	p.samples.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
