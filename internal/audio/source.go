package audio

import (
	"errors"
	"sync"
)

// Device errors are fatal to a session and surfaced to the user with a
// cause-specific message; there is no automatic retry.
var (
	ErrPermissionDenied  = errors.New("audio device permission denied")
	ErrDeviceNotFound    = errors.New("audio device not found")
	ErrDeviceUnsupported = errors.New("audio device unsupported")
)

// Source yields fixed-size blocks of float32 mono samples at the device's
// native sample rate. The rate is whatever the device actually delivers and
// is not guaranteed to equal any requested rate.
type Source interface {
	// Start begins delivery. onBlock is invoked on the capture cadence and
	// must be fast and non-blocking; implementations may drop blocks if the
	// callback stalls.
	Start(onBlock func(block []float32)) error
	SampleRate() int
	Close() error
}

// PushSource is a Source fed externally, one block at a time. It backs the
// WebRTC ingress (decoded opus frames) and tests.
type PushSource struct {
	rate int

	mu      sync.Mutex
	onBlock func([]float32)
	started bool
	closed  bool
}

func NewPushSource(sampleRate int) *PushSource {
	return &PushSource{rate: sampleRate}
}

func (p *PushSource) SampleRate() int { return p.rate }

func (p *PushSource) Start(onBlock func(block []float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrDeviceNotFound
	}
	if p.started {
		return errors.New("source already started")
	}
	p.started = true
	p.onBlock = onBlock
	return nil
}

// Push delivers one block to the registered callback. Blocks pushed before
// Start or after Close are discarded.
func (p *PushSource) Push(block []float32) {
	p.mu.Lock()
	cb := p.onBlock
	closed := p.closed
	p.mu.Unlock()
	if cb != nil && !closed {
		cb(block)
	}
}

// Close is idempotent.
func (p *PushSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.onBlock = nil
	return nil
}
