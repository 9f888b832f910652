package media

import (
	"sync"
	"time"
)

// ClockPlayer is a headless Player whose position advances with the wall
// clock while playing. The daemon drives it in place of a browser video
// element; tests use it to script readiness and buffering transitions.
type ClockPlayer struct {
	mu       sync.Mutex
	ready    bool
	playing  bool
	rate     float64
	position float64
	lastTick time.Time

	playErr     error
	onReady     []func()
	onBuffering []func(bool)
}

func NewClockPlayer() *ClockPlayer {
	return &ClockPlayer{ready: true, rate: 1.0}
}

// NewPendingClockPlayer starts without loaded metadata; calls against it
// must be deferred until MarkReady.
func NewPendingClockPlayer() *ClockPlayer {
	return &ClockPlayer{rate: 1.0}
}

// FailNextPlay makes every following Play call return err until cleared,
// mimicking an autoplay rejection.
func (p *ClockPlayer) FailNextPlay(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playErr = err
}

func (p *ClockPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playErr != nil {
		return p.playErr
	}
	if !p.playing {
		p.playing = true
		p.lastTick = time.Now()
	}
	return nil
}

func (p *ClockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	p.playing = false
}

func (p *ClockPlayer) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = seconds
	p.lastTick = time.Now()
}

func (p *ClockPlayer) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	p.rate = rate
}

func (p *ClockPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	return p.position
}

func (p *ClockPlayer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

func (p *ClockPlayer) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *ClockPlayer) OnReady(fn func()) {
	p.mu.Lock()
	ready := p.ready
	if !ready {
		p.onReady = append(p.onReady, fn)
	}
	p.mu.Unlock()

	if ready {
		fn()
	}
}

func (p *ClockPlayer) OnBuffering(fn func(bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onBuffering = append(p.onBuffering, fn)
}

// MarkReady simulates media metadata finishing to load.
func (p *ClockPlayer) MarkReady() {
	p.mu.Lock()
	if p.ready {
		p.mu.Unlock()
		return
	}
	p.ready = true
	handlers := p.onReady
	p.onReady = nil
	p.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// ReportBuffering simulates a buffering/resume transition of the element.
func (p *ClockPlayer) ReportBuffering(isBuffering bool) {
	p.mu.Lock()
	handlers := append([]func(bool){}, p.onBuffering...)
	p.mu.Unlock()

	for _, fn := range handlers {
		fn(isBuffering)
	}
}

func (p *ClockPlayer) advanceLocked() {
	if !p.playing {
		return
	}
	now := time.Now()
	p.position += now.Sub(p.lastTick).Seconds() * p.rate
	p.lastTick = now
}
