package stream

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer decides when the next capture may run by calling fire.
// fire may be called from any goroutine.
type Pacer interface {
	// Start begins pacing.
	Start(fire func())

	// Next asks for one fire after a completed cycle.
	Next()

	// Stop cancels pending fires.
	Stop()
}

// RenderPacer fires once per Next, no faster than the render rate.
// It stands in for the browser's animation frame callback.
type RenderPacer struct {
	limiter *rate.Limiter

	mu    sync.Mutex
	fire  func()
	timer *time.Timer
}

// NewRenderPacer creates a pacer limited to fps fires per second.
func NewRenderPacer(fps float64) *RenderPacer {
	if fps <= 0 {
		fps = 60
	}
	return &RenderPacer{limiter: rate.NewLimiter(rate.Limit(fps), 1)}
}

// Start implements Pacer.
func (p *RenderPacer) Start(fire func()) {
	p.mu.Lock()
	p.fire = fire
	p.mu.Unlock()
}

// Next implements Pacer. A pending fire is replaced.
func (p *RenderPacer) Next() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fire == nil {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.limiter.Reserve().Delay(), p.fire)
}

// Stop implements Pacer.
func (p *RenderPacer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.fire = nil
}

// IntervalPacer fires on a fixed ticker whatever the response latency.
// The session still skips ticks while a frame is in flight.
type IntervalPacer struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// NewIntervalPacer creates a pacer ticking every interval.
func NewIntervalPacer(interval time.Duration) *IntervalPacer {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &IntervalPacer{interval: interval}
}

// Start implements Pacer.
func (p *IntervalPacer) Start(fire func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
	}
	stop := make(chan struct{})
	p.stop = stop

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fire()
			}
		}
	}()
}

// Next implements Pacer. The ticker drives captures on its own.
func (p *IntervalPacer) Next() {}

// Stop implements Pacer.
func (p *IntervalPacer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}
