package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"blobship/internal/logger"
	"blobship/internal/metrics"
)

// Periodic runs a task on a fixed interval in its own goroutine until
// stopped. A panicking run is recovered and logged; the loop continues.
type Periodic struct {
	name     string
	interval time.Duration
	task     func()

	mu      sync.Mutex
	started bool
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	runs   atomic.Uint64
	panics atomic.Uint64
}

// Stats holds periodic runner counters
type Stats struct {
	Runs   uint64
	Panics uint64
}

// NewPeriodic creates a runner. The name labels logs and the
// panics_recovered metric. Non-positive intervals become 1ms.
func NewPeriodic(name string, interval time.Duration, task func()) *Periodic {
	if interval <= 0 {
		interval = time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Periodic{
		name:     name,
		interval: interval,
		task:     task,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the loop. Calling Start again, or after Stop, does nothing.
func (p *Periodic) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	log := logger.WithComponent(p.name)
	log.Debug().
		Dur("interval", p.interval).
		Msg("starting periodic task")

	p.wg.Add(1)
	go p.loop()
}

// Stop ends the loop and waits for an in-progress run to finish.
// It is safe to call more than once and before Start.
func (p *Periodic) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Periodic) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runSafely()
		}
	}
}

// runSafely runs the task once with panic recovery
func (p *Periodic) runSafely() {
	p.runs.Add(1)

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log := logger.WithComponent(p.name)
			log.Error().
				Interface("panic", r).
				Bytes("stack", stack).
				Msg("periodic task panic recovered")
			p.panics.Add(1)
			metrics.PanicsRecovered.WithLabelValues(p.name).Inc()
		}
	}()

	p.task()
}

// Stats returns runner statistics
func (p *Periodic) Stats() Stats {
	return Stats{
		Runs:   p.runs.Load(),
		Panics: p.panics.Load(),
	}
}
