package session

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs callbacks on the host's per-frame tick. Callbacks execute
// one at a time on the goroutine that drives the ticks.
type Scheduler interface {
	// RequestFrame queues fn for the next tick.
	RequestFrame(fn func())
}

// FrameLoop is a Scheduler driven either by Run at a fixed rate or by
// explicit Tick calls.
type FrameLoop struct {
	interval time.Duration

	mu      sync.Mutex
	pending []func()
}

// NewFrameLoop creates a loop ticking targetFPS times per second
func NewFrameLoop(targetFPS int) *FrameLoop {
	if targetFPS <= 0 {
		targetFPS = 30
	}
	return &FrameLoop{interval: time.Second / time.Duration(targetFPS)}
}

// RequestFrame queues fn for the next tick. Safe from any goroutine.
func (l *FrameLoop) RequestFrame(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, fn)
}

// Pending returns the number of callbacks waiting for the next tick
func (l *FrameLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Tick runs the callbacks queued before it started. Callbacks requested while
// ticking run on the following tick. Returns the number of callbacks run.
func (l *FrameLoop) Tick() int {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Run ticks on the calling goroutine until ctx is done.
func (l *FrameLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}
