package server

import (
	"sync"
	"time"
)

// RenderBatcher coalesces change notifications into one flush per debounce
// interval. Trigger is called on the dispatcher; flush runs on a timer
// goroutine, where it may block on the dispatcher.
type RenderBatcher struct {
	mu               sync.Mutex
	debounceTimer    *time.Timer
	debounceInterval time.Duration
	flush            func()
	pending          bool
	batchCount       int
	stopped          bool
}

// NewRenderBatcher creates a batcher that calls flush after changes settle.
func NewRenderBatcher(interval time.Duration, flush func()) *RenderBatcher {
	return &RenderBatcher{
		debounceInterval: interval,
		flush:            flush,
	}
}

// Trigger records a change and starts the debounce timer if it is not running.
func (b *RenderBatcher) Trigger() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.pending = true
	if b.debounceTimer == nil {
		b.debounceTimer = time.AfterFunc(b.debounceInterval, b.run)
	}
}

// FlushNow flushes a pending change immediately.
func (b *RenderBatcher) FlushNow() {
	b.mu.Lock()
	if b.debounceTimer != nil {
		b.debounceTimer.Stop()
	}
	b.mu.Unlock()

	b.run()
}

func (b *RenderBatcher) run() {
	b.mu.Lock()
	b.debounceTimer = nil
	pending := b.pending
	b.pending = false
	if pending {
		b.batchCount++
	}
	b.mu.Unlock()

	if pending {
		b.flush()
	}
}

// Stop cancels any pending flush and ignores later triggers.
func (b *RenderBatcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	b.pending = false
	if b.debounceTimer != nil {
		b.debounceTimer.Stop()
	}
	b.debounceTimer = nil
}

// BatchCount returns the number of flushes so far.
func (b *RenderBatcher) BatchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batchCount
}
