package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a handler that buffers records.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncCore is the queue shared by an AsyncHandler and every derived
// handler produced through WithAttrs/WithGroup. Closing the core once
// stops all of them.
type asyncCore struct {
	queue   chan func()
	workers sync.WaitGroup
	dropped atomic.Int64
	closed  atomic.Bool
	stop    sync.Once
}

// AsyncHandler decouples log emission from I/O: Handle enqueues onto a
// bounded queue serviced by background workers, and records are dropped
// rather than blocking the caller when the queue is full. Feedback jobs
// log from the hot path, so a slow sink must never stall them.
//
// The queue holds closures bound to the handler that accepted the
// record, so attrs and groups added via WithAttrs/WithGroup survive the
// handoff.
type AsyncHandler struct {
	core  *asyncCore
	inner slog.Handler
}

// NewAsyncHandler starts workers goroutines draining a queue of the
// given capacity into inner.
func NewAsyncHandler(inner slog.Handler, capacity, workers int) *AsyncHandler {
	core := &asyncCore{queue: make(chan func(), capacity)}
	for range workers {
		core.workers.Add(1)
		go func() {
			defer core.workers.Done()
			for task := range core.queue {
				task()
			}
		}()
	}
	return &AsyncHandler{core: core, inner: inner}
}

// Enabled delegates to the wrapped handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record without blocking. Records arriving on a
// full queue, or after Close, are counted and discarded.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler fixes the signature
	if h.core.closed.Load() {
		h.core.dropped.Add(1)
		return nil
	}
	inner := h.inner
	select {
	case h.core.queue <- func() { _ = inner.Handle(context.Background(), rec) }:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler over the same queue.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{core: h.core, inner: h.inner.WithAttrs(attrs)}
}

// WithGroup derives a handler over the same queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{core: h.core, inner: h.inner.WithGroup(name)}
}

// DroppedCount reports how many records were discarded.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close stops accepting records and waits for the workers to flush the
// queue. Safe to call more than once.
func (h *AsyncHandler) Close() {
	h.core.stop.Do(func() {
		h.core.closed.Store(true)
		close(h.core.queue)
		h.core.workers.Wait()
	})
}
