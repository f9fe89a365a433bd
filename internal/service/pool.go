// Package service implements the engine's business logic on top of the
// ports: feedback consolidation, replay, recommendation lifecycle,
// insight listing and statistics.
package service

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent feedback jobs with a weighted semaphore. Every
// background consolidation run acquires a slot first, so a burst of
// submissions queues up instead of exhausting the extractor endpoint or
// the database pool.
type Pool struct {
	slots *semaphore.Weighted
}

// NewPool creates a Pool with the given number of slots, minimum one.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{slots: semaphore.NewWeighted(int64(limit))}
}

// Run executes fn inside a slot, blocking until one frees up. A nil Pool
// runs fn unbounded. Returns ctx.Err() when the context is cancelled
// before a slot opens; fn's own error otherwise.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil {
		return fn()
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.slots.Release(1)
	return fn()
}
