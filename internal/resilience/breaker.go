// Package resilience provides reliability patterns for external service calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type breakerState int

const (
	// closed: calls pass through, consecutive failures are counted.
	closed breakerState = iota
	// tripped: calls are rejected until the cooldown elapses.
	tripped
	// probing: one call at a time is let through to test recovery.
	probing
)

// Breaker trips after a run of consecutive failures and rejects calls
// for a cooldown period. The first call after the cooldown probes the
// downstream: success closes the breaker, failure re-trips it. Protects
// the extractor endpoint so a dead LLM proxy fails feedback jobs fast
// instead of stalling the worker pool.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	clock     func() time.Time

	mu        sync.Mutex
	state     breakerState
	strikes   int
	trippedAt time.Time
}

// NewBreaker returns a Breaker tripping after maxFailures consecutive
// failures, with the given cooldown before a recovery probe.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: maxFailures,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Execute runs fn unless the breaker is rejecting calls, and records the
// outcome. Returns ErrCircuitOpen without calling fn while tripped.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == tripped {
		if b.clock().Sub(b.trippedAt) < b.cooldown {
			return false
		}
		b.state = probing
	}
	return true
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ok {
		b.state = closed
		b.strikes = 0
		return
	}
	b.strikes++
	if b.state == probing || b.strikes >= b.threshold {
		b.state = tripped
		b.trippedAt = b.clock()
	}
}
