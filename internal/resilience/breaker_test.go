package resilience

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("extractor unavailable")

func fixedClock(b *Breaker) *time.Time {
	now := time.Unix(1700000000, 0)
	b.clock = func() time.Time { return now }
	return &now
}

func fail(b *Breaker, n int) {
	for range n {
		_ = b.Execute(func() error { return errDown })
	}
}

func TestBreakerPassesThroughWhileClosed(t *testing.T) {
	b := NewBreaker(3, time.Second)
	calls := 0
	if err := b.Execute(func() error { calls++; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Second)
	fail(b, 2)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("below threshold, Execute: %v", err)
	}
	fail(b, 3)
	err := b.Execute(func() error {
		t.Fatal("fn ran while tripped")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b := NewBreaker(2, time.Second)
	now := fixedClock(b)
	fail(b, 2)

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("during cooldown err = %v, want ErrCircuitOpen", err)
	}

	*now = now.Add(2 * time.Second)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe Execute: %v", err)
	}

	// Closed again: a single failure must not re-trip.
	fail(b, 1)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("after recovery, Execute: %v", err)
	}
}

func TestBreakerProbeFailureRetrips(t *testing.T) {
	b := NewBreaker(2, time.Second)
	now := fixedClock(b)
	fail(b, 2)

	*now = now.Add(2 * time.Second)
	fail(b, 1)

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("after failed probe err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsStrikes(t *testing.T) {
	b := NewBreaker(3, time.Second)
	fail(b, 2)
	_ = b.Execute(func() error { return nil })
	fail(b, 2)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}
