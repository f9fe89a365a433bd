package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/formulab/desbank/internal/adapter/tiered"
)

// fakeTier is an in-memory cache tier with injectable failures.
type fakeTier struct {
	data    map[string][]byte
	setErr  error
	delErr  error
	setTTLs map[string]time.Duration
}

func newFakeTier() *fakeTier {
	return &fakeTier{data: map[string][]byte{}, setTTLs: map[string]time.Duration{}}
}

func (f *fakeTier) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeTier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	f.setTTLs[key] = ttl
	return nil
}

func (f *fakeTier) Delete(_ context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.data, key)
	return nil
}

func newTiered() (*fakeTier, *fakeTier, *tiered.Cache) {
	l1 := newFakeTier()
	l2 := newFakeTier()
	return l1, l2, tiered.New(l1, l2, 5*time.Minute)
}

func TestGetPrefersL1(t *testing.T) {
	l1, l2, c := newTiered()
	l1.data["jobstatus:REC_1"] = []byte("near")
	l2.data["jobstatus:REC_1"] = []byte("far")

	val, found, err := c.Get(context.Background(), "jobstatus:REC_1")
	if err != nil || !found {
		t.Fatalf("Get = (%v, %v), want hit", found, err)
	}
	if string(val) != "near" {
		t.Fatalf("val = %q, want the L1 value", val)
	}
}

func TestGetBackfillsL1WithItsOwnExpiry(t *testing.T) {
	l1, l2, c := newTiered()
	l2.data["k"] = []byte("shared")

	val, found, err := c.Get(context.Background(), "k")
	if err != nil || !found {
		t.Fatalf("Get = (%v, %v), want hit", found, err)
	}
	if string(val) != "shared" {
		t.Fatalf("val = %q, want shared", val)
	}
	if string(l1.data["k"]) != "shared" {
		t.Fatal("L1 not backfilled")
	}
	if got := l1.setTTLs["k"]; got != 5*time.Minute {
		t.Fatalf("backfill ttl = %v, want the L1 expiry", got)
	}
}

func TestGetMissesBothTiers(t *testing.T) {
	_, _, c := newTiered()
	if _, found, err := c.Get(context.Background(), "absent"); found || err != nil {
		t.Fatalf("Get = (%v, %v), want clean miss", found, err)
	}
}

func TestSetWritesL2BeforeL1(t *testing.T) {
	l1, l2, c := newTiered()
	l2.setErr = errors.New("bucket gone")

	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err == nil {
		t.Fatal("expected L2 failure to surface")
	}
	if _, ok := l1.data["k"]; ok {
		t.Fatal("L1 must not hold a value L2 rejected")
	}

	l2.setErr = nil
	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if string(l1.data["k"]) != "v" || string(l2.data["k"]) != "v" {
		t.Fatal("both tiers should hold the value")
	}
}

func TestDeleteReachesBothTiersDespiteL1Error(t *testing.T) {
	l1, l2, c := newTiered()
	l1.data["k"] = []byte("v")
	l2.data["k"] = []byte("v")
	l1.delErr = errors.New("l1 down")

	err := c.Delete(context.Background(), "k")
	if err == nil {
		t.Fatal("expected the L1 error to surface")
	}
	if _, ok := l2.data["k"]; ok {
		t.Fatal("L2 delete should still have run")
	}
}
