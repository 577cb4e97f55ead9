package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAvailabilityCache_TTL(t *testing.T) {
	var calls atomic.Int32
	fail := false
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a := newAvailabilityCache("p", 5*time.Minute, func(context.Context) error {
		calls.Add(1)
		if fail {
			return errors.New("down")
		}
		return nil
	})
	a.now = func() time.Time { return now }

	ctx := context.Background()
	if !a.Check(ctx) || !a.Check(ctx) {
		t.Fatal("expected available")
	}
	if calls.Load() != 1 {
		t.Fatalf("probe calls = %d, want 1", calls.Load())
	}

	fail = true
	now = now.Add(4 * time.Minute)
	if !a.Check(ctx) {
		t.Error("cached result should still be used")
	}

	now = now.Add(2 * time.Minute)
	if a.Check(ctx) {
		t.Error("stale result should be re-verified")
	}
	if calls.Load() != 2 || !a.CheckedAt().Equal(now) {
		t.Errorf("calls=%d checkedAt=%s", calls.Load(), a.CheckedAt())
	}
}

func TestAvailabilityCache_CoalescesConcurrentProbes(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	a := newAvailabilityCache("p", time.Minute, func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Check(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("probe calls = %d, want 1", calls.Load())
	}
}
