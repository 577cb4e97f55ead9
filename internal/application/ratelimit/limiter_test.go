package ratelimit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/internal/infrastructure/persistence/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(cfg Config) (*Limiter, *clock) {
	c := &clock{t: time.Date(2026, 5, 4, 10, 15, 20, 0, time.UTC)}
	store := memory.NewKVStoreWithClock(c.now)
	return NewLimiter(store, cfg, WithClock(c.now)), c
}

func TestEstimateTokens(t *testing.T) {
	l, _ := newTestLimiter(Config{})
	cases := map[string]int{
		"":      0,
		"a":     1,
		"abcd":  1,
		"abcde": 2,
		strings.Repeat("x", 4000): 1000,
	}
	for in, want := range cases {
		if got := l.EstimateTokens(in); got != want {
			t.Errorf("EstimateTokens(len=%d) = %d, want %d", len(in), got, want)
		}
	}
}

func TestCheck_RequestsPerMinute(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLimiter(Config{RequestsPerMinute: 1})

	if err := l.Check(ctx, 10); err != nil {
		t.Fatalf("first check: %v", err)
	}
	if err := l.Record(ctx, 10); err != nil {
		t.Fatal(err)
	}

	err := l.Check(ctx, 10)
	var rle *service.RateLimitExceededError
	if !errors.As(err, &rle) {
		t.Fatalf("second check = %v, want RateLimitExceededError", err)
	}
	if rle.WaitHint != 40*time.Second {
		t.Errorf("wait hint = %s, want 40s", rle.WaitHint)
	}

	// 新的一分钟
	c.t = c.t.Add(40 * time.Second)
	if err := l.Check(ctx, 10); err != nil {
		t.Fatalf("check in next minute: %v", err)
	}
}

func TestCheck_TokenEstimateExceedsBudget(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(Config{TokensPerMinute: 1000})

	if err := l.Check(ctx, 1001); err == nil {
		t.Fatal("estimate above budget should be rejected")
	}
	if err := l.Check(ctx, 1000); err != nil {
		t.Fatalf("estimate at budget: %v", err)
	}
	if err := l.Record(ctx, 900); err != nil {
		t.Fatal(err)
	}
	if err := l.Check(ctx, 101); err == nil {
		t.Fatal("900 + 101 should exceed 1000")
	}
	if err := l.Check(ctx, 100); err != nil {
		t.Fatalf("900 + 100: %v", err)
	}
}

func TestCheck_Unlimited(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Record(ctx, 1_000_000); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Check(ctx, 1_000_000); err != nil {
		t.Fatalf("unlimited limiter rejected: %v", err)
	}
}

func TestWindow_ExpiresWithMinute(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLimiter(Config{RequestsPerMinute: 10, TokensPerMinute: 100})

	if err := l.Record(ctx, 42); err != nil {
		t.Fatal(err)
	}
	w, err := l.Window(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if w.RequestCount != 1 || w.TokenCount != 42 {
		t.Fatalf("window = %+v", w)
	}
	if !w.ResetAt().Equal(time.Date(2026, 5, 4, 10, 16, 0, 0, time.UTC)) {
		t.Errorf("reset at = %s", w.ResetAt())
	}

	c.t = c.t.Add(time.Minute)
	w, _ = l.Window(ctx)
	if w.RequestCount != 0 || w.TokenCount != 0 {
		t.Fatalf("window after minute = %+v", w)
	}
}

func TestBucketKey(t *testing.T) {
	got := bucketKey("gw", time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC), "requests")
	if got != "ratelimit:gw:202601020304:requests" {
		t.Errorf("key = %s", got)
	}
}
