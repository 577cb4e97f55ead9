package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ai-gateway-api/internal/infrastructure/persistence/kvtest"
)

func TestKVStoreContract(t *testing.T) {
	kvtest.Run(t, NewKVStore(), "test:")
}

func TestKVStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewKVStoreWithClock(func() time.Time { return now })

	if _, err := store.IncrBy(ctx, "k", 5, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := store.ListAppend(ctx, "l", 20, time.Hour, []byte("a")); err != nil {
		t.Fatal(err)
	}

	now = now.Add(59 * time.Second)
	if n, _ := store.GetInt(ctx, "k"); n != 5 {
		t.Fatalf("before expiry = %d", n)
	}

	now = now.Add(time.Second)
	if n, _ := store.GetInt(ctx, "k"); n != 0 {
		t.Fatalf("after expiry = %d", n)
	}

	// 写入刷新过期时间
	now = now.Add(30 * time.Minute)
	if err := store.ListAppend(ctx, "l", 20, time.Hour, []byte("b")); err != nil {
		t.Fatal(err)
	}
	now = now.Add(45 * time.Minute)
	got, _ := store.ListRange(ctx, "l")
	if len(got) != 2 {
		t.Fatalf("list after refresh = %q", got)
	}
	now = now.Add(15 * time.Minute)
	got, _ = store.ListRange(ctx, "l")
	if len(got) != 0 {
		t.Fatalf("list after expiry = %q", got)
	}
	if store.Len() != 0 {
		t.Fatalf("Len = %d", store.Len())
	}
}

func TestKVStore_TypeMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewKVStore()
	if _, err := store.IncrBy(ctx, "k", 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := store.HIncrBy(ctx, "k", map[string]int64{"a": 1}, 0); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestKVStore_ConcurrentIncr(t *testing.T) {
	ctx := context.Background()
	store := NewKVStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.IncrBy(ctx, "n", 2, time.Minute)
		}()
	}
	wg.Wait()

	if n, _ := store.GetInt(ctx, "n"); n != 100 {
		t.Fatalf("n = %d, want 100", n)
	}
}

func TestKVStore_SweepsKeysNeverReadAgain(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewKVStoreWithClock(func() time.Time { return now })

	// 每分钟一个新的限流桶键，写入后不再读取
	for i := 0; i < 20*sweepEvery; i++ {
		key := fmt.Sprintf("ratelimit:gw:%d:requests", i)
		if _, err := store.IncrBy(ctx, key, 1, time.Minute); err != nil {
			t.Fatal(err)
		}
		now = now.Add(time.Minute)
	}

	store.mu.Lock()
	held := len(store.items)
	store.mu.Unlock()
	if held > sweepEvery+1 {
		t.Fatalf("keys held = %d, want <= %d", held, sweepEvery+1)
	}

	// 未过期的键不受清理影响
	if _, err := store.IncrBy(ctx, "live", 3, time.Hour); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2*sweepEvery; i++ {
		_, _ = store.IncrBy(ctx, fmt.Sprintf("tmp:%d", i), 1, time.Hour)
	}
	if n, _ := store.GetInt(ctx, "live"); n != 3 {
		t.Errorf("live key = %d", n)
	}
}
