// Package kvtest 提供 repository.KVStore 实现共用的行为测试
package kvtest

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"ai-gateway-api/internal/domain/repository"
)

// Run 对 KV 实现执行通用行为测试，prefix 用于隔离共享实例上的键
func Run(t *testing.T, store repository.KVStore, prefix string) {
	t.Helper()
	ctx := context.Background()
	key := func(name string) string { return prefix + name }

	t.Run("IncrBy", func(t *testing.T) {
		k := key("counter")
		t.Cleanup(func() { _ = store.Del(ctx, k) })

		if n, err := store.GetInt(ctx, k); err != nil || n != 0 {
			t.Fatalf("GetInt on missing key = %d, %v", n, err)
		}
		if n, err := store.IncrBy(ctx, k, 1, time.Minute); err != nil || n != 1 {
			t.Fatalf("IncrBy = %d, %v", n, err)
		}
		if n, err := store.IncrBy(ctx, k, 41, time.Minute); err != nil || n != 42 {
			t.Fatalf("IncrBy = %d, %v", n, err)
		}
		if n, err := store.GetInt(ctx, k); err != nil || n != 42 {
			t.Fatalf("GetInt = %d, %v", n, err)
		}
	})

	t.Run("Hash", func(t *testing.T) {
		k := key("hash")
		t.Cleanup(func() { _ = store.Del(ctx, k) })

		if err := store.HIncrBy(ctx, k, map[string]int64{"a": 1, "b": 2}, time.Hour); err != nil {
			t.Fatal(err)
		}
		if err := store.HIncrBy(ctx, k, map[string]int64{"a": 10}, time.Hour); err != nil {
			t.Fatal(err)
		}
		got, err := store.HGetAll(ctx, k)
		if err != nil {
			t.Fatal(err)
		}
		if got["a"] != 11 || got["b"] != 2 || len(got) != 2 {
			t.Fatalf("HGetAll = %v", got)
		}
		empty, err := store.HGetAll(ctx, key("hash-missing"))
		if err != nil || len(empty) != 0 {
			t.Fatalf("HGetAll on missing key = %v, %v", empty, err)
		}
	})

	t.Run("Set", func(t *testing.T) {
		k := key("set")
		t.Cleanup(func() { _ = store.Del(ctx, k) })

		if err := store.SAdd(ctx, k, time.Hour, "u2", "u1", "u2"); err != nil {
			t.Fatal(err)
		}
		got, err := store.SMembers(ctx, k)
		if err != nil {
			t.Fatal(err)
		}
		sort.Strings(got)
		if fmt.Sprint(got) != "[u1 u2]" {
			t.Fatalf("SMembers = %v", got)
		}
	})

	t.Run("ListCapped", func(t *testing.T) {
		k := key("list")
		t.Cleanup(func() { _ = store.Del(ctx, k) })

		for i := 0; i < 7; i++ {
			if err := store.ListAppend(ctx, k, 5, time.Hour, []byte(fmt.Sprintf("v%d", i))); err != nil {
				t.Fatal(err)
			}
		}
		got, err := store.ListRange(ctx, k)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 5 {
			t.Fatalf("len = %d, want 5", len(got))
		}
		if !bytes.Equal(got[0], []byte("v2")) || !bytes.Equal(got[4], []byte("v6")) {
			t.Fatalf("list = %q", got)
		}
	})

	t.Run("Del", func(t *testing.T) {
		k := key("del")
		if _, err := store.IncrBy(ctx, k, 3, 0); err != nil {
			t.Fatal(err)
		}
		if err := store.Del(ctx, k); err != nil {
			t.Fatal(err)
		}
		if n, _ := store.GetInt(ctx, k); n != 0 {
			t.Fatalf("value after Del = %d", n)
		}
	})
}
