package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ai-gateway-api/internal/infrastructure/persistence/kvtest"
)

// 需要真实 Redis：REDIS_ADDR=localhost:6379 go test ./...
func TestKVStoreContract(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	client := NewClientFromRedis(rdb)
	t.Cleanup(func() { _ = client.Close() })

	prefix := fmt.Sprintf("kvtest:%d:", time.Now().UnixNano())
	kvtest.Run(t, NewKVStore(client), prefix)
}
