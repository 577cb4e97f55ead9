package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ai-gateway-api/internal/domain/repository"
)

var _ repository.KVStore = (*KVStore)(nil)

// KVStore 基于 Redis 的 KV 存储
// 写操作与过期设置在同一个 pipeline 中提交
type KVStore struct {
	client *Client
}

// NewKVStore 创建 Redis KV 存储
func NewKVStore(client *Client) *KVStore {
	return &KVStore{client: client}
}

func (s *KVStore) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "redis."+op, trace.WithAttributes(attribute.String("redis.key", key)))
}

// IncrBy INCRBY + EXPIRE
func (s *KVStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	ctx, span := s.startSpan(ctx, "IncrBy", key)
	defer span.End()

	pipe := s.client.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("redis incrby %s: %w", key, err)
	}
	return incr.Val(), nil
}

// GetInt GET 并解析为整数
func (s *KVStore) GetInt(ctx context.Context, key string) (int64, error) {
	ctx, span := s.startSpan(ctx, "GetInt", key)
	defer span.End()

	n, err := s.client.rdb.Get(ctx, key).Int64()
	if err != nil {
		if IsNil(err) {
			return 0, nil
		}
		span.RecordError(err)
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return n, nil
}

// HIncrBy 多字段 HINCRBY + EXPIRE
func (s *KVStore) HIncrBy(ctx context.Context, key string, fields map[string]int64, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "HIncrBy", key)
	defer span.End()

	pipe := s.client.rdb.TxPipeline()
	for field, delta := range fields {
		pipe.HIncrBy(ctx, key, field, delta)
	}
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis hincrby %s: %w", key, err)
	}
	return nil
}

// HGetAll HGETALL 并解析为整数
func (s *KVStore) HGetAll(ctx context.Context, key string) (map[string]int64, error) {
	ctx, span := s.startSpan(ctx, "HGetAll", key)
	defer span.End()

	raw, err := s.client.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis hgetall %s: field %s: %w", key, field, err)
		}
		out[field] = n
	}
	return out, nil
}

// SAdd SADD + EXPIRE
func (s *KVStore) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, span := s.startSpan(ctx, "SAdd", key)
	defer span.End()

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	pipe := s.client.rdb.TxPipeline()
	pipe.SAdd(ctx, key, args...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis sadd %s: %w", key, err)
	}
	return nil
}

// SMembers SMEMBERS
func (s *KVStore) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, span := s.startSpan(ctx, "SMembers", key)
	defer span.End()

	members, err := s.client.rdb.SMembers(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("redis smembers %s: %w", key, err)
	}
	return members, nil
}

// ListAppend RPUSH + LTRIM + EXPIRE
func (s *KVStore) ListAppend(ctx context.Context, key string, maxLen int, ttl time.Duration, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	ctx, span := s.startSpan(ctx, "ListAppend", key)
	defer span.End()

	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	pipe := s.client.rdb.TxPipeline()
	pipe.RPush(ctx, key, args...)
	if maxLen > 0 {
		pipe.LTrim(ctx, key, int64(-maxLen), -1)
	}
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis list append %s: %w", key, err)
	}
	return nil
}

// ListRange LRANGE 0 -1
func (s *KVStore) ListRange(ctx context.Context, key string) ([][]byte, error) {
	ctx, span := s.startSpan(ctx, "ListRange", key)
	defer span.End()

	raw, err := s.client.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		span.RecordError(err)
		return nil, fmt.Errorf("redis lrange %s: %w", key, err)
	}
	out := make([][]byte, len(raw))
	for i, v := range raw {
		out[i] = []byte(v)
	}
	return out, nil
}

// Del DEL
func (s *KVStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "redis.Del",
		trace.WithAttributes(attribute.Int("redis.key_count", len(keys))))
	defer span.End()

	if err := s.client.rdb.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping 连接检查
func (s *KVStore) Ping(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}
