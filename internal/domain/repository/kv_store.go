// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound 键不存在
var ErrKeyNotFound = errors.New("key not found")

// KVStore 网关共享状态的键值存储端口
// 限流计数、用量账本、会话历史均通过它读写；实现需保证单键原子自增
type KVStore interface {
	// IncrBy 原子自增并返回新值；ttl > 0 时同时设置过期
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	// GetInt 读取整数，不存在返回 0
	GetInt(ctx context.Context, key string) (int64, error)

	// HIncrBy 对 hash 的多个字段原子自增；ttl > 0 时同时设置过期
	HIncrBy(ctx context.Context, key string, fields map[string]int64, ttl time.Duration) error
	// HGetAll 读取 hash，不存在返回空 map
	HGetAll(ctx context.Context, key string) (map[string]int64, error)

	// SAdd 集合添加成员；ttl > 0 时同时设置过期
	SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	// SMembers 读取集合成员，不存在返回空切片
	SMembers(ctx context.Context, key string) ([]string, error)

	// ListAppend 追加到列表尾部，只保留最后 maxLen 个元素，并刷新过期
	ListAppend(ctx context.Context, key string, maxLen int, ttl time.Duration, values ...[]byte) error
	// ListRange 读取整个列表，不存在返回空切片
	ListRange(ctx context.Context, key string) ([][]byte, error)

	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
