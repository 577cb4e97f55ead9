// Package memory 提供进程内 KV 存储实现（测试与单实例部署）
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ai-gateway-api/internal/domain/repository"
)

var _ repository.KVStore = (*KVStore)(nil)

// 每 sweepEvery 次写入清理一次过期键，单次最多检查 sweepBatch 个
const (
	sweepEvery = 1024
	sweepBatch = 4096
)

type kind int

const (
	kindInt kind = iota
	kindHash
	kindSet
	kindList
)

type item struct {
	kind     kind
	n        int64
	hash     map[string]int64
	set      map[string]struct{}
	list     [][]byte
	expireAt time.Time
}

func (it *item) expired(now time.Time) bool {
	return !it.expireAt.IsZero() && !now.Before(it.expireAt)
}

// KVStore 互斥锁保护的内存 KV 存储
// 过期键在读取时惰性删除，另由写入路径分批清理从不再读的键（分钟桶、按日账本）
type KVStore struct {
	mu     sync.Mutex
	items  map[string]*item
	now    func() time.Time
	writes int
}

// NewKVStore 创建内存 KV 存储
func NewKVStore() *KVStore {
	return NewKVStoreWithClock(time.Now)
}

// NewKVStoreWithClock 使用指定时钟创建内存 KV 存储
func NewKVStoreWithClock(now func() time.Time) *KVStore {
	return &KVStore{
		items: make(map[string]*item),
		now:   now,
	}
}

// lookup 调用方需持有锁
func (s *KVStore) lookup(key string, want kind) (*item, error) {
	it, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	if it.expired(s.now()) {
		delete(s.items, key)
		return nil, nil
	}
	if it.kind != want {
		return nil, fmt.Errorf("memory kv: key %s holds a different type", key)
	}
	return it, nil
}

// sweep 调用方需持有锁；map 迭代顺序随机，分批检查即可覆盖全部键
func (s *KVStore) sweep() {
	s.writes++
	if s.writes < sweepEvery {
		return
	}
	s.writes = 0

	now := s.now()
	checked := 0
	for k, it := range s.items {
		if checked >= sweepBatch {
			break
		}
		checked++
		if it.expired(now) {
			delete(s.items, k)
		}
	}
}

// getOrCreate 写入路径入口，调用方需持有锁
func (s *KVStore) getOrCreate(key string, want kind) (*item, error) {
	s.sweep()
	it, err := s.lookup(key, want)
	if err != nil {
		return nil, err
	}
	if it == nil {
		it = &item{kind: want}
		switch want {
		case kindHash:
			it.hash = make(map[string]int64)
		case kindSet:
			it.set = make(map[string]struct{})
		}
		s.items[key] = it
	}
	return it, nil
}

func (s *KVStore) touch(it *item, ttl time.Duration) {
	if ttl > 0 {
		it.expireAt = s.now().Add(ttl)
	}
}

// IncrBy 原子加 delta 并刷新过期时间，返回新值
func (s *KVStore) IncrBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.getOrCreate(key, kindInt)
	if err != nil {
		return 0, err
	}
	it.n += delta
	s.touch(it, ttl)
	return it.n, nil
}

// GetInt 读取计数，不存在或已过期返回 0
func (s *KVStore) GetInt(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.lookup(key, kindInt)
	if err != nil || it == nil {
		return 0, err
	}
	return it.n, nil
}

// HIncrBy 对哈希多个字段做增量并刷新过期时间
func (s *KVStore) HIncrBy(_ context.Context, key string, fields map[string]int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.getOrCreate(key, kindHash)
	if err != nil {
		return err
	}
	for f, d := range fields {
		it.hash[f] += d
	}
	s.touch(it, ttl)
	return nil
}

// HGetAll 返回哈希字段的副本，不存在返回空 map
func (s *KVStore) HGetAll(_ context.Context, key string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.lookup(key, kindHash)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	if it != nil {
		for f, v := range it.hash {
			out[f] = v
		}
	}
	return out, nil
}

// SAdd 向集合添加成员并刷新过期时间
func (s *KVStore) SAdd(_ context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.getOrCreate(key, kindSet)
	if err != nil {
		return err
	}
	for _, m := range members {
		it.set[m] = struct{}{}
	}
	s.touch(it, ttl)
	return nil
}

// SMembers 返回集合成员（无序）
func (s *KVStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.lookup(key, kindSet)
	if err != nil {
		return nil, err
	}
	out := []string{}
	if it != nil {
		for m := range it.set {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListAppend 追加到列表尾部，超过 maxLen 时保留最新的 maxLen 条
func (s *KVStore) ListAppend(_ context.Context, key string, maxLen int, ttl time.Duration, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.getOrCreate(key, kindList)
	if err != nil {
		return err
	}
	for _, v := range values {
		it.list = append(it.list, append([]byte(nil), v...))
	}
	if maxLen > 0 && len(it.list) > maxLen {
		it.list = append([][]byte(nil), it.list[len(it.list)-maxLen:]...)
	}
	s.touch(it, ttl)
	return nil
}

// ListRange 按写入顺序返回列表全部元素
func (s *KVStore) ListRange(_ context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.lookup(key, kindList)
	if err != nil {
		return nil, err
	}
	out := [][]byte{}
	if it != nil {
		for _, v := range it.list {
			out = append(out, append([]byte(nil), v...))
		}
	}
	return out, nil
}

// Del 删除键
func (s *KVStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// Ping 内存存储始终可用
func (s *KVStore) Ping(context.Context) error { return nil }

// Len 当前未过期键数量
func (s *KVStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, it := range s.items {
		if it.expired(now) {
			delete(s.items, k)
			continue
		}
		n++
	}
	return n
}

// String 便于调试输出
func (s *KVStore) String() string {
	return "memory.KVStore(" + strconv.Itoa(s.Len()) + " keys)"
}
