// Package conversation 提供有界、带 TTL 的会话历史
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/repository"
	"ai-gateway-api/pkg/logger"
	"ai-gateway-api/pkg/metrics"
)

const (
	DefaultMaxTurns = 20
	DefaultTTL      = 24 * time.Hour
)

// Store 会话历史存储
// 追加后裁剪为最近 MaxTurns 条，每次写入刷新 TTL；过期后读取返回空历史
type Store struct {
	kv       repository.KVStore
	maxTurns int
	ttl      time.Duration
}

// NewStore 创建会话历史存储
func NewStore(kv repository.KVStore, maxTurns int, ttl time.Duration) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, maxTurns: maxTurns, ttl: ttl}
}

func historyKey(id string) string {
	return "conversation:" + id
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("conversation id is empty")
	}
	return nil
}

// Append 按调用顺序追加消息
func (s *Store) Append(ctx context.Context, id string, turns ...entity.ConversationTurn) error {
	if err := validateID(id); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	values := make([][]byte, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal conversation turn: %w", err)
		}
		values = append(values, b)
	}
	if err := s.kv.ListAppend(ctx, historyKey(id), s.maxTurns, s.ttl, values...); err != nil {
		return fmt.Errorf("append conversation %s: %w", id, err)
	}
	metrics.ConversationTurnsAppended.Add(float64(len(turns)))
	return nil
}

// History 按时间顺序返回最近的消息；无记录或已过期返回空切片
func (s *Store) History(ctx context.Context, id string) ([]entity.ConversationTurn, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	raw, err := s.kv.ListRange(ctx, historyKey(id))
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}

	turns := make([]entity.ConversationTurn, 0, len(raw))
	for _, b := range raw {
		var t entity.ConversationTurn
		if err := json.Unmarshal(b, &t); err != nil {
			// 跳过损坏条目，不让整段历史不可用
			logger.Warn(ctx, "skipping malformed conversation turn", "conversation_id", id, "error", err.Error())
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear 删除会话历史
func (s *Store) Clear(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.kv.Del(ctx, historyKey(id)); err != nil {
		return fmt.Errorf("clear conversation %s: %w", id, err)
	}
	return nil
}

// MaxTurns 每个会话保留的最大条数
func (s *Store) MaxTurns() int {
	return s.maxTurns
}
