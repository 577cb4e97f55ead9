// Package ratelimit 提供按分钟分桶的请求/Token 配额
//
// 计数按墙钟分钟分桶（固定窗口），跨分钟边界时最多允许约 2 倍突发。
// 桶在所属分钟结束时过期，无需清理。
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/repository"
	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/pkg/logger"
	"ai-gateway-api/pkg/metrics"
)

const (
	defaultScope         = "gateway"
	defaultTokensPerChar = 0.25
)

// Config 配额配置，<= 0 表示不限制
type Config struct {
	Scope             string
	RequestsPerMinute int64
	TokensPerMinute   int64
	TokensPerChar     float64
}

// Option 限流器选项
type Option func(*Limiter)

// WithClock 替换时钟（测试）
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// Limiter 每分钟请求/Token 限流器
// 固定分钟桶：相邻两分钟交界处最多可放行约 2 倍配额
type Limiter struct {
	store repository.KVStore
	cfg   Config
	now   func() time.Time
}

// NewLimiter 创建限流器
func NewLimiter(store repository.KVStore, cfg Config, opts ...Option) *Limiter {
	if cfg.Scope == "" {
		cfg.Scope = defaultScope
	}
	if cfg.TokensPerChar <= 0 {
		cfg.TokensPerChar = defaultTokensPerChar
	}
	l := &Limiter{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EstimateTokens 调用前的粗略 Token 估算：ceil(字符数 × TokensPerChar)
func (l *Limiter) EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) * l.cfg.TokensPerChar))
}

func (l *Limiter) bucket() (minute time.Time, resetIn time.Duration) {
	now := l.now()
	minute = now.Truncate(time.Minute)
	return minute, minute.Add(time.Minute).Sub(now)
}

func bucketKey(scope string, minute time.Time, counter string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", scope, minute.UTC().Format("200601021504"), counter)
}

// Check 调用前检查；超限返回 RateLimitExceededError，WaitHint 为距下一分钟的时间
func (l *Limiter) Check(ctx context.Context, estimatedTokens int) error {
	if l.cfg.RequestsPerMinute <= 0 && l.cfg.TokensPerMinute <= 0 {
		return nil
	}

	window, err := l.Window(ctx)
	if err != nil {
		return err
	}
	resetIn := window.ResetAt().Sub(l.now())

	if l.cfg.RequestsPerMinute > 0 && window.RequestCount >= l.cfg.RequestsPerMinute {
		metrics.RateLimitRejectedTotal.WithLabelValues("requests").Inc()
		return &service.RateLimitExceededError{
			Reason:   "requests per minute",
			Limit:    l.cfg.RequestsPerMinute,
			Current:  window.RequestCount,
			WaitHint: resetIn,
		}
	}
	if l.cfg.TokensPerMinute > 0 && window.TokenCount+int64(estimatedTokens) > l.cfg.TokensPerMinute {
		metrics.RateLimitRejectedTotal.WithLabelValues("tokens").Inc()
		return &service.RateLimitExceededError{
			Reason:   "tokens per minute",
			Limit:    l.cfg.TokensPerMinute,
			Current:  window.TokenCount + int64(estimatedTokens),
			WaitHint: resetIn,
		}
	}
	return nil
}

// Record 成功调用后计入 1 次请求与实际 Token 用量
func (l *Limiter) Record(ctx context.Context, totalTokens int) error {
	minute, resetIn := l.bucket()
	if resetIn <= 0 {
		resetIn = time.Millisecond
	}

	if _, err := l.store.IncrBy(ctx, bucketKey(l.cfg.Scope, minute, "requests"), 1, resetIn); err != nil {
		return fmt.Errorf("record request count: %w", err)
	}
	if totalTokens > 0 {
		if _, err := l.store.IncrBy(ctx, bucketKey(l.cfg.Scope, minute, "tokens"), int64(totalTokens), resetIn); err != nil {
			return fmt.Errorf("record token count: %w", err)
		}
	}
	logger.Debug(ctx, "rate window updated", "scope", l.cfg.Scope, "tokens", totalTokens)
	return nil
}

// Window 当前分钟桶的计数
func (l *Limiter) Window(ctx context.Context) (entity.RateWindow, error) {
	minute, _ := l.bucket()
	w := entity.RateWindow{Scope: l.cfg.Scope, Minute: minute}

	var err error
	if w.RequestCount, err = l.store.GetInt(ctx, bucketKey(l.cfg.Scope, minute, "requests")); err != nil {
		return w, fmt.Errorf("read request count: %w", err)
	}
	if w.TokenCount, err = l.store.GetInt(ctx, bucketKey(l.cfg.Scope, minute, "tokens")); err != nil {
		return w, fmt.Errorf("read token count: %w", err)
	}
	return w, nil
}
