// Package retry 包装提供方调用的重试与退避
package retry

import (
	"context"
	"errors"
	"time"

	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/pkg/logger"
	"ai-gateway-api/pkg/metrics"
)

// Config 重试配置
type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultConfig 默认重试配置
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       60 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Kind 单次尝试的结果分类
type Kind string

const (
	KindSuccess     Kind = "success"
	KindRateLimited Kind = "rate_limited"
	KindServerError Kind = "server_error"
	KindNetwork     Kind = "network"
	KindPermanent   Kind = "permanent"
	KindCanceled    Kind = "canceled"
)

// Attempt 单次尝试记录
type Attempt struct {
	Number   int
	Kind     Kind
	Err      error
	Duration time.Duration
	// Delay 本次失败后等待的时间，最后一次为 0
	Delay time.Duration
}

// Outcome 一次逻辑调用的全部尝试
type Outcome struct {
	Attempts []Attempt
}

// Count 尝试次数
func (o *Outcome) Count() int {
	if o == nil {
		return 0
	}
	return len(o.Attempts)
}

// Delays 各次等待时长
func (o *Outcome) Delays() []time.Duration {
	var out []time.Duration
	for _, a := range o.Attempts {
		if a.Delay > 0 {
			out = append(out, a.Delay)
		}
	}
	return out
}

// Sleeper 等待函数，需响应 ctx 取消
type Sleeper func(ctx context.Context, d time.Duration) error

// Option 执行器选项
type Option func(*Executor)

// WithSleeper 替换等待函数（测试）
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// Executor 线性退避重试执行器
//
// 第 n 次失败后的等待：max(提供方提示, BaseDelay×n, 上次等待)，再以 MaxDelay 封顶
type Executor struct {
	cfg   Config
	sleep Sleeper
}

// NewExecutor 创建重试执行器
func NewExecutor(cfg Config, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	e := &Executor{cfg: cfg, sleep: sleepContext}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config 当前配置
func (e *Executor) Config() Config {
	return e.cfg
}

// Execute 执行 fn，直到成功、遇到不可重试错误或次数耗尽；耗尽时返回最后一次错误
func (e *Executor) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) (*Outcome, error) {
	outcome := &Outcome{}
	var prevDelay time.Duration

	for n := 1; n <= e.cfg.MaxAttempts; n++ {
		started := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		err := fn(attemptCtx)
		cancel()

		rec := Attempt{Number: n, Duration: time.Since(started)}
		if err == nil {
			rec.Kind = KindSuccess
			outcome.Attempts = append(outcome.Attempts, rec)
			return outcome, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			rec.Kind, rec.Err = KindCanceled, err
			outcome.Attempts = append(outcome.Attempts, rec)
			return outcome, err
		}
		err = asTransientTimeout(err)
		rec.Err = err
		rec.Kind = classify(err)

		if rec.Kind == KindPermanent || n == e.cfg.MaxAttempts {
			outcome.Attempts = append(outcome.Attempts, rec)
			return outcome, err
		}

		delay := e.nextDelay(n, service.WaitHint(err), prevDelay)
		rec.Delay = delay
		prevDelay = delay
		outcome.Attempts = append(outcome.Attempts, rec)

		metrics.LLMRetryTotal.WithLabelValues(operation, string(rec.Kind)).Inc()
		logger.Warn(ctx, "provider attempt failed, retrying",
			"operation", operation,
			"attempt", n,
			"kind", string(rec.Kind),
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		if err := e.sleep(ctx, delay); err != nil {
			return outcome, err
		}
	}
	// MaxAttempts >= 1，不会走到这里
	return outcome, errors.New("retry: no attempts made")
}

func (e *Executor) nextDelay(attempt int, hint, prev time.Duration) time.Duration {
	delay := e.cfg.BaseDelay * time.Duration(attempt)
	if hint > delay {
		delay = hint
	}
	if prev > delay {
		delay = prev
	}
	if e.cfg.MaxDelay > 0 && delay > e.cfg.MaxDelay {
		delay = e.cfg.MaxDelay
	}
	return delay
}

// asTransientTimeout 单次尝试超时视为可重试的网络错误
func asTransientTimeout(err error) error {
	if service.IsRetryable(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &service.ProviderTransientError{Provider: "unknown", Err: err}
	}
	return err
}

func classify(err error) Kind {
	var transient *service.ProviderTransientError
	if !errors.As(err, &transient) {
		return KindPermanent
	}
	switch {
	case transient.StatusCode == 429:
		return KindRateLimited
	case transient.StatusCode >= 500:
		return KindServerError
	default:
		return KindNetwork
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
