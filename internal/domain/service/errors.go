package service

import (
	"errors"
	"fmt"
	"time"
)

// 错误信封 code
const (
	CodeConfiguration       = "configuration_error"
	CodeRateLimitExceeded   = "rate_limit_exceeded"
	CodeProviderUnavailable = "provider_unavailable"
	CodeProviderRejected    = "provider_rejected"
	CodeInvalidRequest      = "invalid_request"
)

// ConfigurationError 未知 provider 或缺少凭证，不可重试
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: provider %q: %s", e.Provider, e.Reason)
}

// RateLimitExceededError 本地配额耗尽，WaitHint 为距下个窗口的时间
type RateLimitExceededError struct {
	Reason   string
	Limit    int64
	Current  int64
	WaitHint time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s (%d/%d), retry in %s",
		e.Reason, e.Current, e.Limit, e.WaitHint.Round(time.Second))
}

// ProviderTransientError 429/5xx/网络/超时，可重试
type ProviderTransientError struct {
	Provider   string
	StatusCode int
	// RetryAfter 提供方给出的等待提示，0 表示没有
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderTransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s transient failure (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s transient failure: %v", e.Provider, e.Err)
}

func (e *ProviderTransientError) Unwrap() error { return e.Err }

// RateLimited 是否为提供方限流
func (e *ProviderTransientError) RateLimited() bool {
	return e.StatusCode == 429
}

// ProviderPermanentError 其他 4xx 或响应结构异常，直接返回
type ProviderPermanentError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderPermanentError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s rejected request (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s rejected request: %v", e.Provider, e.Err)
}

func (e *ProviderPermanentError) Unwrap() error { return e.Err }

// InvalidRequestError 调用参数非法
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// IsRetryable 是否允许重试
func IsRetryable(err error) bool {
	var transient *ProviderTransientError
	return errors.As(err, &transient)
}

// ErrorCode 返回错误对应的信封 code
func ErrorCode(err error) string {
	var (
		cfgErr       *ConfigurationError
		rateErr      *RateLimitExceededError
		transientErr *ProviderTransientError
		invalidErr   *InvalidRequestError
	)
	switch {
	case errors.As(err, &cfgErr):
		return CodeConfiguration
	case errors.As(err, &rateErr):
		return CodeRateLimitExceeded
	case errors.As(err, &transientErr):
		return CodeProviderUnavailable
	case errors.As(err, &invalidErr):
		return CodeInvalidRequest
	default:
		return CodeProviderRejected
	}
}

// WaitHint 返回错误携带的等待提示
func WaitHint(err error) time.Duration {
	var rateErr *RateLimitExceededError
	if errors.As(err, &rateErr) {
		return rateErr.WaitHint
	}
	var transientErr *ProviderTransientError
	if errors.As(err, &transientErr) {
		return transientErr.RetryAfter
	}
	return 0
}
