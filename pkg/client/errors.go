package client

import (
	"fmt"
	"time"
)

// StatusError 非 2xx 响应（重试耗尽或不可重试）
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// AuthFailed 是否为 401/403
func (e *StatusError) AuthFailed() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// RateLimitedError 服务端返回 429 且调用方未选择等待
type RateLimitedError struct {
	Method     string
	URL        string
	RetryAfter time.Duration
	Body       []byte
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s %s: rate limited, retry after %s", e.Method, e.URL, e.RetryAfter)
}
