package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"ai-gateway-api/internal/domain/service"
)

var (
	retryAfterPattern = regexp.MustCompile(`(?i)(?:try again|retry) (?:in|after) ([0-9]+(?:\.[0-9]+)?)\s*(ms|s|sec|secs|seconds?)?`)
	statusCodePattern = regexp.MustCompile(`(?i)status(?: code)?:?\s*(\d{3})`)
)

// transientHints 无状态码时据错误信息判为可重试
var transientHints = []string{
	"rate limit",
	"too many requests",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"unexpected eof",
	"temporarily unavailable",
	"server is overloaded",
	"no such host",
}

// Classify 将提供方 SDK 错误归类为 ProviderTransientError / ProviderPermanentError
// 已归类的错误原样返回
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var (
		transient *service.ProviderTransientError
		permanent *service.ProviderPermanentError
		cfgErr    *service.ConfigurationError
	)
	if errors.As(err, &transient) || errors.As(err, &permanent) || errors.As(err, &cfgErr) {
		return err
	}

	hint := parseRetryAfter(err.Error())

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return byStatus(provider, apiErr.HTTPStatusCode, hint, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return byStatus(provider, reqErr.HTTPStatusCode, hint, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &service.ProviderTransientError{Provider: provider, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &service.ProviderPermanentError{Provider: provider, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &service.ProviderTransientError{Provider: provider, RetryAfter: hint, Err: err}
	}

	msg := err.Error()
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil && code >= 400 {
			return byStatus(provider, code, hint, err)
		}
	}
	lower := strings.ToLower(msg)
	for _, h := range transientHints {
		if strings.Contains(lower, h) {
			return &service.ProviderTransientError{Provider: provider, RetryAfter: hint, Err: err}
		}
	}
	return &service.ProviderPermanentError{Provider: provider, Err: err}
}

func byStatus(provider string, code int, hint time.Duration, err error) error {
	switch {
	case code == 0,
		code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= http.StatusInternalServerError:
		return &service.ProviderTransientError{Provider: provider, StatusCode: code, RetryAfter: hint, Err: err}
	default:
		return &service.ProviderPermanentError{Provider: provider, StatusCode: code, Err: err}
	}
}

// parseRetryAfter 解析 "try again in 20s" / "retry after 1.5 seconds" 形式的提示
func parseRetryAfter(msg string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0
	}
	if strings.EqualFold(m[2], "ms") {
		return time.Duration(v * float64(time.Millisecond))
	}
	return time.Duration(v * float64(time.Second))
}

// isResponseFormatUnsupported 兼容接口不支持 response_format 时的报错特征
func isResponseFormatUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "response_format"):
		return true
	case strings.Contains(msg, "json_object") && strings.Contains(msg, "not supported"):
		return true
	case strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response"):
		return true
	default:
		return false
	}
}
