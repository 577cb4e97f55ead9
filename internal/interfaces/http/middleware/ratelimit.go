// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/pkg/logger"
)

// RateWindowSource 当前分钟限流计数来源
type RateWindowSource interface {
	RateWindow(ctx context.Context) (entity.RateWindow, error)
}

// RateLimitHeadersConfig 限流响应头配置
type RateLimitHeadersConfig struct {
	// RequestsPerMinute 为 0 时不输出响应头
	RequestsPerMinute int64
}

// RateLimitHeaders 在响应上附加 X-RateLimit-Limit / Remaining / Reset
// 拒绝判断由网关完成，这里只做展示；计数读取失败时不输出
func RateLimitHeaders(cfg RateLimitHeadersConfig, source RateWindowSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.RequestsPerMinute <= 0 || source == nil {
			c.Next()
			return
		}

		window, err := source.RateWindow(c.Request.Context())
		if err != nil {
			logger.Warn(c.Request.Context(), "read rate window failed", "error", err.Error())
			c.Next()
			return
		}

		remaining := cfg.RequestsPerMinute - window.RequestCount
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(cfg.RequestsPerMinute, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(window.ResetAt().Unix(), 10))

		c.Next()
	}
}
