// Package middleware 提供 HTTP 中间件
package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ai-gateway-api/pkg/logger"
)

// AccessLogConfig 访问日志配置
type AccessLogConfig struct {
	// SkipPaths 不记录的路径前缀
	SkipPaths []string
	// SlowThreshold 超过该耗时以 WARN 记录，0 表示不区分
	SlowThreshold time.Duration
}

// AccessLog 访问日志中间件：5xx 记 ERROR，4xx 与慢请求记 WARN
func AccessLog(cfg AccessLogConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				c.Next()
				return
			}
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		case cfg.SlowThreshold > 0 && duration > cfg.SlowThreshold:
			level = slog.LevelWarn
		}

		logger.FromContext(c.Request.Context()).Log(c.Request.Context(), level, "api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"response_size", c.Writer.Size(),
		)
	}
}

// DefaultAccessLogSkipPaths 默认不记录的路径
var DefaultAccessLogSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
