// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "ai-gateway-api/pkg/errors"
	"ai-gateway-api/pkg/logger"
	"ai-gateway-api/pkg/utils"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
	// SkipPaths 跳过认证的路径前缀
	SkipPaths []string
	// Enabled 是否启用认证
	Enabled bool
}

// Auth 认证中间件
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		// 未启用认证时以内部调用方身份放行
		if !cfg.Enabled {
			c.Set("role", RoleAdmin)
			c.Next()
			return
		}

		for _, path := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, apperrors.ErrTokenMissing)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, apperrors.ErrTokenInvalid.WithDetail("invalid authorization format"))
			return
		}

		claims, err := jwtManager.ParseToken(parts[1])
		if err != nil {
			appErr := apperrors.ErrTokenInvalid
			if errors.Is(err, utils.ErrExpiredToken) {
				appErr = apperrors.ErrTokenExpired
			}
			abortUnauthorized(c, appErr)
			return
		}
		if claims.UserID == "" {
			abortUnauthorized(c, apperrors.ErrTokenInvalid.WithDetail("token has no user"))
			return
		}

		role := claims.Role
		if role == "" {
			role = RoleUser
		}
		c.Set("user_id", claims.UserID)
		c.Set("role", role)

		ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// abortUnauthorized 终止请求并返回 401
func abortUnauthorized(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":     http.StatusUnauthorized,
		"message":  err.Message,
		"error":    gin.H{"error_code": string(err.Code), "details": err.Detail},
		"trace_id": c.GetString("trace_id"),
	})
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
