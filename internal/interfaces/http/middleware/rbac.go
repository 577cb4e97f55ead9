// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 调用方角色
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Permission 权限类型
type Permission string

const (
	PermAnalyze      Permission = "ai:analyze"
	PermUsageRead    Permission = "usage:read"
	PermUsageReadAll Permission = "usage:read_all"
)

var rolePermissions = map[string][]Permission{
	RoleAdmin: {PermAnalyze, PermUsageRead, PermUsageReadAll},
	RoleUser:  {PermAnalyze, PermUsageRead},
}

// HasPermission 检查角色是否具有指定权限
func HasPermission(role string, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// RequirePermission 权限检查中间件
func RequirePermission(perm Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		if role == "" {
			abortForbidden(c, "missing role in context")
			return
		}
		if !HasPermission(role, perm) {
			abortForbidden(c, "permission denied")
			return
		}
		c.Next()
	}
}

// abortForbidden 终止请求并返回 403
func abortForbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"code":     http.StatusForbidden,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}
