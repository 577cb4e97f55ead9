package entity

import (
	"time"
)

// Role 会话角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn 会话中的一条消息
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewConversationTurn 创建会话消息
func NewConversationTurn(role Role, content string, at time.Time) ConversationTurn {
	return ConversationTurn{
		Role:      role,
		Content:   content,
		Timestamp: at,
	}
}

// RecommendationConversationID 推荐接口使用的会话 ID
func RecommendationConversationID(userID string) string {
	return "recommendations:" + userID
}
