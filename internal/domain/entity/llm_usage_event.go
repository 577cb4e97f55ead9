package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LLMUsageEvent 一次成功逻辑调用的审计流水
type LLMUsageEvent struct {
	ID               string          `json:"id" gorm:"type:uuid;primaryKey"`
	UserID           string          `json:"user_id" gorm:"type:varchar(128);index;not null"`
	Provider         string          `json:"provider" gorm:"type:varchar(32);not null"`
	Model            string          `json:"model" gorm:"type:varchar(64);not null"`
	AnalysisType     string          `json:"analysis_type" gorm:"type:varchar(32);not null"`
	ConversationID   string          `json:"conversation_id,omitempty" gorm:"type:varchar(128)"`
	TokensPrompt     int             `json:"tokens_prompt" gorm:"not null;default:0"`
	TokensCompletion int             `json:"tokens_completion" gorm:"not null;default:0"`
	Attempts         int             `json:"attempts" gorm:"not null;default:1"`
	DurationMs       int             `json:"duration_ms" gorm:"not null;default:0"`
	CostUSD          decimal.Decimal `json:"cost_usd" gorm:"type:numeric(14,6);not null;default:0"`
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
}

func (LLMUsageEvent) TableName() string {
	return "llm_usage_events"
}
