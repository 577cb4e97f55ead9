package dto

import (
	"time"

	"ai-gateway-api/internal/domain/entity"
)

// AnalyzeRequest 分析请求
type AnalyzeRequest struct {
	Content        map[string]any `json:"content" binding:"required"`
	Type           string         `json:"type" binding:"required"`
	Model          string         `json:"model,omitempty" binding:"max=64"`
	Instructions   string         `json:"instructions,omitempty" binding:"max=4000"`
	Provider       string         `json:"provider,omitempty" binding:"max=32"`
	ConversationID string         `json:"conversation_id,omitempty" binding:"max=128"`
}

// ToEntity 转换为领域请求，调用方身份来自认证信息
func (r *AnalyzeRequest) ToEntity(userID string) *entity.AnalysisRequest {
	return &entity.AnalysisRequest{
		Content:        r.Content,
		Type:           entity.AnalysisType(r.Type),
		Instructions:   r.Instructions,
		Model:          r.Model,
		UserID:         userID,
		Provider:       r.Provider,
		ConversationID: r.ConversationID,
	}
}

// RecommendationsRequest 推荐请求；user_id 仅在未启用认证时生效
// context 可以是对象，也可以是纯文本（作为 {"context": 文本} 传入模板）
type RecommendationsRequest struct {
	UserID  string `json:"user_id,omitempty" binding:"max=128"`
	Context any    `json:"context"`
}

// ContextMap 规范化 context；非对象且非字符串时返回 false
func (r *RecommendationsRequest) ContextMap() (map[string]any, bool) {
	switch v := r.Context.(type) {
	case nil:
		return map[string]any{}, true
	case string:
		return map[string]any{"context": v}, true
	case map[string]any:
		return v, true
	default:
		return nil, false
	}
}

// EstimateCostRequest 费用预估请求
type EstimateCostRequest struct {
	Provider         string `json:"provider,omitempty"`
	Model            string `json:"model,omitempty"`
	EstimatedTokens  int    `json:"estimated_tokens,omitempty" binding:"min=0"`
	PromptTokens     int    `json:"prompt_tokens,omitempty" binding:"min=0"`
	CompletionTokens int    `json:"completion_tokens,omitempty" binding:"min=0"`
}

// ToEntity 转换为费用参数
func (r *EstimateCostRequest) ToEntity() entity.CostParams {
	return entity.CostParams{
		Provider:         r.Provider,
		Model:            r.Model,
		EstimatedTokens:  r.EstimatedTokens,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
	}
}

// EstimateCostResponse 费用预估响应
type EstimateCostResponse struct {
	Cost     float64 `json:"cost"`
	Provider string  `json:"provider,omitempty"`
	Model    string  `json:"model,omitempty"`
}

// ProvidersResponse provider 列表
type ProvidersResponse struct {
	Default   string                  `json:"default"`
	Providers []entity.ProviderStatus `json:"providers"`
}

// ConversationResponse 会话历史
type ConversationResponse struct {
	ID    string                    `json:"id"`
	Turns []entity.ConversationTurn `json:"turns"`
}

// RateWindowResponse 当前分钟限流计数
type RateWindowResponse struct {
	Scope             string    `json:"scope"`
	RequestCount      int64     `json:"request_count"`
	TokenCount        int64     `json:"token_count"`
	RequestsPerMinute int64     `json:"requests_per_minute"`
	TokensPerMinute   int64     `json:"tokens_per_minute"`
	ResetAt           time.Time `json:"reset_at"`
}
