// Package entity 定义领域实体
package entity

import (
	"math"
	"time"
)

// AnalysisType 分析类型，决定使用的提示词模板与结果结构
type AnalysisType string

const (
	AnalysisTypeEpisode        AnalysisType = "episode_analysis"
	AnalysisTypePattern        AnalysisType = "pattern_analysis"
	AnalysisTypeTrigger        AnalysisType = "trigger_identification"
	AnalysisTypeRecommendation AnalysisType = "recommendations"
	AnalysisTypeProgress       AnalysisType = "progress_summary"
)

// AnalysisTypes 返回全部分析类型
func AnalysisTypes() []AnalysisType {
	return []AnalysisType{
		AnalysisTypeEpisode,
		AnalysisTypePattern,
		AnalysisTypeTrigger,
		AnalysisTypeRecommendation,
		AnalysisTypeProgress,
	}
}

// IsValid 检查分析类型是否受支持
func (t AnalysisType) IsValid() bool {
	for _, v := range AnalysisTypes() {
		if t == v {
			return true
		}
	}
	return false
}

// AnalysisRequest 一次分析调用的输入
type AnalysisRequest struct {
	Content        map[string]any `json:"content"`
	Type           AnalysisType   `json:"type"`
	Instructions   string         `json:"instructions,omitempty"`
	Model          string         `json:"model,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// ResultFormat 结果格式
type ResultFormat string

const (
	FormatStructured ResultFormat = "structured"
	FormatText       ResultFormat = "text"
)

// TokenUsage Token 用量
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Normalized 补齐 total，提供方只返回分项时使用
func (u TokenUsage) Normalized() TokenUsage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// AnalysisResult 分析结果信封
// 成功时包含 data 或 content 之一；失败时只包含 error/code/retry_after
type AnalysisResult struct {
	Type       AnalysisType   `json:"type,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Content    string         `json:"content,omitempty"`
	Format     ResultFormat   `json:"format,omitempty"`
	Model      string         `json:"model,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Usage      TokenUsage     `json:"usage,omitzero"`
	Timestamp  time.Time      `json:"timestamp,omitzero"`
	Error      string         `json:"error,omitempty"`
	Code       string         `json:"code,omitempty"`
	RetryAfter float64        `json:"retry_after,omitempty"`
}

// NewStructuredResult 创建结构化成功结果
func NewStructuredResult(t AnalysisType, data map[string]any, model string, usage TokenUsage, at time.Time) *AnalysisResult {
	if data == nil {
		data = map[string]any{}
	}
	return &AnalysisResult{
		Type:      t,
		Data:      data,
		Format:    FormatStructured,
		Model:     model,
		Usage:     usage.Normalized(),
		Timestamp: at,
	}
}

// NewTextResult 创建文本成功结果（响应无法解析为 JSON 时的降级）
func NewTextResult(t AnalysisType, content, model string, usage TokenUsage, at time.Time) *AnalysisResult {
	return &AnalysisResult{
		Type:      t,
		Content:   content,
		Format:    FormatText,
		Model:     model,
		Usage:     usage.Normalized(),
		Timestamp: at,
	}
}

// NewErrorResult 创建错误结果
func NewErrorResult(message, code string, retryAfter time.Duration) *AnalysisResult {
	r := &AnalysisResult{Error: message, Code: code}
	if retryAfter > 0 {
		r.RetryAfter = math.Ceil(retryAfter.Seconds())
	}
	return r
}

// IsError 是否为错误结果
func (r *AnalysisResult) IsError() bool {
	return r != nil && r.Error != ""
}
