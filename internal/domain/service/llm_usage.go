package service

import (
	"context"
)

// LLMUsageInput 一次成功逻辑调用的可计费与可观测数据。
// 说明：位于 domain/service，作为跨层的稳定契约（port），避免基础设施层依赖应用层实现。
type LLMUsageInput struct {
	UserID         string
	Provider       string
	Model          string
	AnalysisType   string
	ConversationID string

	PromptTokens     int
	CompletionTokens int
	Attempts         int
	DurationMs       int
	CostUSD          float64
}

// LLMUsageRecorder 记录调用审计流水。
// 约定：实现应尽量 best-effort，不应阻塞主流程。
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}

// NopUsageRecorder 不记录任何流水
type NopUsageRecorder struct{}

func (NopUsageRecorder) Record(context.Context, LLMUsageInput) error { return nil }
