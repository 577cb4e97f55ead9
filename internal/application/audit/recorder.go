// Package audit 记录网关调用审计流水
package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/repository"
	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/pkg/logger"
)

var _ service.LLMUsageRecorder = (*LLMUsageRecorder)(nil)

// LLMUsageRecorder 将成功调用写入审计表
type LLMUsageRecorder struct {
	usageRepo repository.LLMUsageEventRepository
}

func NewLLMUsageRecorder(usageRepo repository.LLMUsageEventRepository) *LLMUsageRecorder {
	return &LLMUsageRecorder{usageRepo: usageRepo}
}

// Record 写入失败只记录日志，不影响调用结果
func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.usageRepo == nil {
		return nil
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = "anonymous"
	}

	evt := &entity.LLMUsageEvent{
		UserID:           userID,
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		AnalysisType:     strings.TrimSpace(in.AnalysisType),
		ConversationID:   strings.TrimSpace(in.ConversationID),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		Attempts:         in.Attempts,
		DurationMs:       in.DurationMs,
		CostUSD:          decimal.NewFromFloat(in.CostUSD).Round(6),
	}
	if err := r.usageRepo.Create(ctx, evt); err != nil {
		logger.Warn(ctx, "failed to write llm usage event", "error", err.Error())
	}
	return nil
}
