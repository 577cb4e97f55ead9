package repository

import (
	"context"

	"ai-gateway-api/internal/domain/entity"
)

// LLMUsageEventRepository 调用审计流水存储
type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
}
