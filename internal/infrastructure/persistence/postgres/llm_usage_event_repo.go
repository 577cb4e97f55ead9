package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/repository"
)

var _ repository.LLMUsageEventRepository = (*LLMUsageEventRepository)(nil)

type LLMUsageEventRepository struct {
	client *Client
}

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := r.client.db.WithContext(ctx).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create llm usage event: %w", err)
	}
	return nil
}
