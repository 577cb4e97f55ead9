// Package service 定义领域服务端口
package service

import (
	"context"

	"ai-gateway-api/internal/domain/entity"
)

// ProviderCall 发往提供方的一次调用（提示词已渲染）
type ProviderCall struct {
	Type    entity.AnalysisType
	Model   string
	System  string
	User    string
	History []entity.ConversationTurn
	// Content 原始输入，simulated provider 据此生成结果
	Content map[string]any
}

// Provider 统一的 AI 后端契约
type Provider interface {
	Descriptor() entity.ProviderDescriptor
	// Analyze 执行一次调用；失败时返回 ProviderTransientError / ProviderPermanentError
	Analyze(ctx context.Context, call *ProviderCall) (*entity.AnalysisResult, error)
	Models() map[string]entity.ModelInfo
	EstimateCost(params entity.CostParams) float64
	CheckAvailability(ctx context.Context) bool
}

// ProviderResolver 按 id 解析提供方
type ProviderResolver interface {
	// Resolve 空 id 表示默认提供方；未知 id 或缺少配置返回 ConfigurationError
	Resolve(id string) (Provider, error)
	IDs() []string
	DefaultID() string
}
