package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"ai-gateway-api/internal/config"
	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/service"
)

// CompatibleProvider 通过 eino ChatModel 访问 OpenAI 兼容接口（DeepSeek、Qwen、本地 vLLM 等）
type CompatibleProvider struct {
	id     string
	chat   model.BaseChatModel
	cfg    config.ProviderConfig
	models map[string]entity.ModelInfo
	avail  *availabilityCache
	now    func() time.Time
}

// NewCompatibleProvider 创建兼容接口 provider；缺少 api_key / base_url / model 时返回 ConfigurationError
func NewCompatibleProvider(ctx context.Context, id string, cfg config.ProviderConfig, availabilityTTL time.Duration) (*CompatibleProvider, error) {
	switch {
	case cfg.APIKey == "":
		return nil, &service.ConfigurationError{Provider: id, Reason: "api_key is not configured"}
	case cfg.BaseURL == "":
		return nil, &service.ConfigurationError{Provider: id, Reason: "base_url is not configured"}
	case cfg.Model == "":
		return nil, &service.ConfigurationError{Provider: id, Reason: "model is not configured"}
	}

	chatCfg := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.MaxTokens > 0 {
		chatCfg.MaxTokens = ptrInt(cfg.MaxTokens)
	}
	if cfg.Temperature > 0 {
		chatCfg.Temperature = ptrFloat32(float32(cfg.Temperature))
	}
	chatModel, err := openai.NewChatModel(ctx, chatCfg)
	if err != nil {
		return nil, &service.ConfigurationError{Provider: id, Reason: fmt.Sprintf("create chat model: %v", err)}
	}
	return newCompatibleProvider(id, cfg, chatModel, availabilityTTL), nil
}

func newCompatibleProvider(id string, cfg config.ProviderConfig, chat model.BaseChatModel, availabilityTTL time.Duration) *CompatibleProvider {
	p := &CompatibleProvider{
		id:     id,
		chat:   chat,
		cfg:    cfg,
		models: withConfiguredModel(catalogFromConfig(cfg.Models, nil), cfg.Model, cfg.MaxTokens),
		now:    time.Now,
	}
	p.avail = newAvailabilityCache(id, availabilityTTL, func(ctx context.Context) error {
		_, err := p.chat.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
		return err
	})
	return p
}

// Descriptor 实现 service.Provider
func (p *CompatibleProvider) Descriptor() entity.ProviderDescriptor {
	return entity.ProviderDescriptor{
		ID:     p.id,
		Name:   "OpenAI-compatible (" + p.id + ")",
		Models: p.Models(),
		Capabilities: entity.Capabilities{
			StructuredOutput: false,
			Conversation:     true,
			Networked:        true,
		},
	}
}

// Models 实现 service.Provider
func (p *CompatibleProvider) Models() map[string]entity.ModelInfo {
	out := make(map[string]entity.ModelInfo, len(p.models))
	for k, v := range p.models {
		out[k] = v
	}
	return out
}

// EstimateCost 实现 service.Provider
func (p *CompatibleProvider) EstimateCost(params entity.CostParams) float64 {
	return EstimateCost(p.models, p.Descriptor().DefaultModel(), params)
}

// CheckAvailability 缓存的 1-token 探活结果
func (p *CompatibleProvider) CheckAvailability(ctx context.Context) bool {
	return p.avail.Check(ctx)
}

// Analyze 实现 service.Provider
func (p *CompatibleProvider) Analyze(ctx context.Context, call *service.ProviderCall) (*entity.AnalysisResult, error) {
	modelName := call.Model
	if modelName == "" {
		modelName = p.cfg.Model
	}

	msgs := make([]*schema.Message, 0, len(call.History)+2)
	msgs = append(msgs, schema.SystemMessage(call.System))
	for _, turn := range call.History {
		switch turn.Role {
		case entity.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(turn.Content, nil))
		case entity.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(turn.Content))
		default:
			msgs = append(msgs, schema.UserMessage(turn.Content))
		}
	}
	msgs = append(msgs, schema.UserMessage(call.User))

	out, err := p.chat.Generate(ctx, msgs, model.WithModel(modelName))
	if err != nil {
		return nil, Classify(p.id, err)
	}
	if out == nil {
		return nil, &service.ProviderPermanentError{Provider: p.id, Err: errors.New("empty response message")}
	}

	var usage entity.TokenUsage
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		usage = entity.TokenUsage{
			PromptTokens:     out.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: out.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      out.ResponseMeta.Usage.TotalTokens,
		}
	}
	return parseCompletion(call.Type, out.Content, modelName, usage, p.now()), nil
}

func ptrInt(v int) *int {
	return &v
}

func ptrFloat32(f float32) *float32 {
	return &f
}
