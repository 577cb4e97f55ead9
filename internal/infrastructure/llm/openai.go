package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"

	"ai-gateway-api/internal/config"
	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/pkg/logger"
)

const OpenAIProviderID = "openai"

// openAICatalog 未配置模型目录时的默认目录
var openAICatalog = map[string]entity.ModelInfo{
	"gpt-4o-mini": {MaxTokens: 16384, InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006, IsDefault: true},
	"gpt-4o":      {MaxTokens: 16384, InputCostPer1K: 0.0025, OutputCostPer1K: 0.01},
	"gpt-4-turbo": {MaxTokens: 4096, InputCostPer1K: 0.01, OutputCostPer1K: 0.03},
}

// OpenAIProvider 基于 go-openai 的联网 provider
type OpenAIProvider struct {
	id     string
	client *openai.Client
	cfg    config.ProviderConfig
	models map[string]entity.ModelInfo
	avail  *availabilityCache
	now    func() time.Time
}

// NewOpenAIProvider 创建 OpenAI provider；缺少 API Key 时返回 ConfigurationError
func NewOpenAIProvider(id string, cfg config.ProviderConfig, availabilityTTL time.Duration) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &service.ConfigurationError{Provider: id, Reason: "api_key is not configured"}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	p := &OpenAIProvider{
		id:     id,
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		models: withConfiguredModel(catalogFromConfig(cfg.Models, openAICatalog), cfg.Model, cfg.MaxTokens),
		now:    time.Now,
	}
	p.avail = newAvailabilityCache(id, availabilityTTL, func(ctx context.Context) error {
		_, err := p.client.ListModels(ctx)
		return err
	})
	return p, nil
}

// Descriptor 实现 service.Provider
func (p *OpenAIProvider) Descriptor() entity.ProviderDescriptor {
	return entity.ProviderDescriptor{
		ID:     p.id,
		Name:   "OpenAI",
		Models: p.Models(),
		Capabilities: entity.Capabilities{
			StructuredOutput: true,
			Conversation:     true,
			Networked:        true,
		},
	}
}

// Models 实现 service.Provider
func (p *OpenAIProvider) Models() map[string]entity.ModelInfo {
	out := make(map[string]entity.ModelInfo, len(p.models))
	for k, v := range p.models {
		out[k] = v
	}
	return out
}

// EstimateCost 实现 service.Provider
func (p *OpenAIProvider) EstimateCost(params entity.CostParams) float64 {
	return EstimateCost(p.models, p.Descriptor().DefaultModel(), params)
}

// CheckAvailability 缓存的 ListModels 探活结果
func (p *OpenAIProvider) CheckAvailability(ctx context.Context) bool {
	return p.avail.Check(ctx)
}

// Analyze 实现 service.Provider
func (p *OpenAIProvider) Analyze(ctx context.Context, call *service.ProviderCall) (*entity.AnalysisResult, error) {
	model := call.Model
	if model == "" {
		model = p.Descriptor().DefaultModel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(call.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: call.System})
	for _, turn := range call.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: chatRole(turn.Role), Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: call.User})

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(p.cfg.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if p.cfg.MaxTokens > 0 {
		req.MaxTokens = p.cfg.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil && isResponseFormatUnsupported(err) {
		logger.Warn(ctx, "response_format rejected, retrying without it", "provider", p.id, "model", model)
		req.ResponseFormat = nil
		resp, err = p.client.CreateChatCompletion(ctx, req)
	}
	if err != nil {
		return nil, Classify(p.id, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &service.ProviderPermanentError{Provider: p.id, Err: errors.New("response contains no choices")}
	}

	usage := entity.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return parseCompletion(call.Type, resp.Choices[0].Message.Content, model, usage, p.now()), nil
}

func chatRole(r entity.Role) string {
	switch r {
	case entity.RoleSystem:
		return openai.ChatMessageRoleSystem
	case entity.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
