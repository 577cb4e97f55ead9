// Package gateway 网关门面：串联 provider 解析、提示词、限流、重试、用量与会话历史
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"ai-gateway-api/internal/application/conversation"
	"ai-gateway-api/internal/application/ratelimit"
	"ai-gateway-api/internal/application/retry"
	"ai-gateway-api/internal/application/usage"
	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/internal/workflow/prompt"
	"ai-gateway-api/pkg/logger"
	"ai-gateway-api/pkg/metrics"
	"ai-gateway-api/pkg/tracer"
)

const anonymousUser = "anonymous"

// Renderer 提示词渲染
type Renderer interface {
	Render(ctx context.Context, t entity.AnalysisType, vars map[string]any) (prompt.Rendered, error)
}

// Option 网关可选项
type Option func(*Gateway)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithUsageRecorder 注入审计流水记录器
func WithUsageRecorder(r service.LLMUsageRecorder) Option {
	return func(g *Gateway) {
		if r != nil {
			g.audit = r
		}
	}
}

// Gateway 网关门面
type Gateway struct {
	providers service.ProviderResolver
	prompts   Renderer
	limiter   *ratelimit.Limiter
	executor  *retry.Executor
	ledger    *usage.Ledger
	history   *conversation.Store
	audit     service.LLMUsageRecorder
	now       func() time.Time
}

// NewGateway 创建网关门面
func NewGateway(
	providers service.ProviderResolver,
	prompts Renderer,
	limiter *ratelimit.Limiter,
	executor *retry.Executor,
	ledger *usage.Ledger,
	history *conversation.Store,
	opts ...Option,
) *Gateway {
	g := &Gateway{
		providers: providers,
		prompts:   prompts,
		limiter:   limiter,
		executor:  executor,
		ledger:    ledger,
		history:   history,
		audit:     service.NopUsageRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Analyze 执行一次分析调用；任何失败都以错误信封返回，不返回 Go error
func (g *Gateway) Analyze(ctx context.Context, req *entity.AnalysisRequest) *entity.AnalysisResult {
	started := g.now()
	ctx, span := tracer.Start(ctx, "gateway.Analyze")
	defer span.End()

	if req == nil {
		return g.fail(ctx, span, "unknown", "", &service.InvalidRequestError{Reason: "request is empty"})
	}
	if !req.Type.IsValid() {
		return g.fail(ctx, span, "unknown", string(req.Type),
			&service.InvalidRequestError{Field: "type", Reason: "unsupported analysis type " + string(req.Type)})
	}
	if req.UserID != "" {
		ctx = logger.WithContext(ctx, logger.UserIDKey, req.UserID)
	}
	if req.ConversationID != "" {
		ctx = logger.WithContext(ctx, logger.ConversationIDKey, req.ConversationID)
	}

	provider, err := g.providers.Resolve(req.Provider)
	if err != nil {
		return g.fail(ctx, span, fallback(req.Provider, "unknown"), string(req.Type), err)
	}
	desc := provider.Descriptor()
	model := req.Model
	if model == "" {
		model = desc.DefaultModel()
	}
	ctx = service.WithProvider(service.WithAnalysisType(ctx, string(req.Type)), desc.ID)
	ctx = logger.WithContext(ctx, logger.ProviderKey, desc.ID)
	span.SetAttributes(tracer.GatewayAttrs(desc.ID, model, string(req.Type))...)

	rendered, err := g.prompts.Render(ctx, req.Type, prompt.BuildVars(req.Content, req.Instructions))
	if err != nil {
		return g.fail(ctx, span, desc.ID, string(req.Type), &service.InvalidRequestError{Field: "type", Reason: err.Error()})
	}

	turns := g.loadHistory(ctx, req.ConversationID)

	estimated := g.limiter.EstimateTokens(rendered.System + rendered.User + historyText(turns))
	span.SetAttributes(attribute.Int("llm.estimated_tokens", estimated))
	if err := g.limiter.Check(ctx, estimated); err != nil {
		var rateErr *service.RateLimitExceededError
		if errors.As(err, &rateErr) {
			return g.fail(ctx, span, desc.ID, string(req.Type), err)
		}
		// 计数存储不可用时放行
		logger.Error(ctx, "rate limit check failed, allowing call", err)
	}

	call := &service.ProviderCall{
		Type:    req.Type,
		Model:   req.Model,
		System:  rendered.System,
		User:    rendered.User,
		History: turns,
		Content: req.Content,
	}
	var result *entity.AnalysisResult
	outcome, err := g.executor.Execute(ctx, "analyze", func(actx context.Context) error {
		r, err := provider.Analyze(actx, call)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	metrics.LLMCallDuration.WithLabelValues(desc.ID, model).Observe(g.now().Sub(started).Seconds())
	span.SetAttributes(attribute.Int("llm.attempts", outcome.Count()))
	if err != nil {
		return g.fail(ctx, span, desc.ID, string(req.Type), err)
	}
	if result == nil {
		return g.fail(ctx, span, desc.ID, string(req.Type),
			&service.ProviderPermanentError{Provider: desc.ID, Err: errors.New("provider returned no result")})
	}

	result.Type = req.Type
	result.Provider = desc.ID
	if result.Model == "" {
		result.Model = model
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = g.now()
	}
	result.Usage = result.Usage.Normalized()

	g.recordSuccess(ctx, req, provider, rendered.User, result, outcome, g.now().Sub(started))
	return result
}

// GetRecommendations 以 recommendations 模板分析，使用用户专属会话保留上下文
func (g *Gateway) GetRecommendations(ctx context.Context, userID string, content map[string]any) *entity.AnalysisResult {
	user := fallback(userID, anonymousUser)
	return g.Analyze(ctx, &entity.AnalysisRequest{
		Content:        content,
		Type:           entity.AnalysisTypeRecommendation,
		UserID:         userID,
		ConversationID: entity.RecommendationConversationID(user),
	})
}

// EstimateCost 按 provider 单价预估费用
func (g *Gateway) EstimateCost(ctx context.Context, params entity.CostParams) (float64, error) {
	if params.EstimatedTokens < 0 || params.PromptTokens < 0 || params.CompletionTokens < 0 {
		return 0, &service.InvalidRequestError{Field: "tokens", Reason: "must not be negative"}
	}
	provider, err := g.providers.Resolve(params.Provider)
	if err != nil {
		return 0, err
	}
	cost := provider.EstimateCost(params)
	logger.Debug(ctx, "cost estimated", "provider", provider.Descriptor().ID, "model", params.Model, "cost", cost)
	return cost, nil
}

// GetUsageStats 全局用量统计
func (g *Gateway) GetUsageStats(ctx context.Context, period entity.UsagePeriod) (*entity.UsageStats, error) {
	return g.ledger.GlobalStats(ctx, period)
}

// GetUserUsageStats 单用户用量统计
func (g *Gateway) GetUserUsageStats(ctx context.Context, userID string, period entity.UsagePeriod) (*entity.UsageStats, error) {
	return g.ledger.UserStats(ctx, userID, period)
}

// RateWindow 当前分钟的限流计数
func (g *Gateway) RateWindow(ctx context.Context) (entity.RateWindow, error) {
	return g.limiter.Window(ctx)
}

// Providers 返回全部 provider 的描述与可用性，探活并发进行
func (g *Gateway) Providers(ctx context.Context) []entity.ProviderStatus {
	ids := g.providers.IDs()
	defaultID := g.providers.DefaultID()
	out := make([]entity.ProviderStatus, len(ids))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, id := range ids {
		eg.Go(func() error {
			status := entity.ProviderStatus{
				ProviderDescriptor: entity.ProviderDescriptor{ID: id, Name: id},
				Default:            id == defaultID,
			}
			p, err := g.providers.Resolve(id)
			if err != nil {
				logger.Debug(egCtx, "provider not configured", "provider", id, "error", err.Error())
				out[i] = status
				return nil
			}
			status.ProviderDescriptor = p.Descriptor()
			status.ProviderDescriptor.ID = id
			status.Available = p.CheckAvailability(egCtx)
			status.CheckedAt = g.now()
			out[i] = status
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// History 会话历史
func (g *Gateway) History(ctx context.Context, conversationID string) ([]entity.ConversationTurn, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, &service.InvalidRequestError{Field: "conversation_id", Reason: "is empty"}
	}
	return g.history.History(ctx, conversationID)
}

// ClearHistory 清空会话历史
func (g *Gateway) ClearHistory(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return &service.InvalidRequestError{Field: "conversation_id", Reason: "is empty"}
	}
	return g.history.Clear(ctx, conversationID)
}

func (g *Gateway) loadHistory(ctx context.Context, conversationID string) []entity.ConversationTurn {
	if conversationID == "" {
		return nil
	}
	turns, err := g.history.History(ctx, conversationID)
	if err != nil {
		logger.Warn(ctx, "load conversation history failed, continuing without it", "error", err.Error())
		return nil
	}
	return turns
}

// recordSuccess 成功后各计数只更新一次，与尝试次数无关
func (g *Gateway) recordSuccess(
	ctx context.Context,
	req *entity.AnalysisRequest,
	provider service.Provider,
	userPrompt string,
	result *entity.AnalysisResult,
	outcome *retry.Outcome,
	elapsed time.Duration,
) {
	providerID := result.Provider
	u := result.Usage

	if err := g.ledger.Record(ctx, req.UserID, result.Model, u); err != nil {
		logger.Error(ctx, "record usage failed", err)
	}
	if err := g.limiter.Record(ctx, u.TotalTokens); err != nil {
		logger.Error(ctx, "record rate window failed", err)
	}

	if req.ConversationID != "" {
		now := g.now()
		err := g.history.Append(ctx, req.ConversationID,
			entity.NewConversationTurn(entity.RoleUser, userPrompt, now),
			entity.NewConversationTurn(entity.RoleAssistant, assistantText(result), now),
		)
		if err != nil {
			logger.Error(ctx, "append conversation history failed", err)
		}
	}

	cost := provider.EstimateCost(entity.CostParams{
		Model:            result.Model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
	})
	metrics.LLMTokensUsed.WithLabelValues(providerID, result.Model, "prompt").Add(float64(u.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(providerID, result.Model, "completion").Add(float64(u.CompletionTokens))
	metrics.LLMCostUSD.WithLabelValues(providerID, result.Model).Add(cost)
	metrics.LLMCallTotal.WithLabelValues(providerID, string(req.Type), "success").Inc()

	if err := g.audit.Record(ctx, service.LLMUsageInput{
		UserID:           fallback(req.UserID, anonymousUser),
		Provider:         providerID,
		Model:            result.Model,
		AnalysisType:     string(req.Type),
		ConversationID:   req.ConversationID,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		Attempts:         outcome.Count(),
		DurationMs:       int(elapsed.Milliseconds()),
		CostUSD:          cost,
	}); err != nil {
		logger.Warn(ctx, "audit usage event failed", "error", err.Error())
	}

	logger.Info(ctx, "analysis completed",
		"analysis_type", string(req.Type),
		"model", result.Model,
		"attempts", outcome.Count(),
		"total_tokens", u.TotalTokens,
		"duration_ms", elapsed.Milliseconds(),
	)
}

func (g *Gateway) fail(ctx context.Context, span trace.Span, providerID, analysisType string, err error) *entity.AnalysisResult {
	code := service.ErrorCode(err)
	tracer.RecordError(span, err)
	span.SetAttributes(attribute.String("gateway.error_code", code))
	metrics.LLMCallTotal.WithLabelValues(providerID, fallback(analysisType, "unknown"), code).Inc()

	switch code {
	case service.CodeRateLimitExceeded, service.CodeInvalidRequest:
		logger.Warn(ctx, "analysis rejected", "code", code, "error", err.Error())
	default:
		logger.Error(ctx, "analysis failed", err, "code", code)
	}
	return entity.NewErrorResult(err.Error(), code, service.WaitHint(err))
}

func historyText(turns []entity.ConversationTurn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Content)
	}
	return b.String()
}

func assistantText(r *entity.AnalysisResult) string {
	if r.Format == entity.FormatStructured {
		if b, err := json.Marshal(r.Data); err == nil {
			return string(b)
		}
	}
	return r.Content
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
