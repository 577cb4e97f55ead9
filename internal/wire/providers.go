package wire

import (
	"context"
	"strings"

	"ai-gateway-api/internal/application/audit"
	"ai-gateway-api/internal/application/conversation"
	"ai-gateway-api/internal/application/gateway"
	"ai-gateway-api/internal/application/ratelimit"
	"ai-gateway-api/internal/application/retry"
	"ai-gateway-api/internal/application/usage"
	"ai-gateway-api/internal/config"
	"ai-gateway-api/internal/domain/repository"
	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/internal/infrastructure/llm"
	"ai-gateway-api/internal/infrastructure/persistence/memory"
	"ai-gateway-api/internal/infrastructure/persistence/postgres"
	"ai-gateway-api/internal/infrastructure/persistence/redis"
	"ai-gateway-api/internal/interfaces/http/handler"
	"ai-gateway-api/internal/workflow/prompt"
	"ai-gateway-api/pkg/logger"
)

// KV 存储后端
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// ProvideKVStore 按配置提供 KV 存储；memory 仅适用于单实例
func ProvideKVStore(ctx context.Context, cfg *config.Config) (repository.KVStore, func(), error) {
	if strings.EqualFold(cfg.Cache.Backend, BackendMemory) {
		logger.Warn(ctx, "using in-memory kv store, counters are not shared across instances")
		return memory.NewKVStore(), func() {}, nil
	}

	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return redis.NewKVStore(client), cleanup, nil
}

// ProvidePostgresClientOptional 审计库可选：未启用或不可达时返回 nil，不阻塞启动
func ProvidePostgresClientOptional(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	if !cfg.Database.Postgres.Enabled {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Warn(ctx, "postgres not available, audit trail disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	if err := client.Migrate(ctx); err != nil {
		logger.Warn(ctx, "postgres migration failed, audit trail disabled", "error", err.Error())
		_ = client.Close()
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideUsageRecorder 提供审计流水记录器
func ProvideUsageRecorder(client *postgres.Client) service.LLMUsageRecorder {
	if client == nil {
		return service.NopUsageRecorder{}
	}
	return audit.NewLLMUsageRecorder(postgres.NewLLMUsageEventRepository(client))
}

// ProvideProviderRegistry 提供 provider 注册表
func ProvideProviderRegistry(cfg *config.Config) *llm.Registry {
	return llm.NewRegistry(&cfg.LLM)
}

// ProvidePromptRegistry 提供提示词模板注册表
func ProvidePromptRegistry(cfg *config.Config) (*prompt.Registry, error) {
	return prompt.NewRegistry(cfg.Prompts.Dir)
}

// ProvideLimiter 提供限流器
func ProvideLimiter(kv repository.KVStore, cfg *config.Config) *ratelimit.Limiter {
	rl := cfg.Gateway.RateLimit
	return ratelimit.NewLimiter(kv, ratelimit.Config{
		Scope:             rl.Scope,
		RequestsPerMinute: rl.RequestsPerMinute,
		TokensPerMinute:   rl.TokensPerMinute,
		TokensPerChar:     rl.TokensPerChar,
	})
}

// ProvideRetryExecutor 提供重试执行器
func ProvideRetryExecutor(cfg *config.Config) *retry.Executor {
	rc := cfg.Gateway.Retry
	return retry.NewExecutor(retry.Config{
		MaxAttempts:    rc.MaxAttempts,
		BaseDelay:      rc.BaseDelay,
		MaxDelay:       rc.MaxDelay,
		AttemptTimeout: rc.AttemptTimeout,
	})
}

// ProvideLedger 提供用量账本
func ProvideLedger(kv repository.KVStore, prices usage.PriceBook, cfg *config.Config) *usage.Ledger {
	return usage.NewLedger(kv, prices, cfg.Gateway.Usage.RetentionDays)
}

// ProvideConversationStore 提供会话历史存储
func ProvideConversationStore(kv repository.KVStore, cfg *config.Config) *conversation.Store {
	cc := cfg.Gateway.Conversation
	return conversation.NewStore(kv, cc.MaxTurns, cc.TTL)
}

// ProvideGateway 提供网关门面
func ProvideGateway(
	providers service.ProviderResolver,
	prompts *prompt.Registry,
	limiter *ratelimit.Limiter,
	executor *retry.Executor,
	ledger *usage.Ledger,
	history *conversation.Store,
	recorder service.LLMUsageRecorder,
) *gateway.Gateway {
	return gateway.NewGateway(providers, prompts, limiter, executor, ledger, history,
		gateway.WithUsageRecorder(recorder))
}

// ProvideAIHandler 提供 AI 处理器
func ProvideAIHandler(svc handler.AIService, cfg *config.Config) *handler.AIHandler {
	return handler.NewAIHandler(svc, handler.Limits{
		RequestsPerMinute: cfg.Gateway.RateLimit.RequestsPerMinute,
		TokensPerMinute:   cfg.Gateway.RateLimit.TokensPerMinute,
	})
}

// ProvideHealthHandler 提供健康检查处理器：KV 必需，审计库可选
func ProvideHealthHandler(cfg *config.Config, kv repository.KVStore, pg *postgres.Client) *handler.HealthHandler {
	h := handler.NewHealthHandler(cfg.App.Version).Require("kv", kv)
	if pg != nil {
		h.Optional("postgres", handler.PingFunc(pg.HealthCheck))
	}
	return h
}
