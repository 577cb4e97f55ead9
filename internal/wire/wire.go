//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"ai-gateway-api/internal/application/gateway"
	"ai-gateway-api/internal/application/usage"
	"ai-gateway-api/internal/config"
	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/internal/infrastructure/llm"
	"ai-gateway-api/internal/interfaces/http/handler"
	"ai-gateway-api/internal/interfaces/http/middleware"
	"ai-gateway-api/internal/interfaces/http/router"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		StoreSet,
		GatewaySet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeGateway 只初始化网关门面（CLI / 离线任务）
func InitializeGateway(ctx context.Context, cfg *config.Config) (*gateway.Gateway, func(), error) {
	wire.Build(
		StoreSet,
		GatewaySet,
	)
	return nil, nil, nil
}

// StoreSet 存储提供者集合
var StoreSet = wire.NewSet(
	ProvideKVStore,
	ProvidePostgresClientOptional,
	ProvideUsageRecorder,
)

// GatewaySet 网关提供者集合
var GatewaySet = wire.NewSet(
	ProvideProviderRegistry,
	ProvidePromptRegistry,
	ProvideLimiter,
	ProvideRetryExecutor,
	ProvideLedger,
	ProvideConversationStore,
	ProvideGateway,
	wire.Bind(new(service.ProviderResolver), new(*llm.Registry)),
	wire.Bind(new(usage.PriceBook), new(*llm.Registry)),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideAIHandler,
	ProvideHealthHandler,
	wire.Bind(new(handler.AIService), new(*gateway.Gateway)),
	wire.Bind(new(middleware.RateWindowSource), new(*gateway.Gateway)),
	router.New,
)
