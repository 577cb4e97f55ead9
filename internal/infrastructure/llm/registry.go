package llm

import (
	"context"
	"sort"
	"sync"
	"time"

	"ai-gateway-api/internal/config"
	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/pkg/logger"
)

// provider 实现类型
const (
	KindSimulated  = "simulated"
	KindOpenAI     = "openai"
	KindCompatible = "compatible"
)

// Factory 根据配置构造 provider
type Factory func(ctx context.Context, id string, cfg config.ProviderConfig) (service.Provider, error)

// Registry 管理 provider 工厂与已构造的实例
type Registry struct {
	cfg       *config.LLMConfig
	factories map[string]Factory
	catalogs  map[string]map[string]entity.ModelInfo

	mu        sync.RWMutex
	providers map[string]service.Provider
}

var _ service.ProviderResolver = (*Registry)(nil)

// NewRegistry 创建注册表并注册内置实现
func NewRegistry(cfg *config.LLMConfig) *Registry {
	r := &Registry{
		cfg:       cfg,
		factories: make(map[string]Factory),
		catalogs:  make(map[string]map[string]entity.ModelInfo),
		providers: make(map[string]service.Provider),
	}

	ttl := cfg.AvailabilityTTL
	r.Register(KindSimulated, func(_ context.Context, _ string, pc config.ProviderConfig) (service.Provider, error) {
		return NewSimulatedProvider(SimulatedConfig{
			ResponseDelay: pc.ResponseDelay,
			ErrorRate:     pc.ErrorRate,
			Seed:          pc.Seed,
		}), nil
	}, (&SimulatedProvider{}).Models())
	r.Register(KindOpenAI, func(_ context.Context, id string, pc config.ProviderConfig) (service.Provider, error) {
		return NewOpenAIProvider(id, pc, ttl)
	}, openAICatalog)
	r.Register(KindCompatible, func(ctx context.Context, id string, pc config.ProviderConfig) (service.Provider, error) {
		return NewCompatibleProvider(ctx, id, pc, ttl)
	}, nil)
	return r
}

// Register 注册实现类型；catalog 为该类型未配置模型目录时的默认目录
func (r *Registry) Register(kind string, f Factory, catalog map[string]entity.ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
	r.catalogs[kind] = catalog
}

// DefaultID 默认 provider id
func (r *Registry) DefaultID() string {
	if r.cfg.ForceSimulated || r.cfg.DefaultProvider == "" {
		return SimulatedProviderID
	}
	return r.cfg.DefaultProvider
}

// IDs 已配置的 provider id（总是包含 simulated），按字典序
func (r *Registry) IDs() []string {
	seen := map[string]struct{}{SimulatedProviderID: {}}
	for id := range r.cfg.Providers {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) providerConfig(id string) (config.ProviderConfig, string, bool) {
	pc, ok := r.cfg.Providers[id]
	if !ok && id != SimulatedProviderID {
		return pc, "", false
	}
	kind := pc.Type
	if kind == "" {
		kind = id
	}
	return pc, kind, true
}

// Resolve 返回 provider 实例，同一 id 只构造一次
// 空 id 解析为默认 provider；force_simulated 时总是返回 simulated
func (r *Registry) Resolve(id string) (service.Provider, error) {
	if r.cfg.ForceSimulated {
		id = SimulatedProviderID
	}
	if id == "" {
		id = r.DefaultID()
	}

	r.mu.RLock()
	p, ok := r.providers[id]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	pc, kind, ok := r.providerConfig(id)
	if !ok {
		return nil, &service.ConfigurationError{Provider: id, Reason: "unknown provider"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[id]; ok {
		return p, nil
	}
	factory, ok := r.factories[kind]
	if !ok {
		return nil, &service.ConfigurationError{Provider: id, Reason: "unsupported provider type " + kind}
	}

	start := time.Now()
	p, err := factory(context.Background(), id, pc)
	if err != nil {
		return nil, err
	}
	r.providers[id] = p
	logger.Info(context.Background(), "llm provider initialized",
		"provider", id, "type", kind, "duration_ms", time.Since(start).Milliseconds())
	return p, nil
}

// Catalog 不构造 provider 即可得到的模型目录
func (r *Registry) Catalog(id string) map[string]entity.ModelInfo {
	pc, kind, ok := r.providerConfig(id)
	if !ok {
		return nil
	}
	r.mu.RLock()
	fallback := r.catalogs[kind]
	r.mu.RUnlock()
	return withConfiguredModel(catalogFromConfig(pc.Models, fallback), pc.Model, pc.MaxTokens)
}

// Price 按模型名查找单价，多个 provider 同名时取 id 字典序靠前者
func (r *Registry) Price(model string) (entity.ModelInfo, bool) {
	for _, id := range r.IDs() {
		if info, ok := r.Catalog(id)[model]; ok {
			return info, true
		}
	}
	return entity.ModelInfo{}, false
}
