package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"ai-gateway-api/internal/application/conversation"
	"ai-gateway-api/internal/application/ratelimit"
	"ai-gateway-api/internal/application/retry"
	"ai-gateway-api/internal/application/usage"
	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/internal/infrastructure/llm"
	"ai-gateway-api/internal/infrastructure/persistence/memory"
	"ai-gateway-api/internal/workflow/prompt"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

// stubProvider 按脚本返回错误，之后返回固定结果
type stubProvider struct {
	id      string
	script  []error
	usage   entity.TokenUsage
	models  map[string]entity.ModelInfo
	mu      sync.Mutex
	calls   int
	history [][]entity.ConversationTurn
}

func (s *stubProvider) Descriptor() entity.ProviderDescriptor {
	return entity.ProviderDescriptor{ID: s.id, Name: s.id, Models: s.Models()}
}

func (s *stubProvider) Models() map[string]entity.ModelInfo {
	if s.models != nil {
		return s.models
	}
	return map[string]entity.ModelInfo{"stub-model": {InputCostPer1K: 0.01, OutputCostPer1K: 0.03, IsDefault: true}}
}

func (s *stubProvider) EstimateCost(p entity.CostParams) float64 {
	return llm.EstimateCost(s.Models(), "stub-model", p)
}

func (s *stubProvider) CheckAvailability(context.Context) bool { return true }

func (s *stubProvider) Analyze(_ context.Context, call *service.ProviderCall) (*entity.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.history = append(s.history, call.History)
	if s.calls <= len(s.script) {
		return nil, s.script[s.calls-1]
	}
	return entity.NewStructuredResult(call.Type, map[string]any{"ok": true}, "stub-model", s.usage, time.Time{}), nil
}

type stubResolver struct {
	providers map[string]service.Provider
	def       string
}

func (r *stubResolver) Resolve(id string) (service.Provider, error) {
	if id == "" {
		id = r.def
	}
	p, ok := r.providers[id]
	if !ok {
		return nil, &service.ConfigurationError{Provider: id, Reason: "unknown provider"}
	}
	return p, nil
}

func (r *stubResolver) IDs() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *stubResolver) DefaultID() string { return r.def }

type fixture struct {
	gw       *Gateway
	clock    *clock
	stub     *stubProvider
	limiter  *ratelimit.Limiter
	ledger   *usage.Ledger
	history  *conversation.Store
	audit    *auditSpy
	resolver *stubResolver
}

type auditSpy struct {
	events []service.LLMUsageInput
}

func (a *auditSpy) Record(_ context.Context, in service.LLMUsageInput) error {
	a.events = append(a.events, in)
	return nil
}

func newFixture(t *testing.T, limits ratelimit.Config) *fixture {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 10, 12, 0, 15, 0, time.UTC)}
	store := memory.NewKVStoreWithClock(c.now)

	stub := &stubProvider{id: "stub", usage: entity.TokenUsage{PromptTokens: 700, CompletionTokens: 300}}
	resolver := &stubResolver{
		providers: map[string]service.Provider{
			"stub":                   stub,
			llm.SimulatedProviderID: llm.NewSimulatedProvider(llm.SimulatedConfig{Seed: 1}),
		},
		def: "stub",
	}
	prompts, err := prompt.NewRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	if limits.Scope == "" {
		limits.Scope = "test"
	}
	limiter := ratelimit.NewLimiter(store, limits, ratelimit.WithClock(c.now))
	executor := retry.NewExecutor(
		retry.Config{MaxAttempts: 3, BaseDelay: time.Second, AttemptTimeout: time.Second},
		retry.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	prices := priceFunc(func(model string) (entity.ModelInfo, bool) {
		info, ok := stub.Models()[model]
		return info, ok
	})
	ledger := usage.NewLedger(store, prices, 90, usage.WithClock(c.now))
	history := conversation.NewStore(store, 20, 24*time.Hour)
	audit := &auditSpy{}

	gw := NewGateway(resolver, prompts, limiter, executor, ledger, history,
		WithClock(c.now), WithUsageRecorder(audit))
	return &fixture{gw: gw, clock: c, stub: stub, limiter: limiter, ledger: ledger, history: history, audit: audit, resolver: resolver}
}

type priceFunc func(string) (entity.ModelInfo, bool)

func (f priceFunc) Price(model string) (entity.ModelInfo, bool) { return f(model) }

func transient(status int) error {
	return &service.ProviderTransientError{Provider: "stub", StatusCode: status, Err: errors.New("upstream")}
}

func episodeRequest() *entity.AnalysisRequest {
	return &entity.AnalysisRequest{
		Type:    entity.AnalysisTypeEpisode,
		Content: map[string]any{"severity": 9, "triggers": []any{"stress"}},
		UserID:  "u1",
	}
}

func TestAnalyze_RetriesThenRecordsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ratelimit.Config{RequestsPerMinute: 60, TokensPerMinute: 90000})
	f.stub.script = []error{transient(503), transient(502)}

	res := f.gw.Analyze(ctx, episodeRequest())
	if res.IsError() {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if f.stub.calls != 3 {
		t.Fatalf("provider calls = %d, want 3", f.stub.calls)
	}
	if res.Provider != "stub" || res.Type != entity.AnalysisTypeEpisode || res.Usage.TotalTokens != 1000 {
		t.Errorf("result = %+v", res)
	}

	window, _ := f.limiter.Window(ctx)
	if window.RequestCount != 1 || window.TokenCount != 1000 {
		t.Errorf("window = %+v, want 1 request / 1000 tokens", window)
	}
	stats, _ := f.gw.GetUserUsageStats(ctx, "u1", entity.PeriodToday)
	if stats.Totals.RequestCount != 1 || stats.Totals.TotalTokens != 1000 {
		t.Errorf("ledger totals = %+v", stats.Totals)
	}
	if len(f.audit.events) != 1 || f.audit.events[0].Attempts != 3 || f.audit.events[0].CostUSD != 0.016 {
		t.Errorf("audit events = %+v", f.audit.events)
	}
}

func TestAnalyze_RateLimitedMakesNoProviderCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ratelimit.Config{RequestsPerMinute: 1, TokensPerMinute: 90000})

	if res := f.gw.Analyze(ctx, episodeRequest()); res.IsError() {
		t.Fatalf("first call failed: %+v", res)
	}
	res := f.gw.Analyze(ctx, episodeRequest())
	if res.Code != service.CodeRateLimitExceeded {
		t.Fatalf("code = %q, want %q", res.Code, service.CodeRateLimitExceeded)
	}
	// 12:00:15 距下一分钟 45s
	if res.RetryAfter != 45 {
		t.Errorf("retry_after = %v, want 45", res.RetryAfter)
	}
	if res.Data != nil || res.Content != "" {
		t.Errorf("error result carries payload: %+v", res)
	}
	if f.stub.calls != 1 {
		t.Errorf("provider calls = %d, want 1", f.stub.calls)
	}

	f.clock.t = f.clock.t.Add(time.Minute)
	if res := f.gw.Analyze(ctx, episodeRequest()); res.IsError() {
		t.Errorf("call in next minute should pass: %+v", res)
	}
}

func TestAnalyze_TokenBudgetRejects(t *testing.T) {
	f := newFixture(t, ratelimit.Config{RequestsPerMinute: 60, TokensPerMinute: 10})
	res := f.gw.Analyze(context.Background(), episodeRequest())
	if res.Code != service.CodeRateLimitExceeded || f.stub.calls != 0 {
		t.Fatalf("res = %+v, calls = %d", res, f.stub.calls)
	}
}

func TestAnalyze_PermanentErrorNotRetried(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	f.stub.script = []error{&service.ProviderPermanentError{Provider: "stub", StatusCode: 400, Err: errors.New("bad")}}

	res := f.gw.Analyze(context.Background(), episodeRequest())
	if res.Code != service.CodeProviderRejected || f.stub.calls != 1 {
		t.Fatalf("res = %+v, calls = %d", res, f.stub.calls)
	}
	stats, _ := f.gw.GetUsageStats(context.Background(), entity.PeriodToday)
	if stats.Totals.RequestCount != 0 {
		t.Errorf("failed call recorded usage: %+v", stats.Totals)
	}
}

func TestAnalyze_ExhaustedRetriesSurfaceTransient(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	f.stub.script = []error{transient(503), transient(503), transient(503)}

	res := f.gw.Analyze(context.Background(), episodeRequest())
	if res.Code != service.CodeProviderUnavailable || f.stub.calls != 3 {
		t.Fatalf("res = %+v, calls = %d", res, f.stub.calls)
	}
}

func TestAnalyze_UnknownProviderIsConfigurationError(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	req := episodeRequest()
	req.Provider = "nope"

	res := f.gw.Analyze(context.Background(), req)
	if res.Code != service.CodeConfiguration {
		t.Fatalf("res = %+v", res)
	}
}

func TestAnalyze_InvalidType(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	res := f.gw.Analyze(context.Background(), &entity.AnalysisRequest{Type: "poetry"})
	if res.Code != service.CodeInvalidRequest || f.stub.calls != 0 {
		t.Fatalf("res = %+v", res)
	}
	if res := f.gw.Analyze(context.Background(), nil); res.Code != service.CodeInvalidRequest {
		t.Fatalf("nil request res = %+v", res)
	}
}

func TestAnalyze_SimulatedEpisode(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	req := episodeRequest()
	req.Provider = llm.SimulatedProviderID

	res := f.gw.Analyze(context.Background(), req)
	if res.IsError() || res.Data["professional_support_recommended"] != true {
		t.Fatalf("res = %+v", res)
	}
}

func TestAnalyze_ConversationHistoryFlows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ratelimit.Config{})
	req := episodeRequest()
	req.ConversationID = "conv-9"

	f.gw.Analyze(ctx, req)
	f.gw.Analyze(ctx, req)

	if len(f.stub.history[0]) != 0 || len(f.stub.history[1]) != 2 {
		t.Fatalf("history seen by provider = %d, %d", len(f.stub.history[0]), len(f.stub.history[1]))
	}
	if f.stub.history[1][0].Role != entity.RoleUser || f.stub.history[1][1].Content != `{"ok":true}` {
		t.Errorf("turns = %+v", f.stub.history[1])
	}

	turns, err := f.gw.History(ctx, "conv-9")
	if err != nil || len(turns) != 4 {
		t.Fatalf("turns = %d, err = %v", len(turns), err)
	}
	if err := f.gw.ClearHistory(ctx, "conv-9"); err != nil {
		t.Fatal(err)
	}
	turns, _ = f.gw.History(ctx, "conv-9")
	if len(turns) != 0 {
		t.Errorf("turns after clear = %d", len(turns))
	}
	if _, err := f.gw.History(ctx, " "); err == nil {
		t.Error("empty conversation id should be rejected")
	}
}

func TestGetRecommendations_UsesUserConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ratelimit.Config{})

	res := f.gw.GetRecommendations(ctx, "u7", map[string]any{"goals": []string{"sleep"}})
	if res.IsError() || res.Type != entity.AnalysisTypeRecommendation {
		t.Fatalf("res = %+v", res)
	}
	turns, _ := f.gw.History(ctx, entity.RecommendationConversationID("u7"))
	if len(turns) != 2 {
		t.Errorf("recommendation turns = %d, want 2", len(turns))
	}
}

func TestEstimateCost(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	cost, err := f.gw.EstimateCost(context.Background(), entity.CostParams{Model: "stub-model", EstimatedTokens: 1000})
	if err != nil || cost != 0.016 {
		t.Fatalf("cost = %v, err = %v", cost, err)
	}
	if _, err := f.gw.EstimateCost(context.Background(), entity.CostParams{Provider: "nope"}); service.ErrorCode(err) != service.CodeConfiguration {
		t.Errorf("err = %v", err)
	}
	if _, err := f.gw.EstimateCost(context.Background(), entity.CostParams{EstimatedTokens: -1}); service.ErrorCode(err) != service.CodeInvalidRequest {
		t.Errorf("err = %v", err)
	}
}

func TestUsageStats_ReadsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ratelimit.Config{})
	f.gw.Analyze(ctx, episodeRequest())

	a, err := f.gw.GetUsageStats(ctx, entity.PeriodWeek)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := f.gw.GetUsageStats(ctx, entity.PeriodWeek)
	if a.Totals != b.Totals || a.TotalCost != b.TotalCost || a.UserCount != 1 {
		t.Errorf("a = %+v, b = %+v", a, b)
	}
}

func TestProviders(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	statuses := f.gw.Providers(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("statuses = %+v", statuses)
	}
	for _, s := range statuses {
		if !s.Available {
			t.Errorf("%s unavailable", s.ID)
		}
		if s.Default != (s.ID == "stub") {
			t.Errorf("%s default = %v", s.ID, s.Default)
		}
	}
}

func TestProviders_UnconfiguredListedUnavailable(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	resolver := &failingResolver{stubResolver: f.resolver, failing: "openai"}
	f.gw.providers = resolver

	statuses := f.gw.Providers(context.Background())
	if len(statuses) != 3 || statuses[0].ID != "openai" || statuses[0].Available {
		t.Fatalf("statuses = %+v", statuses)
	}
}

type failingResolver struct {
	*stubResolver
	failing string
}

func (r *failingResolver) IDs() []string {
	return append([]string{r.failing}, r.stubResolver.IDs()...)
}

func (r *failingResolver) Resolve(id string) (service.Provider, error) {
	if id == r.failing {
		return nil, &service.ConfigurationError{Provider: id, Reason: "api_key is not configured"}
	}
	return r.stubResolver.Resolve(id)
}
