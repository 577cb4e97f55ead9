package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/service"
)

const (
	SimulatedProviderID = "simulated"
	simulatedModel      = "simulated-v1"
)

// SimulatedConfig simulated provider 参数
type SimulatedConfig struct {
	ResponseDelay time.Duration
	// ErrorRate 注入失败的概率 [0,1]，失败为可重试的 503
	ErrorRate float64
	// Seed 为 0 时使用随机种子
	Seed uint64
}

// SimulatedProvider 不访问网络，按分析类型返回预置结果
type SimulatedProvider struct {
	cfg SimulatedConfig
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedProvider 创建 simulated provider
func NewSimulatedProvider(cfg SimulatedConfig) *SimulatedProvider {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &SimulatedProvider{
		cfg: cfg,
		now: time.Now,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Descriptor 实现 service.Provider
func (p *SimulatedProvider) Descriptor() entity.ProviderDescriptor {
	return entity.ProviderDescriptor{
		ID:     SimulatedProviderID,
		Name:   "Simulated Provider",
		Models: p.Models(),
		Capabilities: entity.Capabilities{
			StructuredOutput: true,
			Conversation:     true,
			Networked:        false,
		},
	}
}

// Models 实现 service.Provider
func (p *SimulatedProvider) Models() map[string]entity.ModelInfo {
	return map[string]entity.ModelInfo{
		simulatedModel: {MaxTokens: 4096, IsDefault: true},
	}
}

// EstimateCost simulated 调用不计费
func (p *SimulatedProvider) EstimateCost(entity.CostParams) float64 {
	return 0
}

// CheckAvailability 始终可用
func (p *SimulatedProvider) CheckAvailability(context.Context) bool {
	return true
}

// Analyze 实现 service.Provider
func (p *SimulatedProvider) Analyze(ctx context.Context, call *service.ProviderCall) (*entity.AnalysisResult, error) {
	if p.cfg.ResponseDelay > 0 {
		timer := time.NewTimer(p.cfg.ResponseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, Classify(SimulatedProviderID, ctx.Err())
		case <-timer.C:
		}
	}

	p.mu.Lock()
	fail := p.cfg.ErrorRate > 0 && p.rng.Float64() < p.cfg.ErrorRate
	variant := p.rng.IntN(len(summaries))
	p.mu.Unlock()

	if fail {
		return nil, &service.ProviderTransientError{
			Provider:   SimulatedProviderID,
			StatusCode: http.StatusServiceUnavailable,
			Err:        errors.New("simulated upstream failure"),
		}
	}

	data := cannedPayload(call.Type, call.Content, variant)
	body, _ := json.Marshal(data)
	usage := entity.TokenUsage{
		PromptTokens:     approxTokens(len(call.System) + len(call.User)),
		CompletionTokens: approxTokens(len(body)),
	}

	model := call.Model
	if model == "" {
		model = simulatedModel
	}
	return entity.NewStructuredResult(call.Type, data, model, usage, p.now()), nil
}

func approxTokens(chars int) int {
	return int(math.Ceil(float64(chars) / 4))
}

var summaries = []string{
	"The entry describes a difficult period with a clear build-up before the peak.",
	"The episode followed a familiar course and eased after rest.",
	"Symptoms rose quickly and settled once the situation changed.",
}

var copingSets = [][]string{
	{"Try paced breathing for five minutes", "Write down what happened right before the episode"},
	{"Take a short walk outside", "Reach out to someone you trust"},
	{"Reduce caffeine later in the day", "Keep a regular sleep schedule this week"},
}

func cannedPayload(t entity.AnalysisType, content map[string]any, variant int) map[string]any {
	switch t {
	case entity.AnalysisTypeEpisode:
		severity := numberField(content, "severity")
		triggers := stringsField(content, "triggers")
		if len(triggers) == 0 {
			triggers = []string{"stress", "poor sleep"}
		}
		return map[string]any{
			"summary":                          summaries[variant],
			"severity_assessment":              severityLabel(severity),
			"likely_triggers":                  triggers,
			"coping_suggestions":               copingSets[variant],
			"professional_support_recommended": severity >= 8,
		}
	case entity.AnalysisTypePattern:
		return map[string]any{
			"patterns": []map[string]any{
				{"description": "Episodes cluster on weekday evenings", "confidence": 0.72},
				{"description": "Higher severity after short sleep", "confidence": 0.64},
			},
			"time_of_day":     []string{"evening", "late evening", "afternoon"}[variant],
			"frequency_trend": []string{"stable", "decreasing", "increasing"}[variant],
			"observations":    []string{summaries[variant]},
		}
	case entity.AnalysisTypeTrigger:
		return map[string]any{
			"triggers": []map[string]any{
				{"name": "work stress", "occurrences": 5, "confidence": 0.8},
				{"name": "poor sleep", "occurrences": 3, "confidence": 0.6},
			},
			"notes": summaries[variant],
		}
	case entity.AnalysisTypeRecommendation:
		return map[string]any{
			"recommendations": []map[string]any{
				{"title": copingSets[variant][0], "detail": "Start small and repeat daily.", "priority": "high"},
				{"title": copingSets[variant][1], "detail": "Note how you feel afterwards.", "priority": "medium"},
			},
			"follow_up": "Check in again in one week.",
		}
	case entity.AnalysisTypeProgress:
		return map[string]any{
			"summary":          "Overall the period shows gradual improvement.",
			"improvements":     []string{"Fewer severe episodes"},
			"concerns":         []string{"Sleep remains irregular"},
			"average_severity": []float64{4.5, 5.0, 3.8}[variant],
			"episode_count":    []int{6, 9, 4}[variant],
		}
	default:
		return map[string]any{"summary": summaries[variant]}
	}
}

func severityLabel(severity float64) string {
	switch {
	case severity >= 8:
		return "severe"
	case severity >= 4:
		return "moderate"
	case severity > 0:
		return "mild"
	default:
		return "unknown"
	}
}

func numberField(content map[string]any, key string) float64 {
	switch v := content[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func stringsField(content map[string]any, key string) []string {
	switch v := content[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
