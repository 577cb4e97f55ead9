package llm

import (
	"sort"

	"github.com/shopspring/decimal"

	"ai-gateway-api/internal/config"
	"ai-gateway-api/internal/domain/entity"
)

var (
	promptShare     = decimal.NewFromFloat(0.7)
	completionShare = decimal.NewFromFloat(0.3)
	thousand        = decimal.NewFromInt(1000)
)

// EstimateCost 按模型单价预估费用（美元，保留 4 位）
// 只给出 EstimatedTokens 时按 7:3 拆成输入/输出；未知模型返回 0
func EstimateCost(models map[string]entity.ModelInfo, defaultModel string, p entity.CostParams) float64 {
	name := p.Model
	if name == "" {
		name = defaultModel
	}
	info, ok := models[name]
	if !ok {
		return 0
	}

	prompt := decimal.NewFromInt(int64(p.PromptTokens))
	completion := decimal.NewFromInt(int64(p.CompletionTokens))
	if p.PromptTokens == 0 && p.CompletionTokens == 0 {
		est := decimal.NewFromInt(int64(p.EstimatedTokens))
		prompt = est.Mul(promptShare)
		completion = est.Mul(completionShare)
	}

	cost := prompt.Div(thousand).Mul(decimal.NewFromFloat(info.InputCostPer1K)).
		Add(completion.Div(thousand).Mul(decimal.NewFromFloat(info.OutputCostPer1K)))
	return cost.Round(4).InexactFloat64()
}

// catalogFromConfig 配置里的模型目录；为空时使用 fallback
func catalogFromConfig(models map[string]config.ModelConfig, fallback map[string]entity.ModelInfo) map[string]entity.ModelInfo {
	if len(models) == 0 {
		out := make(map[string]entity.ModelInfo, len(fallback))
		for k, v := range fallback {
			out[k] = v
		}
		return out
	}
	out := make(map[string]entity.ModelInfo, len(models))
	for name, m := range models {
		out[name] = entity.ModelInfo{
			MaxTokens:       m.MaxTokens,
			InputCostPer1K:  m.InputCostPer1K,
			OutputCostPer1K: m.OutputCostPer1K,
			IsDefault:       m.Default,
		}
	}
	return out
}

// withConfiguredModel 保证 cfg.Model 出现在目录中并作为默认模型
func withConfiguredModel(models map[string]entity.ModelInfo, name string, maxTokens int) map[string]entity.ModelInfo {
	if name == "" {
		return models
	}
	info, ok := models[name]
	if !ok {
		info = entity.ModelInfo{MaxTokens: maxTokens}
	}
	hasDefault := false
	for _, m := range models {
		if m.IsDefault {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		info.IsDefault = true
	}
	models[name] = info
	return models
}

func sortedModelNames(models map[string]entity.ModelInfo) []string {
	names := make([]string, 0, len(models))
	for n := range models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
