package llm

import (
	"fmt"
	"testing"

	"ai-gateway-api/internal/config"
	"ai-gateway-api/internal/domain/entity"
)

var testCatalog = map[string]entity.ModelInfo{
	"m": {InputCostPer1K: 0.01, OutputCostPer1K: 0.03, IsDefault: true},
}

func TestEstimateCost_SplitsEstimate(t *testing.T) {
	got := EstimateCost(testCatalog, "m", entity.CostParams{Model: "m", EstimatedTokens: 1000})
	if fmt.Sprintf("%.4f", got) != "0.0160" {
		t.Errorf("cost = %v, want 0.0160", got)
	}
}

func TestEstimateCost_ExplicitTokens(t *testing.T) {
	got := EstimateCost(testCatalog, "m", entity.CostParams{PromptTokens: 2000, CompletionTokens: 1000})
	if got != 0.05 {
		t.Errorf("cost = %v, want 0.05", got)
	}
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	if got := EstimateCost(testCatalog, "m", entity.CostParams{Model: "other", EstimatedTokens: 1000}); got != 0 {
		t.Errorf("cost = %v", got)
	}
}

func TestCatalogFromConfig(t *testing.T) {
	got := catalogFromConfig(map[string]config.ModelConfig{
		"a": {MaxTokens: 10, InputCostPer1K: 1, OutputCostPer1K: 2, Default: true},
	}, testCatalog)
	if len(got) != 1 || got["a"].OutputCostPer1K != 2 || !got["a"].IsDefault {
		t.Errorf("catalog = %+v", got)
	}

	fallback := catalogFromConfig(nil, testCatalog)
	fallback["extra"] = entity.ModelInfo{}
	if _, leaked := testCatalog["extra"]; leaked {
		t.Error("fallback catalog must be copied")
	}
}

func TestWithConfiguredModel(t *testing.T) {
	got := withConfiguredModel(map[string]entity.ModelInfo{}, "deepseek-chat", 2048)
	if !got["deepseek-chat"].IsDefault || got["deepseek-chat"].MaxTokens != 2048 {
		t.Errorf("catalog = %+v", got)
	}
	kept := withConfiguredModel(map[string]entity.ModelInfo{"x": {IsDefault: true}}, "y", 0)
	if kept["y"].IsDefault {
		t.Error("existing default should win")
	}
	if names := sortedModelNames(kept); len(names) != 2 || names[0] != "x" {
		t.Errorf("names = %v", names)
	}
}
