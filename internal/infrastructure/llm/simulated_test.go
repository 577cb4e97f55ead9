package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/service"
)

func TestSimulated_EpisodeRecommendsSupportForHighSeverity(t *testing.T) {
	p := NewSimulatedProvider(SimulatedConfig{Seed: 7})
	res, err := p.Analyze(context.Background(), &service.ProviderCall{
		Type:    entity.AnalysisTypeEpisode,
		Content: map[string]any{"severity": 9},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Data["professional_support_recommended"] != true {
		t.Errorf("data = %+v", res.Data)
	}
	if res.Data["severity_assessment"] != "severe" {
		t.Errorf("severity_assessment = %v", res.Data["severity_assessment"])
	}
	if res.Model != simulatedModel || res.Usage.TotalTokens == 0 {
		t.Errorf("model=%s usage=%+v", res.Model, res.Usage)
	}

	low, _ := p.Analyze(context.Background(), &service.ProviderCall{
		Type:    entity.AnalysisTypeEpisode,
		Content: map[string]any{"severity": "3", "triggers": []any{"noise"}},
	})
	if low.Data["professional_support_recommended"] != false {
		t.Errorf("low severity data = %+v", low.Data)
	}
	if tr, _ := low.Data["likely_triggers"].([]string); len(tr) != 1 || tr[0] != "noise" {
		t.Errorf("likely_triggers = %v", low.Data["likely_triggers"])
	}
}

func TestSimulated_AllTypesStructured(t *testing.T) {
	p := NewSimulatedProvider(SimulatedConfig{Seed: 1})
	for _, at := range entity.AnalysisTypes() {
		res, err := p.Analyze(context.Background(), &service.ProviderCall{Type: at})
		if err != nil {
			t.Fatalf("%s: %v", at, err)
		}
		if res.Format != entity.FormatStructured || len(res.Data) == 0 || res.Type != at {
			t.Errorf("%s: %+v", at, res)
		}
	}
}

func TestSimulated_SameSeedSameVariants(t *testing.T) {
	a := NewSimulatedProvider(SimulatedConfig{Seed: 42})
	b := NewSimulatedProvider(SimulatedConfig{Seed: 42})
	call := &service.ProviderCall{Type: entity.AnalysisTypePattern}
	for i := 0; i < 5; i++ {
		ra, _ := a.Analyze(context.Background(), call)
		rb, _ := b.Analyze(context.Background(), call)
		if ra.Data["time_of_day"] != rb.Data["time_of_day"] {
			t.Fatalf("round %d diverged", i)
		}
	}
}

func TestSimulated_ErrorRateInjectsTransientFailure(t *testing.T) {
	p := NewSimulatedProvider(SimulatedConfig{ErrorRate: 1, Seed: 3})
	_, err := p.Analyze(context.Background(), &service.ProviderCall{Type: entity.AnalysisTypeTrigger})
	var te *service.ProviderTransientError
	if !errors.As(err, &te) || te.StatusCode != 503 {
		t.Fatalf("err = %v", err)
	}
}

func TestSimulated_DelayHonoursContext(t *testing.T) {
	p := NewSimulatedProvider(SimulatedConfig{ResponseDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Analyze(ctx, &service.ProviderCall{Type: entity.AnalysisTypeTrigger})
	if !service.IsRetryable(err) {
		t.Fatalf("deadline should be transient, got %v", err)
	}
}

func TestSimulated_ZeroCostAndAvailable(t *testing.T) {
	p := NewSimulatedProvider(SimulatedConfig{})
	if p.EstimateCost(entity.CostParams{EstimatedTokens: 100000}) != 0 {
		t.Error("simulated cost should be zero")
	}
	if !p.CheckAvailability(context.Background()) {
		t.Error("simulated should be available")
	}
	if p.Descriptor().DefaultModel() != simulatedModel || p.Descriptor().Capabilities.Networked {
		t.Errorf("descriptor = %+v", p.Descriptor())
	}
}
