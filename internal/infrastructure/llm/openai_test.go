package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ai-gateway-api/internal/config"
	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/service"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider("openai", config.ProviderConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func TestNewOpenAIProvider_MissingKey(t *testing.T) {
	_, err := NewOpenAIProvider("openai", config.ProviderConfig{}, time.Minute)
	var cfgErr *service.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenAIProvider_Analyze(t *testing.T) {
	var gotFormat string
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
			Messages []map[string]any `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotFormat = req.ResponseFormat.Type
		writeJSON(w, http.StatusOK, completion(`{"summary":"calm week"}`))
	})

	res, err := p.Analyze(context.Background(), &service.ProviderCall{
		Type: entity.AnalysisTypeProgress, System: "s", User: "u",
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotFormat != "json_object" {
		t.Errorf("response_format = %q", gotFormat)
	}
	if res.Data["summary"] != "calm week" || res.Usage.TotalTokens != 15 || res.Model != "gpt-4o-mini" {
		t.Errorf("result = %+v", res)
	}
}

func TestOpenAIProvider_TextFallback(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, completion("not json at all"))
	})
	res, err := p.Analyze(context.Background(), &service.ProviderCall{Type: entity.AnalysisTypeProgress})
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != entity.FormatText || res.Content != "not json at all" {
		t.Errorf("result = %+v", res)
	}
}

func TestOpenAIProvider_RateLimited(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{"message": "Rate limit reached. Please try again in 20s.", "type": "requests", "code": "rate_limit_exceeded"},
		})
	})
	_, err := p.Analyze(context.Background(), &service.ProviderCall{Type: entity.AnalysisTypeProgress})
	var te *service.ProviderTransientError
	if !errors.As(err, &te) || !te.RateLimited() || te.RetryAfter != 20*time.Second {
		t.Fatalf("err = %#v", err)
	}
}

func TestOpenAIProvider_BadRequestIsPermanent(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"message": "invalid model", "type": "invalid_request_error"},
		})
	})
	_, err := p.Analyze(context.Background(), &service.ProviderCall{Type: entity.AnalysisTypeProgress})
	var pe *service.ProviderPermanentError
	if !errors.As(err, &pe) || pe.StatusCode != 400 {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "x", "choices": []any{}})
	})
	_, err := p.Analyze(context.Background(), &service.ProviderCall{Type: entity.AnalysisTypeProgress})
	var pe *service.ProviderPermanentError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenAIProvider_AvailabilityCached(t *testing.T) {
	var hits atomic.Int32
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": []any{}})
	})
	for i := 0; i < 3; i++ {
		if !p.CheckAvailability(context.Background()) {
			t.Fatal("expected available")
		}
	}
	if hits.Load() != 1 {
		t.Errorf("ListModels hits = %d, want 1", hits.Load())
	}
}

func TestOpenAIProvider_EstimateCost(t *testing.T) {
	p, err := NewOpenAIProvider("openai", config.ProviderConfig{
		APIKey: "k",
		Models: map[string]config.ModelConfig{"m": {InputCostPer1K: 0.01, OutputCostPer1K: 0.03, Default: true}},
	}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.EstimateCost(entity.CostParams{EstimatedTokens: 1000}); got != 0.016 {
		t.Errorf("cost = %v", got)
	}
}
