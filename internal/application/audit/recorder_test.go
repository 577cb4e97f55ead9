package audit

import (
	"context"
	"errors"
	"testing"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/service"
)

type fakeRepo struct {
	events []*entity.LLMUsageEvent
	err    error
}

func (f *fakeRepo) Create(_ context.Context, e *entity.LLMUsageEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func TestRecord_WritesEvent(t *testing.T) {
	repo := &fakeRepo{}
	r := NewLLMUsageRecorder(repo)

	err := r.Record(context.Background(), service.LLMUsageInput{
		Provider:         " openai ",
		Model:            "gpt-4o-mini",
		AnalysisType:     "episode_analysis",
		PromptTokens:     700,
		CompletionTokens: 300,
		Attempts:         2,
		CostUSD:          0.0160004,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(repo.events) != 1 {
		t.Fatalf("events = %d", len(repo.events))
	}
	e := repo.events[0]
	if e.UserID != "anonymous" || e.Provider != "openai" || e.Attempts != 2 {
		t.Errorf("event = %+v", e)
	}
	if e.CostUSD.String() != "0.016" {
		t.Errorf("cost = %s", e.CostUSD)
	}
}

func TestRecord_RepoErrorIsSwallowed(t *testing.T) {
	r := NewLLMUsageRecorder(&fakeRepo{err: errors.New("db down")})
	if err := r.Record(context.Background(), service.LLMUsageInput{UserID: "u1"}); err != nil {
		t.Fatalf("Record returned %v", err)
	}
}

func TestRecord_RejectsNegativeTokens(t *testing.T) {
	r := NewLLMUsageRecorder(&fakeRepo{})
	if err := r.Record(context.Background(), service.LLMUsageInput{PromptTokens: -1}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecord_NilRecorder(t *testing.T) {
	var r *LLMUsageRecorder
	if err := r.Record(context.Background(), service.LLMUsageInput{}); err != nil {
		t.Fatal(err)
	}
}
