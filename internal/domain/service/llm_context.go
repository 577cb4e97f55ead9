package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyAnalysisType llmCtxKey = "llm_analysis_type"
	llmCtxKeyProvider     llmCtxKey = "llm_provider"
)

// WithAnalysisType 在 context 中标记当前分析类型
func WithAnalysisType(ctx context.Context, analysisType string) context.Context {
	if ctx == nil {
		return nil
	}
	t := strings.TrimSpace(analysisType)
	if t == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyAnalysisType, t)
}

// WithProvider 在 context 中标记当前提供方
func WithProvider(ctx context.Context, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

func AnalysisTypeFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyAnalysisType)
}

func ProviderFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyProvider)
}

func stringFromContext(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
