package client

import (
	"context"
	"errors"
	"net/http"

	"ai-gateway-api/internal/domain/entity"
)

// 网关端点
const (
	EndpointAnalyze         = "/v1/ai/analyze"
	EndpointRecommendations = "/v1/ai/recommendations"
	EndpointEstimateCost    = "/v1/ai/estimate-cost"
	EndpointUsage           = "/v1/ai/usage"
	EndpointMyUsage         = "/v1/ai/usage/me"
	EndpointProviders       = "/v1/ai/providers"
)

// AnalyzeParams 分析参数
type AnalyzeParams struct {
	Type           entity.AnalysisType
	Model          string
	Instructions   string
	Provider       string
	ConversationID string
}

type dataEnvelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Analyze 执行分析；网关返回的错误信封（4xx/5xx）作为结果返回，传输失败、限流与认证失败返回 error
func (c *Client) Analyze(ctx context.Context, content map[string]any, params AnalyzeParams, opts ...RequestOption) (*entity.AnalysisResult, error) {
	body := map[string]any{
		"content": content,
		"type":    params.Type,
	}
	if params.Model != "" {
		body["model"] = params.Model
	}
	if params.Instructions != "" {
		body["instructions"] = params.Instructions
	}
	if params.Provider != "" {
		body["provider"] = params.Provider
	}
	if params.ConversationID != "" {
		body["conversation_id"] = params.ConversationID
	}
	return c.envelope(ctx, EndpointAnalyze, body, opts)
}

// GetRecommendations 获取建议
func (c *Client) GetRecommendations(ctx context.Context, userID string, userContext map[string]any, opts ...RequestOption) (*entity.AnalysisResult, error) {
	body := map[string]any{"context": userContext}
	if userID != "" {
		body["user_id"] = userID
	}
	return c.envelope(ctx, EndpointRecommendations, body, opts)
}

func (c *Client) envelope(ctx context.Context, endpoint string, body any, opts []RequestOption) (*entity.AnalysisResult, error) {
	resp, err := c.Request(ctx, http.MethodPost, endpoint, body, opts...)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.AuthFailed() {
			if res, ok := decodeErrorEnvelope(statusErr.Body); ok {
				return res, nil
			}
		}
		return nil, err
	}
	var res entity.AnalysisResult
	if err := resp.Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func decodeErrorEnvelope(body []byte) (*entity.AnalysisResult, bool) {
	var res entity.AnalysisResult
	if err := (&Response{Body: body}).Decode(&res); err != nil || res.Error == "" {
		return nil, false
	}
	return &res, true
}

// EstimateCost 预估费用
func (c *Client) EstimateCost(ctx context.Context, params entity.CostParams, opts ...RequestOption) (float64, error) {
	resp, err := c.Request(ctx, http.MethodPost, EndpointEstimateCost, params, opts...)
	if err != nil {
		return 0, err
	}
	var env dataEnvelope[struct {
		Cost float64 `json:"cost"`
	}]
	if err := resp.Decode(&env); err != nil {
		return 0, err
	}
	return env.Data.Cost, nil
}

// GetUsageStats 全局用量统计
func (c *Client) GetUsageStats(ctx context.Context, period entity.UsagePeriod, opts ...RequestOption) (*entity.UsageStats, error) {
	return getData[*entity.UsageStats](ctx, c, EndpointUsage, map[string]string{"period": string(period)}, opts)
}

// GetMyUsageStats 当前令牌对应调用方的用量统计
func (c *Client) GetMyUsageStats(ctx context.Context, period entity.UsagePeriod, opts ...RequestOption) (*entity.UsageStats, error) {
	return getData[*entity.UsageStats](ctx, c, EndpointMyUsage, map[string]string{"period": string(period)}, opts)
}

// Providers provider 列表与可用性
func (c *Client) Providers(ctx context.Context, opts ...RequestOption) ([]entity.ProviderStatus, error) {
	out, err := getData[struct {
		Providers []entity.ProviderStatus `json:"providers"`
	}](ctx, c, EndpointProviders, nil, opts)
	if err != nil {
		return nil, err
	}
	return out.Providers, nil
}

func getData[T any](ctx context.Context, c *Client, endpoint string, params map[string]string, opts []RequestOption) (T, error) {
	var zero T
	var query any
	if len(params) > 0 {
		query = params
	}
	resp, err := c.Request(ctx, http.MethodGet, endpoint, query, opts...)
	if err != nil {
		return zero, err
	}
	var env dataEnvelope[T]
	if err := resp.Decode(&env); err != nil {
		return zero, err
	}
	return env.Data, nil
}
