package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/internal/interfaces/http/dto"
	"ai-gateway-api/internal/interfaces/http/middleware"
	apperrors "ai-gateway-api/pkg/errors"
	"ai-gateway-api/pkg/logger"
)

// AIService 网关门面能力
type AIService interface {
	Analyze(ctx context.Context, req *entity.AnalysisRequest) *entity.AnalysisResult
	GetRecommendations(ctx context.Context, userID string, content map[string]any) *entity.AnalysisResult
	EstimateCost(ctx context.Context, params entity.CostParams) (float64, error)
	GetUsageStats(ctx context.Context, period entity.UsagePeriod) (*entity.UsageStats, error)
	GetUserUsageStats(ctx context.Context, userID string, period entity.UsagePeriod) (*entity.UsageStats, error)
	Providers(ctx context.Context) []entity.ProviderStatus
	History(ctx context.Context, conversationID string) ([]entity.ConversationTurn, error)
	ClearHistory(ctx context.Context, conversationID string) error
	RateWindow(ctx context.Context) (entity.RateWindow, error)
}

// Limits 限流配额，用于展示
type Limits struct {
	RequestsPerMinute int64
	TokensPerMinute   int64
}

// AIHandler AI 网关处理器
type AIHandler struct {
	svc    AIService
	limits Limits
	now    func() time.Time
}

// NewAIHandler 创建 AI 网关处理器
func NewAIHandler(svc AIService, limits Limits) *AIHandler {
	return &AIHandler{svc: svc, limits: limits, now: time.Now}
}

// Analyze 执行分析
// @Summary 执行分析
// @Description 按分析类型渲染提示词并调用 provider；失败时返回错误信封
// @Tags AI
// @Accept json
// @Produce json
// @Param body body dto.AnalyzeRequest true "分析请求"
// @Success 200 {object} entity.AnalysisResult
// @Failure 429 {object} entity.AnalysisResult
// @Router /v1/ai/analyze [post]
func (h *AIHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeEnvelope(c, entity.NewErrorResult("invalid request body: "+err.Error(), service.CodeInvalidRequest, 0))
		return
	}
	h.writeEnvelope(c, h.svc.Analyze(c.Request.Context(), req.ToEntity(c.GetString("user_id"))))
}

// Recommendations 获取个性化建议
// @Summary 获取建议
// @Tags AI
// @Accept json
// @Produce json
// @Param body body dto.RecommendationsRequest true "上下文"
// @Success 200 {object} entity.AnalysisResult
// @Router /v1/ai/recommendations [post]
func (h *AIHandler) Recommendations(c *gin.Context) {
	var req dto.RecommendationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeEnvelope(c, entity.NewErrorResult("invalid request body: "+err.Error(), service.CodeInvalidRequest, 0))
		return
	}
	userID := c.GetString("user_id")
	if userID == "" {
		userID = req.UserID
	}
	userContext, ok := req.ContextMap()
	if !ok {
		h.writeEnvelope(c, entity.NewErrorResult("context must be a string or an object", service.CodeInvalidRequest, 0))
		return
	}
	h.writeEnvelope(c, h.svc.GetRecommendations(c.Request.Context(), userID, userContext))
}

// EstimateCost 预估费用
// @Summary 预估费用
// @Tags AI
// @Accept json
// @Produce json
// @Param body body dto.EstimateCostRequest true "参数"
// @Success 200 {object} dto.Response[dto.EstimateCostResponse]
// @Router /v1/ai/estimate-cost [post]
func (h *AIHandler) EstimateCost(c *gin.Context) {
	var req dto.EstimateCostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	cost, err := h.svc.EstimateCost(c.Request.Context(), req.ToEntity())
	if err != nil {
		h.writeError(c, err)
		return
	}
	dto.Success(c, dto.EstimateCostResponse{Cost: cost, Provider: req.Provider, Model: req.Model})
}

// Usage 全局用量统计（需要 usage:read_all 权限）
// @Summary 全局用量
// @Tags AI
// @Produce json
// @Param period query string false "today | week | month"
// @Success 200 {object} dto.Response[entity.UsageStats]
// @Router /v1/ai/usage [get]
func (h *AIHandler) Usage(c *gin.Context) {
	period, err := entity.ParseUsagePeriod(c.Query("period"))
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	stats, err := h.svc.GetUsageStats(c.Request.Context(), period)
	if err != nil {
		h.writeError(c, err)
		return
	}
	dto.Success(c, stats)
}

// MyUsage 当前调用方的用量统计
// @Summary 我的用量
// @Tags AI
// @Produce json
// @Param period query string false "today | week | month"
// @Success 200 {object} dto.Response[entity.UsageStats]
// @Router /v1/ai/usage/me [get]
func (h *AIHandler) MyUsage(c *gin.Context) {
	period, err := entity.ParseUsagePeriod(c.Query("period"))
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	stats, err := h.svc.GetUserUsageStats(c.Request.Context(), c.GetString("user_id"), period)
	if err != nil {
		h.writeError(c, err)
		return
	}
	dto.Success(c, stats)
}

// Providers provider 列表与可用性
// @Summary provider 列表
// @Tags AI
// @Produce json
// @Success 200 {object} dto.Response[dto.ProvidersResponse]
// @Router /v1/ai/providers [get]
func (h *AIHandler) Providers(c *gin.Context) {
	statuses := h.svc.Providers(c.Request.Context())
	resp := dto.ProvidersResponse{Providers: statuses}
	for _, s := range statuses {
		if s.Default {
			resp.Default = s.ID
		}
	}
	dto.Success(c, resp)
}

// RateLimit 当前分钟的限流计数
// @Summary 限流状态
// @Tags AI
// @Produce json
// @Success 200 {object} dto.Response[dto.RateWindowResponse]
// @Router /v1/ai/rate-limit [get]
func (h *AIHandler) RateLimit(c *gin.Context) {
	w, err := h.svc.RateWindow(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	dto.Success(c, dto.RateWindowResponse{
		Scope:             w.Scope,
		RequestCount:      w.RequestCount,
		TokenCount:        w.TokenCount,
		RequestsPerMinute: h.limits.RequestsPerMinute,
		TokensPerMinute:   h.limits.TokensPerMinute,
		ResetAt:           w.ResetAt(),
	})
}

// GetConversation 会话历史
// @Summary 会话历史
// @Tags AI
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.ConversationResponse]
// @Router /v1/ai/conversations/{id} [get]
func (h *AIHandler) GetConversation(c *gin.Context) {
	id := c.Param("id")
	if !h.canAccessConversation(c, id) {
		dto.Forbidden(c, "conversation belongs to another user")
		return
	}
	turns, err := h.svc.History(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	dto.Success(c, dto.ConversationResponse{ID: id, Turns: turns})
}

// DeleteConversation 清空会话历史
// @Summary 清空会话
// @Tags AI
// @Param id path string true "会话 ID"
// @Success 204
// @Router /v1/ai/conversations/{id} [delete]
func (h *AIHandler) DeleteConversation(c *gin.Context) {
	id := c.Param("id")
	if !h.canAccessConversation(c, id) {
		dto.Forbidden(c, "conversation belongs to another user")
		return
	}
	if err := h.svc.ClearHistory(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	dto.NoContent(c)
}

// canAccessConversation 推荐会话只允许本人或管理员访问
func (h *AIHandler) canAccessConversation(c *gin.Context, id string) bool {
	owner, ok := strings.CutPrefix(id, entity.RecommendationConversationID(""))
	if !ok {
		return true
	}
	if c.GetString("role") == middleware.RoleAdmin {
		return true
	}
	return owner == c.GetString("user_id")
}

// writeEnvelope 输出分析结果信封；错误信封按 code 映射状态码
func (h *AIHandler) writeEnvelope(c *gin.Context, res *entity.AnalysisResult) {
	if !res.IsError() {
		c.JSON(http.StatusOK, res)
		return
	}
	if res.RetryAfter > 0 {
		secs := int64(math.Ceil(res.RetryAfter))
		c.Header("Retry-After", strconv.FormatInt(secs, 10))
		if res.Code == service.CodeRateLimitExceeded {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(h.now().Add(time.Duration(secs)*time.Second).Unix(), 10))
		}
	}
	c.JSON(envelopeStatus(res.Code), res)
}

func envelopeStatus(code string) int {
	switch code {
	case service.CodeConfiguration:
		return http.StatusServiceUnavailable
	case service.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case service.CodeInvalidRequest:
		return http.StatusBadRequest
	case service.CodeProviderUnavailable, service.CodeProviderRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError 非信封接口的错误输出
func (h *AIHandler) writeError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", err, "path", c.FullPath())
	}
	dto.AppError(c, appErr)
}

func toAppError(err error) *apperrors.AppError {
	var (
		cfgErr     *service.ConfigurationError
		invalidErr *service.InvalidRequestError
		rateErr    *service.RateLimitExceededError
	)
	switch {
	case errors.As(err, &cfgErr):
		return apperrors.Wrap(err, apperrors.CodeConfiguration, "provider not configured").WithDetail(cfgErr.Error())
	case errors.As(err, &invalidErr):
		return apperrors.Wrap(err, apperrors.CodeInvalidParam, "invalid parameter").WithDetail(invalidErr.Error())
	case errors.As(err, &rateErr):
		return apperrors.Wrap(err, apperrors.CodeRateLimited, "rate limit exceeded").WithDetail(rateErr.Error())
	case apperrors.IsAppError(err):
		return apperrors.AsAppError(err)
	default:
		return apperrors.Wrap(err, apperrors.CodeCacheError, "storage unavailable")
	}
}
