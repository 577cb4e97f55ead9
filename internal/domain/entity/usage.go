package entity

import (
	"fmt"
	"strings"
	"time"
)

// UsageRecord 某用户（或全局）某天某模型的累计用量
type UsageRecord struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	RequestCount     int64 `json:"request_count"`
}

// Add 累加
func (r *UsageRecord) Add(o UsageRecord) {
	r.PromptTokens += o.PromptTokens
	r.CompletionTokens += o.CompletionTokens
	r.TotalTokens += o.TotalTokens
	r.RequestCount += o.RequestCount
}

// UsagePeriod 统计周期
type UsagePeriod string

const (
	PeriodToday UsagePeriod = "today"
	PeriodWeek  UsagePeriod = "week"
	PeriodMonth UsagePeriod = "month"
)

// Days 周期覆盖的天数（含今天）
func (p UsagePeriod) Days() int {
	switch p {
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	default:
		return 1
	}
}

// ParseUsagePeriod 解析统计周期，空值视为 today
func ParseUsagePeriod(s string) (UsagePeriod, error) {
	switch p := UsagePeriod(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodToday, nil
	case PeriodToday, PeriodWeek, PeriodMonth:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported period %q", s)
	}
}

// ModelUsage 单模型聚合用量与费用
type ModelUsage struct {
	Model string `json:"model"`
	UsageRecord
	Cost float64 `json:"cost"`
}

// UsageStats 周期聚合结果
type UsageStats struct {
	Period    UsagePeriod  `json:"period"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	Models    []ModelUsage `json:"models"`
	Totals    UsageRecord  `json:"totals"`
	TotalCost float64      `json:"total_cost"`
	// Users 仅全局统计填充
	Users     []string `json:"users,omitempty"`
	UserCount int      `json:"user_count,omitempty"`
}

// RateWindow 某一分钟桶内的计数
type RateWindow struct {
	Scope        string    `json:"scope"`
	Minute       time.Time `json:"minute"`
	RequestCount int64     `json:"request_count"`
	TokenCount   int64     `json:"token_count"`
}

// ResetAt 桶到期时间
func (w RateWindow) ResetAt() time.Time {
	return w.Minute.Add(time.Minute)
}
