// Package usage 按用户/模型/日期记录 Token 用量并按需计算费用
package usage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/domain/repository"
	"ai-gateway-api/pkg/logger"
)

const (
	dateLayout           = "2006-01-02"
	defaultRetentionDays = 90
	anonymousUser        = "anonymous"

	fieldPrompt     = "prompt_tokens"
	fieldCompletion = "completion_tokens"
	fieldTotal      = "total_tokens"
	fieldRequests   = "requests"
)

// PriceBook 按模型查询单价
type PriceBook interface {
	Price(model string) (entity.ModelInfo, bool)
}

// Option 账本选项
type Option func(*Ledger)

// WithClock 替换时钟（测试）
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger 用量账本
//
// 键布局：
//
//	usage:user:{user}:{date}:{model}      hash 用户日桶
//	usage:global:{date}:{model}           hash 全局日桶
//	usage:models:user:{user}:{date}       set  用户当日用过的模型
//	usage:models:global:{date}            set  当日用过的模型
//	usage:users:{date}                    set  当日活跃用户
//
// 所有键在其日期后 retention 天过期
type Ledger struct {
	store     repository.KVStore
	prices    PriceBook
	retention int
	now       func() time.Time
}

// NewLedger 创建用量账本
func NewLedger(store repository.KVStore, prices PriceBook, retentionDays int, opts ...Option) *Ledger {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	l := &Ledger{store: store, prices: prices, retention: retentionDays, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func userBucketKey(user, date, model string) string {
	return fmt.Sprintf("usage:user:%s:%s:%s", user, date, model)
}

func globalBucketKey(date, model string) string {
	return fmt.Sprintf("usage:global:%s:%s", date, model)
}

func userModelsKey(user, date string) string {
	return fmt.Sprintf("usage:models:user:%s:%s", user, date)
}

func globalModelsKey(date string) string {
	return "usage:models:global:" + date
}

func usersKey(date string) string {
	return "usage:users:" + date
}

func normalizeUser(user string) string {
	if u := strings.TrimSpace(user); u != "" {
		return u
	}
	return anonymousUser
}

// Record 成功调用后累加用户日桶与全局日桶
func (l *Ledger) Record(ctx context.Context, userID, model string, u entity.TokenUsage) error {
	user := normalizeUser(userID)
	if model == "" {
		model = "unknown"
	}
	u = u.Normalized()

	now := l.now().UTC()
	date := now.Format(dateLayout)
	day, _ := time.Parse(dateLayout, date)
	ttl := day.AddDate(0, 0, l.retention).Sub(now)

	fields := map[string]int64{
		fieldPrompt:     int64(u.PromptTokens),
		fieldCompletion: int64(u.CompletionTokens),
		fieldTotal:      int64(u.TotalTokens),
		fieldRequests:   1,
	}
	if err := l.store.HIncrBy(ctx, userBucketKey(user, date, model), fields, ttl); err != nil {
		return fmt.Errorf("record user usage: %w", err)
	}
	if err := l.store.HIncrBy(ctx, globalBucketKey(date, model), fields, ttl); err != nil {
		return fmt.Errorf("record global usage: %w", err)
	}
	if err := l.store.SAdd(ctx, userModelsKey(user, date), ttl, model); err != nil {
		return fmt.Errorf("record user model index: %w", err)
	}
	if err := l.store.SAdd(ctx, globalModelsKey(date), ttl, model); err != nil {
		return fmt.Errorf("record model index: %w", err)
	}
	if err := l.store.SAdd(ctx, usersKey(date), ttl, user); err != nil {
		return fmt.Errorf("record user index: %w", err)
	}
	return nil
}

// UserStats 用户在周期内的用量
func (l *Ledger) UserStats(ctx context.Context, userID string, period entity.UsagePeriod) (*entity.UsageStats, error) {
	user := normalizeUser(userID)
	return l.aggregate(ctx, period,
		func(date string) string { return userModelsKey(user, date) },
		func(date, model string) string { return userBucketKey(user, date, model) },
		false,
	)
}

// GlobalStats 全局在周期内的用量，附带去重后的用户列表
func (l *Ledger) GlobalStats(ctx context.Context, period entity.UsagePeriod) (*entity.UsageStats, error) {
	return l.aggregate(ctx, period, globalModelsKey, globalBucketKey, true)
}

func (l *Ledger) dates(period entity.UsagePeriod) []string {
	today := l.now().UTC()
	n := period.Days()
	out := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, today.AddDate(0, 0, -i).Format(dateLayout))
	}
	return out
}

func (l *Ledger) aggregate(
	ctx context.Context,
	period entity.UsagePeriod,
	modelsKey func(date string) string,
	bucketKey func(date, model string) string,
	withUsers bool,
) (*entity.UsageStats, error) {
	dates := l.dates(period)
	byModel := make(map[string]*entity.UsageRecord)
	users := make(map[string]struct{})

	for _, date := range dates {
		models, err := l.store.SMembers(ctx, modelsKey(date))
		if err != nil {
			return nil, fmt.Errorf("read model index %s: %w", date, err)
		}
		for _, model := range models {
			fields, err := l.store.HGetAll(ctx, bucketKey(date, model))
			if err != nil {
				return nil, fmt.Errorf("read usage bucket %s/%s: %w", date, model, err)
			}
			rec, ok := byModel[model]
			if !ok {
				rec = &entity.UsageRecord{}
				byModel[model] = rec
			}
			rec.Add(entity.UsageRecord{
				PromptTokens:     fields[fieldPrompt],
				CompletionTokens: fields[fieldCompletion],
				TotalTokens:      fields[fieldTotal],
				RequestCount:     fields[fieldRequests],
			})
		}
		if withUsers {
			members, err := l.store.SMembers(ctx, usersKey(date))
			if err != nil {
				return nil, fmt.Errorf("read user index %s: %w", date, err)
			}
			for _, u := range members {
				users[u] = struct{}{}
			}
		}
	}

	stats := &entity.UsageStats{
		Period:    period,
		StartDate: dates[0],
		EndDate:   dates[len(dates)-1],
		Models:    make([]entity.ModelUsage, 0, len(byModel)),
	}

	modelIDs := make([]string, 0, len(byModel))
	for m := range byModel {
		modelIDs = append(modelIDs, m)
	}
	sort.Strings(modelIDs)

	total := decimal.Zero
	for _, m := range modelIDs {
		rec := *byModel[m]
		cost := l.cost(ctx, m, rec)
		total = total.Add(cost)
		stats.Models = append(stats.Models, entity.ModelUsage{
			Model:       m,
			UsageRecord: rec,
			Cost:        cost.InexactFloat64(),
		})
		stats.Totals.Add(rec)
	}
	stats.TotalCost = total.Round(6).InexactFloat64()

	if withUsers {
		stats.Users = make([]string, 0, len(users))
		for u := range users {
			stats.Users = append(stats.Users, u)
		}
		sort.Strings(stats.Users)
		stats.UserCount = len(stats.Users)
	}
	return stats, nil
}

// cost 使用产生该用量的模型单价；未知模型费用为 0
func (l *Ledger) cost(ctx context.Context, model string, rec entity.UsageRecord) decimal.Decimal {
	if l.prices == nil {
		return decimal.Zero
	}
	info, ok := l.prices.Price(model)
	if !ok {
		logger.Debug(ctx, "no price for model, cost reported as zero", "model", model)
		return decimal.Zero
	}
	return Cost(rec.PromptTokens, rec.CompletionTokens, info).Round(6)
}

// Cost (prompt/1000)×input + (completion/1000)×output
func Cost(promptTokens, completionTokens int64, info entity.ModelInfo) decimal.Decimal {
	thousand := decimal.NewFromInt(1000)
	in := decimal.NewFromInt(promptTokens).Div(thousand).Mul(decimal.NewFromFloat(info.InputCostPer1K))
	out := decimal.NewFromInt(completionTokens).Div(thousand).Mul(decimal.NewFromFloat(info.OutputCostPer1K))
	return in.Add(out)
}
