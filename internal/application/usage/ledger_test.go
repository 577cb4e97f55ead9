package usage

import (
	"context"
	"reflect"
	"testing"
	"time"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/infrastructure/persistence/memory"
)

type priceMap map[string]entity.ModelInfo

func (p priceMap) Price(model string) (entity.ModelInfo, bool) {
	info, ok := p[model]
	return info, ok
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLedger() (*Ledger, *clock) {
	c := &clock{t: time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)}
	store := memory.NewKVStoreWithClock(c.now)
	prices := priceMap{
		"gpt-4o": {InputCostPer1K: 0.01, OutputCostPer1K: 0.03},
	}
	return NewLedger(store, prices, 90, WithClock(c.now)), c
}

func TestLedger_RecordAndUserStats(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()

	if err := l.Record(ctx, "u1", "gpt-4o", entity.TokenUsage{PromptTokens: 1000, CompletionTokens: 500}); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(ctx, "u1", "gpt-4o", entity.TokenUsage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500}); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(ctx, "u2", "gpt-4o", entity.TokenUsage{PromptTokens: 10, CompletionTokens: 10}); err != nil {
		t.Fatal(err)
	}

	stats, err := l.UserStats(ctx, "u1", entity.PeriodToday)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.Models) != 1 {
		t.Fatalf("models = %+v", stats.Models)
	}
	m := stats.Models[0]
	if m.PromptTokens != 2000 || m.CompletionTokens != 1000 || m.TotalTokens != 3000 || m.RequestCount != 2 {
		t.Errorf("usage = %+v", m.UsageRecord)
	}
	// 2×0.01 + 1×0.03
	if m.Cost != 0.05 {
		t.Errorf("cost = %v, want 0.05", m.Cost)
	}
	if stats.StartDate != "2026-06-15" || stats.EndDate != "2026-06-15" {
		t.Errorf("range = %s..%s", stats.StartDate, stats.EndDate)
	}
	if stats.Users != nil {
		t.Errorf("user stats should not list users")
	}
}

func TestLedger_UnknownModelCostsZero(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()

	if err := l.Record(ctx, "u1", "mystery-model", entity.TokenUsage{PromptTokens: 5000, CompletionTokens: 5000}); err != nil {
		t.Fatal(err)
	}
	stats, err := l.GlobalStats(ctx, entity.PeriodToday)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Models[0].Cost != 0 || stats.TotalCost != 0 {
		t.Errorf("cost = %v / %v", stats.Models[0].Cost, stats.TotalCost)
	}
	if stats.Totals.TotalTokens != 10000 {
		t.Errorf("totals = %+v", stats.Totals)
	}
}

func TestLedger_GlobalWeekFoldsTrailingDays(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLedger()

	start := c.t
	// 8 天前的记录不应计入 week
	c.t = start.AddDate(0, 0, -7)
	_ = l.Record(ctx, "old", "gpt-4o", entity.TokenUsage{PromptTokens: 100})
	c.t = start.AddDate(0, 0, -6)
	_ = l.Record(ctx, "u2", "gpt-4o", entity.TokenUsage{PromptTokens: 100})
	c.t = start.AddDate(0, 0, -1)
	_ = l.Record(ctx, "u1", "simulated-v1", entity.TokenUsage{PromptTokens: 10})
	c.t = start
	_ = l.Record(ctx, "u1", "gpt-4o", entity.TokenUsage{PromptTokens: 100})

	week, err := l.GlobalStats(ctx, entity.PeriodWeek)
	if err != nil {
		t.Fatal(err)
	}
	if week.StartDate != "2026-06-09" || week.EndDate != "2026-06-15" {
		t.Errorf("range = %s..%s", week.StartDate, week.EndDate)
	}
	if !reflect.DeepEqual(week.Users, []string{"u1", "u2"}) || week.UserCount != 2 {
		t.Errorf("users = %v", week.Users)
	}
	if len(week.Models) != 2 || week.Models[0].Model != "gpt-4o" || week.Models[1].Model != "simulated-v1" {
		t.Fatalf("models = %+v", week.Models)
	}
	if week.Models[0].PromptTokens != 200 || week.Models[0].RequestCount != 2 {
		t.Errorf("gpt-4o = %+v", week.Models[0].UsageRecord)
	}

	month, _ := l.GlobalStats(ctx, entity.PeriodMonth)
	if month.Totals.RequestCount != 4 {
		t.Errorf("month requests = %d, want 4", month.Totals.RequestCount)
	}
}

func TestLedger_StatsIdempotent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()
	for _, u := range []string{"c", "a", "b"} {
		_ = l.Record(ctx, u, "gpt-4o", entity.TokenUsage{PromptTokens: 7, CompletionTokens: 3})
	}

	first, err := l.GlobalStats(ctx, entity.PeriodToday)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.GlobalStats(ctx, entity.PeriodToday)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("stats differ:\n%+v\n%+v", first, second)
	}
}

func TestLedger_BucketsExpireAfterRetention(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLedger()

	_ = l.Record(ctx, "u1", "gpt-4o", entity.TokenUsage{PromptTokens: 1})
	c.t = c.t.AddDate(0, 0, 91)

	// 直接读取旧日期的桶
	fields, err := l.store.HGetAll(ctx, userBucketKey("u1", "2026-06-15", "gpt-4o"))
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 0 {
		t.Errorf("bucket should have expired, got %v", fields)
	}
}

func TestLedger_AnonymousUser(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()
	_ = l.Record(ctx, "  ", "gpt-4o", entity.TokenUsage{PromptTokens: 1})

	stats, _ := l.UserStats(ctx, "", entity.PeriodToday)
	if len(stats.Models) != 1 {
		t.Fatalf("anonymous usage missing: %+v", stats)
	}
}

func TestCost(t *testing.T) {
	got := Cost(700, 300, entity.ModelInfo{InputCostPer1K: 0.01, OutputCostPer1K: 0.03})
	if got.StringFixed(4) != "0.0160" {
		t.Errorf("Cost = %s, want 0.0160", got.StringFixed(4))
	}
}
