package llm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ai-gateway-api/pkg/logger"
	"ai-gateway-api/pkg/metrics"
)

const probeTimeout = 10 * time.Second

// availabilityCache 缓存探活结果，并发探活合并为一次
type availabilityCache struct {
	provider string
	ttl      time.Duration
	probe    func(ctx context.Context) error
	now      func() time.Time

	group     singleflight.Group
	mu        sync.Mutex
	available bool
	checkedAt time.Time
}

func newAvailabilityCache(provider string, ttl time.Duration, probe func(ctx context.Context) error) *availabilityCache {
	return &availabilityCache{
		provider: provider,
		ttl:      ttl,
		probe:    probe,
		now:      time.Now,
	}
}

// Check 返回缓存结果；过期或从未探测时执行一次探活
func (a *availabilityCache) Check(ctx context.Context) bool {
	a.mu.Lock()
	if !a.checkedAt.IsZero() && a.ttl > 0 && a.now().Sub(a.checkedAt) < a.ttl {
		ok := a.available
		a.mu.Unlock()
		return ok
	}
	a.mu.Unlock()

	v, _, _ := a.group.Do("probe", func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		defer cancel()

		err := a.probe(pctx)
		ok := err == nil
		if !ok {
			logger.Warn(ctx, "provider availability probe failed", "provider", a.provider, "error", err.Error())
		}

		a.mu.Lock()
		a.available = ok
		a.checkedAt = a.now()
		a.mu.Unlock()

		gauge := 0.0
		if ok {
			gauge = 1
		}
		metrics.ProviderAvailable.WithLabelValues(a.provider).Set(gauge)
		return ok, nil
	})
	return v.(bool)
}

// CheckedAt 最近一次探活时间
func (a *availabilityCache) CheckedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkedAt
}
