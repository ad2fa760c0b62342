package quota

import (
	"context"
	"strconv"
	"time"

	"github.com/globegenius/backend/internal/domain/pricing"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/globegenius/backend/internal/infrastructure/cache"
	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/globegenius/backend/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

const usageCacheKey = "quota:monthly_usage"

// Guard enforces the monthly provider call budget. The api_call_logs table
// is the only source of truth; the cached usage figure is a read
// optimization and is invalidated on every recorded call. Because the cache
// can lag a few minutes behind concurrent writers, the budget check is
// best-effort rather than a hard serialized gate, which is acceptable given
// the reallocation buffer.
type Guard struct {
	callLogs pricing.ApiCallLogRepository
	cache    cache.Store
	cfg      config.APILimitsConfig
	provider string
	logger   *zap.Logger
}

// NewGuard creates a quota guard for the flight-search provider
func NewGuard(callLogs pricing.ApiCallLogRepository, store cache.Store, cfg config.APILimitsConfig, logger *zap.Logger) *Guard {
	return &Guard{
		callLogs: callLogs,
		cache:    store,
		cfg:      cfg,
		provider: pricing.SourceFlightLabs,
		logger:   logger,
	}
}

// MonthlyUsage returns the number of provider calls made in the current
// calendar month (UTC). The figure is cached for a short TTL.
func (g *Guard) MonthlyUsage(ctx context.Context) (int, error) {
	if raw, found, err := g.cache.Get(ctx, usageCacheKey); err == nil && found {
		if n, perr := strconv.Atoi(raw); perr == nil {
			return n, nil
		}
	} else if err != nil {
		g.logger.Warn("usage cache read failed, falling back to database", zap.Error(err))
	}

	count, err := g.callLogs.CountSince(ctx, g.provider, startOfMonth(time.Now().UTC()))
	if err != nil {
		return 0, err
	}

	if err := g.cache.Set(ctx, usageCacheKey, strconv.FormatInt(count, 10), g.cfg.UsageCacheTTL); err != nil {
		g.logger.Warn("usage cache write failed", zap.Error(err))
	}
	return int(count), nil
}

// Remaining returns the remaining monthly budget, never negative
func (g *Guard) Remaining(ctx context.Context) (int, error) {
	used, err := g.MonthlyUsage(ctx)
	if err != nil {
		return 0, err
	}
	remaining := g.cfg.MonthlyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	metrics.QuotaRemaining.Set(float64(remaining))
	return remaining, nil
}

// IsEmergency reports whether the remaining budget has dropped below the
// emergency fraction of the monthly limit
func (g *Guard) IsEmergency(ctx context.Context) (bool, error) {
	remaining, err := g.Remaining(ctx)
	if err != nil {
		return false, err
	}
	return float64(remaining) < g.cfg.EmergencyThreshold*float64(g.cfg.MonthlyLimit), nil
}

// AssertSpendable checks that calls more provider calls fit in the monthly
// budget. Returns shared.ErrQuotaExceeded when they do not. Crossing the
// low-water mark or the same-day warning level only logs.
func (g *Guard) AssertSpendable(ctx context.Context, calls int) error {
	remaining, err := g.Remaining(ctx)
	if err != nil {
		return err
	}
	if remaining < calls {
		g.logger.Error("monthly provider budget exhausted",
			zap.Int("remaining", remaining),
			zap.Int("requested", calls))
		return shared.ErrQuotaExceeded
	}
	if remaining < g.cfg.LowWaterMark {
		g.logger.Warn("provider budget below low-water mark",
			zap.Int("remaining", remaining),
			zap.Int("low_water_mark", g.cfg.LowWaterMark))
	}

	if daily, derr := g.callLogs.CountSince(ctx, g.provider, startOfDay(time.Now().UTC())); derr == nil {
		if int(daily) >= g.cfg.DailyWarning {
			g.logger.Warn("daily provider usage above warning level",
				zap.Int64("calls_today", daily),
				zap.Int("daily_warning", g.cfg.DailyWarning))
		}
	}
	return nil
}

// RecordCall appends a call-log row and invalidates the cached usage figure
func (g *Guard) RecordCall(ctx context.Context, endpoint string, success bool, errMsg string) error {
	entry := pricing.NewApiCallLog(g.provider, endpoint, success, errMsg)
	if err := g.callLogs.Append(ctx, entry); err != nil {
		return err
	}
	if err := g.cache.Delete(ctx, usageCacheKey); err != nil {
		g.logger.Warn("usage cache invalidation failed", zap.Error(err))
	}
	return nil
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
