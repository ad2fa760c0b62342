package scan

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/globegenius/backend/internal/application/quota"
	"github.com/globegenius/backend/internal/domain/pricing"
	"github.com/globegenius/backend/internal/domain/route"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/globegenius/backend/internal/infrastructure/cache"
	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dueRoutesCacheKey = "scan:due_routes"

// SchedulerService decides which routes to scan next and keeps the tier
// assignment aligned with observed route performance. All quota decisions
// defer to the Guard; the scheduler only shapes batch sizes around it.
type SchedulerService struct {
	routes route.Repository
	guard  *quota.Guard
	cache  cache.Store
	cfg    config.ScanningConfig
	limits config.APILimitsConfig
	logger *zap.Logger

	now func() time.Time
}

// NewSchedulerService creates a scan scheduler
func NewSchedulerService(
	routes route.Repository,
	guard *quota.Guard,
	store cache.Store,
	cfg config.ScanningConfig,
	limits config.APILimitsConfig,
	logger *zap.Logger,
) *SchedulerService {
	return &SchedulerService{
		routes: routes,
		guard:  guard,
		cache:  store,
		cfg:    cfg,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// NextDueRoutes returns up to limit routes eligible for scanning now, most
// urgent first. The batch is bounded by the remaining monthly budget (each
// scan costs one call per date window) and shrinks to tier-1 only with a
// hard cap when the budget enters emergency territory. The result is cached
// briefly so overlapping heartbeats agree on one batch.
func (s *SchedulerService) NextDueRoutes(ctx context.Context, limit int) ([]route.Route, error) {
	if cached, found, err := s.cache.Get(ctx, dueRoutesCacheKey); err == nil && found {
		var batch []route.Route
		if jerr := json.Unmarshal([]byte(cached), &batch); jerr == nil {
			return batch, nil
		}
	}

	remaining, err := s.guard.Remaining(ctx)
	if err != nil {
		return nil, err
	}

	callsPerScan := len(pricing.DefaultScanWindows)
	maxScans := remaining / callsPerScan
	if maxScans == 0 {
		s.logger.Warn("remaining budget cannot cover a single scan",
			zap.Int("remaining", remaining),
			zap.Int("calls_per_scan", callsPerScan))
		return nil, nil
	}
	if limit > maxScans {
		limit = maxScans
	}

	emergency, err := s.guard.IsEmergency(ctx)
	if err != nil {
		return nil, err
	}

	var batch []route.Route
	if emergency {
		if limit > s.limits.EmergencyBatchCap {
			limit = s.limits.EmergencyBatchCap
		}
		s.logger.Warn("emergency mode: restricting scans to tier 1",
			zap.Int("remaining", remaining),
			zap.Int("batch_cap", limit))
		batch, err = s.routes.FindDueInTier(ctx, s.now(), route.Tier1, limit)
	} else {
		batch, err = s.routes.FindDue(ctx, s.now(), limit)
	}
	if err != nil {
		return nil, err
	}

	if encoded, jerr := json.Marshal(batch); jerr == nil {
		if cerr := s.cache.Set(ctx, dueRoutesCacheKey, string(encoded), s.cfg.DueRouteCacheTTL); cerr != nil {
			s.logger.Warn("due-route cache write failed", zap.Error(cerr))
		}
	}
	return batch, nil
}

// MarkScanned advances a route's schedule after a scan attempt and drops the
// cached due batch so the route does not reappear in it. Calling it twice
// pushes the schedule forward twice; callers own the once-per-scan contract.
func (s *SchedulerService) MarkScanned(ctx context.Context, routeID uuid.UUID, at time.Time, callsUsed int) error {
	r, err := s.routes.FindByID(ctx, routeID)
	if err != nil {
		return err
	}
	r.RecordScan(at, callsUsed)
	if err := s.routes.Save(ctx, r); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, dueRoutesCacheKey); err != nil {
		s.logger.Warn("due-route cache invalidation failed", zap.Error(err))
	}
	return nil
}

// RouteSeed describes one route to ensure exists
type RouteSeed struct {
	Origin      string
	Destination string
	Tier        route.Tier
}

// SeedRoutes upserts the given routes. Existing pairs keep their schedule
// state; only tier and interval are refreshed.
func (s *SchedulerService) SeedRoutes(ctx context.Context, seeds []RouteSeed) error {
	for _, seed := range seeds {
		r, err := route.NewRoute(seed.Origin, seed.Destination, seed.Tier, s.cfg.TierInterval(int(seed.Tier)))
		if err != nil {
			return err
		}
		if err := s.routes.Upsert(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// ReallocateTiers rescores every active route on its trailing 30-day
// performance, partitions the ranking into tier cohorts and applies all
// resulting tier changes in one transaction. When the projected monthly
// call volume of the new assignment exceeds the buffered limit, nothing is
// applied and shared.ErrReallocationUnsafe is returned.
func (s *SchedulerService) ReallocateTiers(ctx context.Context) ([]route.TierChange, error) {
	now := s.now()
	stats, err := s.routes.PerformanceStats(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}
	active, err := s.routes.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	statsByRoute := make(map[uuid.UUID]route.PerformanceStats, len(stats))
	for _, st := range stats {
		statsByRoute[st.RouteID] = st
	}

	type scored struct {
		route route.Route
		score float64
	}
	ranking := make([]scored, 0, len(active))
	for _, r := range active {
		st := statsByRoute[r.ID]
		ranking = append(ranking, scored{route: r, score: performanceScore(st, r.Destination, now.Month())})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].score > ranking[j].score
	})

	assignment := make(map[uuid.UUID]route.Tier, len(ranking))
	tierCounts := make(map[route.Tier]int)
	for i, entry := range ranking {
		tier := route.Tier3
		switch {
		case i < s.cfg.Tier1CohortSize:
			tier = route.Tier1
		case i < s.cfg.Tier1CohortSize+s.cfg.Tier2CohortSize:
			tier = route.Tier2
		}
		assignment[entry.route.ID] = tier
		tierCounts[tier]++
	}

	projected := 0
	for tier, count := range tierCounts {
		projected += count * s.cfg.TierScansPerDay(int(tier)) * 30 * len(pricing.DefaultScanWindows)
	}
	budget := float64(s.limits.MonthlyLimit) * (1 - s.limits.BufferPercentage)
	if float64(projected) > budget {
		s.logger.Error("tier reallocation rejected: projected volume over budget",
			zap.Int("projected_calls", projected),
			zap.Float64("buffered_limit", budget))
		return nil, shared.ErrReallocationUnsafe
	}

	var changes []route.TierChange
	schedule := make(map[uuid.UUID]time.Time)
	staggerIdx := make(map[route.Tier]int)
	for _, entry := range ranking {
		newTier := assignment[entry.route.ID]
		if newTier == entry.route.Tier {
			continue
		}
		changes = append(changes, route.TierChange{
			RouteID: entry.route.ID,
			OldTier: entry.route.Tier,
			NewTier: newTier,
			Reason:  changeReason(entry.route.Tier, newTier),
		})
		// Spread rescheduled routes across the new tier's interval so a
		// promotion wave does not make them all due at the same minute.
		interval := time.Duration(s.cfg.TierInterval(int(newTier))) * time.Minute
		offset := time.Duration(staggerIdx[newTier]) * interval / time.Duration(max(tierCounts[newTier], 1))
		schedule[entry.route.ID] = now.Add(offset)
		staggerIdx[newTier]++
	}
	if len(changes) == 0 {
		return nil, nil
	}

	intervals := map[route.Tier]int{
		route.Tier1: s.cfg.Tier1IntervalMinutes,
		route.Tier2: s.cfg.Tier2IntervalMinutes,
		route.Tier3: s.cfg.Tier3IntervalMinutes,
	}
	if err := s.routes.ApplyTierChanges(ctx, changes, schedule, intervals); err != nil {
		return nil, err
	}

	s.logger.Info("tier reallocation applied",
		zap.Int("changes", len(changes)),
		zap.Int("projected_calls", projected))
	return changes, nil
}

func changeReason(from, to route.Tier) string {
	if to < from {
		return "promoted on trailing 30-day performance"
	}
	return "demoted on trailing 30-day performance"
}
