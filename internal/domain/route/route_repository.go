package route

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TierChange describes one route moving between tiers during reallocation
type TierChange struct {
	RouteID uuid.UUID `json:"route_id"`
	OldTier Tier      `json:"old_tier"`
	NewTier Tier      `json:"new_tier"`
	Reason  string    `json:"reason"`
}

// PerformanceStats aggregates the observed performance of one route over a
// trailing window. It feeds the daily tier reallocation.
type PerformanceStats struct {
	RouteID         uuid.UUID
	Origin          string
	Destination     string
	AnomalyCount    int
	AvgDiscount     float64
	InterestedUsers int
	Revenue         float64
}

// Repository defines the interface for route persistence
type Repository interface {
	// FindByID finds a route by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Route, error)

	// FindDue finds active routes whose next_scan_at is null or in the past,
	// ordered by tier ASC, priority_score DESC, hours-since-last-scan DESC
	// (never-scanned routes first), limited to limit rows
	FindDue(ctx context.Context, now time.Time, limit int) ([]Route, error)

	// FindDueInTier behaves like FindDue restricted to one tier
	FindDueInTier(ctx context.Context, now time.Time, tier Tier, limit int) ([]Route, error)

	// FindActive returns all active routes
	FindActive(ctx context.Context) ([]Route, error)

	// Save creates or updates a route
	Save(ctx context.Context, r *Route) error

	// Upsert inserts a route or, when the origin/destination pair already
	// exists, updates its tier and interval without touching schedule state
	Upsert(ctx context.Context, r *Route) error

	// PerformanceStats returns per-route performance aggregates since the
	// given time (anomaly counts, average discount, interested users, revenue)
	PerformanceStats(ctx context.Context, since time.Time) ([]PerformanceStats, error)

	// ApplyTierChanges applies a set of tier changes and the matching
	// schedules in a single transaction. Either every change is applied or
	// none is.
	ApplyTierChanges(ctx context.Context, changes []TierChange, schedule map[uuid.UUID]time.Time, intervals map[Tier]int) error
}
