package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/globegenius/backend/internal/domain/route"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRouteRepository implements route.Repository using GORM
type GormRouteRepository struct {
	db *gorm.DB
}

// NewGormRouteRepository creates a new GormRouteRepository
func NewGormRouteRepository(db *gorm.DB) *GormRouteRepository {
	return &GormRouteRepository{db: db}
}

// FindByID finds a route by its ID
func (r *GormRouteRepository) FindByID(ctx context.Context, id uuid.UUID) (*route.Route, error) {
	var rt route.Route
	if err := r.db.WithContext(ctx).First(&rt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rt, nil
}

// FindDue finds active due routes ordered by tier, priority score and scan
// age. Never-scanned routes (last_scan_at IS NULL) sort before everything
// else within their tier/score group.
func (r *GormRouteRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]route.Route, error) {
	var routes []route.Route
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND (next_scan_at IS NULL OR next_scan_at <= ?)", true, now).
		Order("tier ASC").
		Order("priority_score DESC").
		Order("last_scan_at ASC NULLS FIRST").
		Limit(limit).
		Find(&routes).Error; err != nil {
		return nil, err
	}
	return routes, nil
}

// FindDueInTier behaves like FindDue restricted to one tier
func (r *GormRouteRepository) FindDueInTier(ctx context.Context, now time.Time, tier route.Tier, limit int) ([]route.Route, error) {
	var routes []route.Route
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND tier = ? AND (next_scan_at IS NULL OR next_scan_at <= ?)", true, tier, now).
		Order("priority_score DESC").
		Order("last_scan_at ASC NULLS FIRST").
		Limit(limit).
		Find(&routes).Error; err != nil {
		return nil, err
	}
	return routes, nil
}

// FindActive returns all active routes
func (r *GormRouteRepository) FindActive(ctx context.Context) ([]route.Route, error) {
	var routes []route.Route
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&routes).Error; err != nil {
		return nil, err
	}
	return routes, nil
}

// Save creates or updates a route
func (r *GormRouteRepository) Save(ctx context.Context, rt *route.Route) error {
	return r.db.WithContext(ctx).Save(rt).Error
}

// Upsert inserts a route or updates tier/interval for an existing
// origin/destination pair without touching its schedule state
func (r *GormRouteRepository) Upsert(ctx context.Context, rt *route.Route) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "origin"}, {Name: "destination"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tier", "scan_interval_minutes", "updated_at",
			}),
		}).
		Create(rt).Error
}

// PerformanceStats returns per-route performance aggregates since the given
// time. Interested users and revenue come from the alert side the web layer
// writes; this core only reads them.
func (r *GormRouteRepository) PerformanceStats(ctx context.Context, since time.Time) ([]route.PerformanceStats, error) {
	var stats []route.PerformanceStats
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			r.id                                        AS route_id,
			r.origin                                    AS origin,
			r.destination                               AS destination,
			COUNT(DISTINCT an.id)                       AS anomaly_count,
			COALESCE(AVG(an.discount_percentage), 0)    AS avg_discount,
			COUNT(DISTINCT al.user_id)                  AS interested_users,
			COALESCE(SUM(CASE WHEN al.converted THEN al.booking_value ELSE 0 END), 0) AS revenue
		FROM routes r
		LEFT JOIN anomalies an ON an.route_id = r.id AND an.detected_at > ?
		LEFT JOIN alerts al ON al.anomaly_id = an.id
		WHERE r.is_active = ?
		GROUP BY r.id, r.origin, r.destination`,
		since, true,
	).Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("performance stats query failed: %w", err)
	}
	return stats, nil
}

// ApplyTierChanges applies tier changes and the matching schedules in a
// single transaction. Either every affected route changes or none does.
func (r *GormRouteRepository) ApplyTierChanges(ctx context.Context, changes []route.TierChange, schedule map[uuid.UUID]time.Time, intervals map[route.Tier]int) error {
	if len(changes) == 0 && len(schedule) == 0 {
		return nil
	}
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, change := range changes {
			res := tx.Model(&route.Route{}).
				Where("id = ?", change.RouteID).
				Updates(map[string]any{
					"tier":                  change.NewTier,
					"scan_interval_minutes": intervals[change.NewTier],
					"updated_at":            now,
				})
			if res.Error != nil {
				return res.Error
			}
		}
		for routeID, nextScan := range schedule {
			if err := tx.Model(&route.Route{}).
				Where("id = ?", routeID).
				Updates(map[string]any{
					"next_scan_at": nextScan,
					"updated_at":   now,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

var _ route.Repository = (*GormRouteRepository)(nil)
