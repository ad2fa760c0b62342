package persistence

import (
	"context"
	"time"

	"github.com/globegenius/backend/internal/domain/pricing"
	"gorm.io/gorm"
)

// GormObservationRepository implements pricing.ObservationRepository using GORM
type GormObservationRepository struct {
	db *gorm.DB
}

// NewGormObservationRepository creates a new GormObservationRepository
func NewGormObservationRepository(db *gorm.DB) *GormObservationRepository {
	return &GormObservationRepository{db: db}
}

// Save appends an observation. The table is append-only; Save is never used
// to update an existing row.
func (r *GormObservationRepository) Save(ctx context.Context, obs *pricing.PriceObservation) error {
	return r.db.WithContext(ctx).Create(obs).Error
}

// FindComparable returns the comparable history for a candidate observation:
// same route, same departure calendar month, trip duration within tolerance,
// trailing window only, newest first, capped at the query limit.
func (r *GormObservationRepository) FindComparable(ctx context.Context, q pricing.HistoryQuery) ([]pricing.PriceObservation, error) {
	monthExpr := "EXTRACT(MONTH FROM departure_date) = ?"
	if r.db.Dialector.Name() == "sqlite" {
		monthExpr = "CAST(strftime('%m', departure_date) AS INTEGER) = ?"
	}

	var observations []pricing.PriceObservation
	err := r.db.WithContext(ctx).
		Where("route_id = ?", q.RouteID).
		Where(monthExpr, int(q.DepartureMonth)).
		Where("trip_duration_days BETWEEN ? AND ?", q.TripDurationDays-q.DurationTolerance, q.TripDurationDays+q.DurationTolerance).
		Where("created_at > ?", q.Since).
		Order("created_at DESC").
		Limit(q.Limit).
		Find(&observations).Error
	if err != nil {
		return nil, err
	}
	return observations, nil
}

// DeleteOlderThan purges observations created before the cutoff
func (r *GormObservationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&pricing.PriceObservation{})
	return res.RowsAffected, res.Error
}

var _ pricing.ObservationRepository = (*GormObservationRepository)(nil)
