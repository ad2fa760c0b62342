package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/globegenius/backend/internal/domain/anomaly"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAnomalyRepository implements anomaly.Repository using GORM
type GormAnomalyRepository struct {
	db *gorm.DB
}

// NewGormAnomalyRepository creates a new GormAnomalyRepository
func NewGormAnomalyRepository(db *gorm.DB) *GormAnomalyRepository {
	return &GormAnomalyRepository{db: db}
}

// FindByID finds an anomaly by ID
func (r *GormAnomalyRepository) FindByID(ctx context.Context, id uuid.UUID) (*anomaly.Anomaly, error) {
	var a anomaly.Anomaly
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Save persists an anomaly
func (r *GormAnomalyRepository) Save(ctx context.Context, a *anomaly.Anomaly) error {
	return r.db.WithContext(ctx).Save(a).Error
}

// CountByRouteSince counts anomalies detected for a route at or after the given instant
func (r *GormAnomalyRepository) CountByRouteSince(ctx context.Context, routeID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&anomaly.Anomaly{}).
		Where("route_id = ? AND detected_at >= ?", routeID, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteExpiredBefore purges anomalies whose expiry passed before the cutoff.
// The cutoff already includes the retention grace period.
func (r *GormAnomalyRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&anomaly.Anomaly{})
	return res.RowsAffected, res.Error
}

var _ anomaly.Repository = (*GormAnomalyRepository)(nil)
