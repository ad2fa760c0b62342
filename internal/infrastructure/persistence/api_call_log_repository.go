package persistence

import (
	"context"
	"time"

	"github.com/globegenius/backend/internal/domain/pricing"
	"gorm.io/gorm"
)

// GormApiCallLogRepository implements pricing.ApiCallLogRepository using GORM.
// The api_call_logs table is the single source of truth for quota accounting;
// counters kept elsewhere are advisory only.
type GormApiCallLogRepository struct {
	db *gorm.DB
}

// NewGormApiCallLogRepository creates a new GormApiCallLogRepository
func NewGormApiCallLogRepository(db *gorm.DB) *GormApiCallLogRepository {
	return &GormApiCallLogRepository{db: db}
}

// Append records a provider call
func (r *GormApiCallLogRepository) Append(ctx context.Context, log *pricing.ApiCallLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// CountSince counts calls for a provider made at or after the given instant
func (r *GormApiCallLogRepository) CountSince(ctx context.Context, provider string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&pricing.ApiCallLog{}).
		Where("provider = ? AND created_at >= ?", provider, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteOlderThan purges call logs older than the cutoff
func (r *GormApiCallLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&pricing.ApiCallLog{})
	return res.RowsAffected, res.Error
}

var _ pricing.ApiCallLogRepository = (*GormApiCallLogRepository)(nil)
