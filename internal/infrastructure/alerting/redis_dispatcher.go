package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/globegenius/backend/internal/application/alert"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Redis channels consumed by the user-facing alert service
const (
	ChannelAlertFanout = "alerts:fanout"
	ChannelDigest      = "alerts:digest"
)

// RedisDispatcher hands alert work to the user-facing service over Redis.
// User matching, channel choice and rendering all happen on the consumer
// side; this process only decides when something must go out.
type RedisDispatcher struct {
	client *redis.Client
	db     *gorm.DB
	logger *zap.Logger
}

// NewRedisDispatcher creates a dispatcher publishing on the given client.
// The database handle is used read-only for digest recipient lookup.
func NewRedisDispatcher(client *redis.Client, db *gorm.DB, logger *zap.Logger) *RedisDispatcher {
	return &RedisDispatcher{client: client, db: db, logger: logger}
}

// SendAnomalyAlerts asks the alert service to fan one anomaly out to every
// matching user
func (d *RedisDispatcher) SendAnomalyAlerts(ctx context.Context, anomalyID uuid.UUID) error {
	payload, err := json.Marshal(map[string]string{"anomalyId": anomalyID.String()})
	if err != nil {
		return err
	}
	if err := d.client.Publish(ctx, ChannelAlertFanout, payload).Err(); err != nil {
		return fmt.Errorf("publishing alert fanout: %w", err)
	}
	d.logger.Debug("alert fanout published", zap.String("anomaly_id", anomalyID.String()))
	return nil
}

// DigestRecipients returns the users subscribed to a digest kind. The
// alert_preferences table is owned by the alert service; only this one read
// crosses the boundary.
func (d *RedisDispatcher) DigestRecipients(ctx context.Context, kind alert.DigestKind) ([]uuid.UUID, error) {
	column := "daily_digest"
	if kind == alert.DigestWeekly {
		column = "weekly_digest"
	}
	var ids []uuid.UUID
	err := d.db.WithContext(ctx).
		Raw("SELECT user_id FROM alert_preferences WHERE " + column + " = true").
		Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("querying %s digest recipients: %w", kind, err)
	}
	return ids, nil
}

// SendDigest asks the alert service to build and deliver one user's digest
func (d *RedisDispatcher) SendDigest(ctx context.Context, userID uuid.UUID, kind alert.DigestKind) error {
	payload, err := json.Marshal(map[string]string{
		"userId":    userID.String(),
		"frequency": string(kind),
	})
	if err != nil {
		return err
	}
	if err := d.client.Publish(ctx, ChannelDigest, payload).Err(); err != nil {
		return fmt.Errorf("publishing digest request: %w", err)
	}
	return nil
}

var _ alert.Dispatcher = (*RedisDispatcher)(nil)
