package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/globegenius/backend/internal/domain/anomaly"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelAnomalyDetected is the Redis pub/sub channel the external alert
// dispatcher listens on
const ChannelAnomalyDetected = "anomaly:detected"

// anomalyPayload is the wire contract consumed by the alert dispatcher.
// Changing these field names breaks the external consumer.
type anomalyPayload struct {
	AnomalyID uuid.UUID `json:"anomalyId"`
	RouteID   uuid.UUID `json:"routeId"`
	Discount  float64   `json:"discount"`
	Price     float64   `json:"price"`
}

// RedisAnomalyPublisher bridges in-process AnomalyDetected events to the
// Redis pub/sub channel consumed outside this process. It is registered on
// the in-memory bus as a wildcard-free handler for the detection event.
type RedisAnomalyPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisAnomalyPublisher creates a publisher for the anomaly channel
func NewRedisAnomalyPublisher(client *redis.Client, logger *zap.Logger) *RedisAnomalyPublisher {
	return &RedisAnomalyPublisher{
		client: client,
		logger: logger.With(zap.String("component", "anomaly_publisher")),
	}
}

// EventTypes returns the event types this handler subscribes to
func (p *RedisAnomalyPublisher) EventTypes() []string {
	return []string{anomaly.EventTypeAnomalyDetected}
}

// Handle forwards a detection event onto the Redis channel
func (p *RedisAnomalyPublisher) Handle(ctx context.Context, event shared.DomainEvent) error {
	detected, ok := event.(*anomaly.AnomalyDetectedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T for %s", event, event.EventType())
	}

	payload, err := json.Marshal(anomalyPayload{
		AnomalyID: detected.AnomalyID,
		RouteID:   detected.RouteID,
		Discount:  detected.DiscountPercentage,
		Price:     detected.DetectedPrice,
	})
	if err != nil {
		return fmt.Errorf("marshal anomaly payload: %w", err)
	}

	if err := p.client.Publish(ctx, ChannelAnomalyDetected, payload).Err(); err != nil {
		return fmt.Errorf("publish anomaly event: %w", err)
	}

	p.logger.Info("anomaly published",
		zap.String("anomaly_id", detected.AnomalyID.String()),
		zap.String("route_id", detected.RouteID.String()),
		zap.Float64("discount", detected.DiscountPercentage),
	)
	return nil
}

var _ shared.EventHandler = (*RedisAnomalyPublisher)(nil)
