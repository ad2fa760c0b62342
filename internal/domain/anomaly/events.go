package anomaly

import (
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EventTypeAnomalyDetected is published when a qualifying anomaly is persisted.
// The external alert dispatcher consumes this event; its payload is the whole
// outbound contract of the detection engine.
const EventTypeAnomalyDetected = "anomaly.detected"

// AnomalyDetectedEvent carries the data the alert dispatcher needs
type AnomalyDetectedEvent struct {
	shared.BaseDomainEvent
	AnomalyID          uuid.UUID `json:"anomaly_id"`
	RouteID            uuid.UUID `json:"route_id"`
	DiscountPercentage float64   `json:"discount"`
	DetectedPrice      float64   `json:"price"`
}

// NewAnomalyDetectedEvent creates the detection event for an anomaly
func NewAnomalyDetectedEvent(a *Anomaly) *AnomalyDetectedEvent {
	price, _ := a.DetectedPrice.Float64()
	return &AnomalyDetectedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeAnomalyDetected, "Anomaly", a.ID),
		AnomalyID:          a.ID,
		RouteID:            a.RouteID,
		DiscountPercentage: a.DiscountPercentage,
		DetectedPrice:      price,
	}
}
