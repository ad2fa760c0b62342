package anomaly

import (
	"time"

	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a detected anomaly
type Status string

const (
	StatusDetected      Status = "detected"
	StatusVerified      Status = "verified"
	StatusFalsePositive Status = "false_positive"
	StatusExpired       Status = "expired"
)

// Anomaly is a price observation judged to be a significant, plausible
// deviation below the route's normal price. Created only by the detection
// engine; status is later mutated by external verification or user feedback.
// Past ExpiresAt the anomaly is logically inert but is kept until the
// cleanup trigger's grace period elapses.
type Anomaly struct {
	shared.BaseAggregateRoot
	RouteID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	ObservationID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	NormalPrice        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DetectedPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DiscountPercentage float64         `gorm:"not null"`
	AnomalyScore       float64         `gorm:"not null"`
	MLConfidence       float64         `gorm:"not null"`
	IsolationScore     float64         `gorm:"not null;default:0"`
	ZScore             float64         `gorm:"not null;default:0"`
	Status             Status          `gorm:"type:varchar(20);not null;default:'detected';index"`
	ExpiresAt          time.Time       `gorm:"not null;index"`
	DetectedAt         time.Time       `gorm:"not null;index"`
	Features           string          `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (Anomaly) TableName() string {
	return "anomalies"
}

// NewAnomaly creates a detected anomaly with its audit feature vector
func NewAnomaly(
	routeID, observationID uuid.UUID,
	normalPrice, detectedPrice decimal.Decimal,
	discount, score, confidence, isolationScore, zScore float64,
	featuresJSON string,
	ttl time.Duration,
) *Anomaly {
	now := time.Now()
	a := &Anomaly{
		BaseAggregateRoot:  shared.NewBaseAggregateRoot(),
		RouteID:            routeID,
		ObservationID:      observationID,
		NormalPrice:        normalPrice,
		DetectedPrice:      detectedPrice,
		DiscountPercentage: discount,
		AnomalyScore:       score,
		MLConfidence:       confidence,
		IsolationScore:     isolationScore,
		ZScore:             zScore,
		Status:             StatusDetected,
		ExpiresAt:          now.Add(ttl),
		DetectedAt:         now,
		Features:           featuresJSON,
	}
	a.AddDomainEvent(NewAnomalyDetectedEvent(a))
	return a
}

// MarkVerified records a successful external verification
func (a *Anomaly) MarkVerified() error {
	if a.Status != StatusDetected {
		return shared.ErrInvalidState
	}
	a.Status = StatusVerified
	a.UpdatedAt = time.Now()
	a.IncrementVersion()
	return nil
}

// MarkFalsePositive records a failed verification or negative user feedback
func (a *Anomaly) MarkFalsePositive() error {
	if a.Status != StatusDetected {
		return shared.ErrInvalidState
	}
	a.Status = StatusFalsePositive
	a.UpdatedAt = time.Now()
	a.IncrementVersion()
	return nil
}

// IsExpired reports whether the anomaly is past its expiry
func (a *Anomaly) IsExpired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
