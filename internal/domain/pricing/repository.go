package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryQuery selects the comparable history for one candidate observation:
// same route, same departure calendar month, trip duration within the given
// tolerance, restricted to a trailing window and capped in size.
type HistoryQuery struct {
	RouteID           uuid.UUID
	DepartureMonth    time.Month
	TripDurationDays  int
	DurationTolerance int
	Since             time.Time
	Limit             int
}

// ObservationRepository defines the interface for price observation persistence
type ObservationRepository interface {
	// Save appends an observation. Observations are immutable once written.
	Save(ctx context.Context, obs *PriceObservation) error

	// FindComparable returns the comparable history for a candidate
	// observation, newest first
	FindComparable(ctx context.Context, q HistoryQuery) ([]PriceObservation, error)

	// DeleteOlderThan purges observations created before the cutoff and
	// returns the number of rows removed. Used only by the cleanup trigger.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ApiCallLogRepository defines the interface for provider call accounting
type ApiCallLogRepository interface {
	// Append records one provider call
	Append(ctx context.Context, log *ApiCallLog) error

	// CountSince counts calls for a provider created at or after the given time
	CountSince(ctx context.Context, provider string, since time.Time) (int64, error)

	// DeleteOlderThan purges log rows created before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
