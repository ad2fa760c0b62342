package alert

import (
	"context"

	"github.com/google/uuid"
)

// DigestKind selects which digest subscription a delivery run targets
type DigestKind string

const (
	DigestDaily  DigestKind = "daily"
	DigestWeekly DigestKind = "weekly"
)

// Dispatcher is the outbound port to the user-facing alert surface. The
// scanning core only triggers deliveries; matching users to anomalies,
// channel choice and rendering all live behind this interface.
type Dispatcher interface {
	// SendAnomalyAlerts fans an anomaly out to every matching user
	SendAnomalyAlerts(ctx context.Context, anomalyID uuid.UUID) error

	// DigestRecipients returns the user IDs subscribed to a digest kind
	DigestRecipients(ctx context.Context, kind DigestKind) ([]uuid.UUID, error)

	// SendDigest delivers one user's digest of the given kind
	SendDigest(ctx context.Context, userID uuid.UUID, kind DigestKind) error
}
