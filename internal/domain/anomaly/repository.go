package anomaly

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for anomaly persistence
type Repository interface {
	// FindByID finds an anomaly by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Anomaly, error)

	// Save creates or updates an anomaly
	Save(ctx context.Context, a *Anomaly) error

	// CountByRouteSince counts anomalies detected for a route since the given time
	CountByRouteSince(ctx context.Context, routeID uuid.UUID, since time.Time) (int64, error)

	// DeleteExpiredBefore purges anomalies whose expiry predates the cutoff
	// and returns the number of rows removed. Used only by the cleanup trigger.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
