package pricing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// FlightQuery asks a provider for round-trip fares on one route and date pair
type FlightQuery struct {
	Origin      string
	Destination string
	Departure   time.Time
	Return      time.Time
}

// Fare is one normalized fare returned by a provider
type Fare struct {
	Price        decimal.Decimal
	Currency     string
	Airline      string
	FlightNumber string
	BookingClass string
	StopCount    int
	DeepLink     string
	Raw          json.RawMessage
}

// SearchProvider is the outbound port to a flight-search API. A rate-limit
// rejection must surface as shared.ErrProviderRateLimited so the caller can
// abort the rest of the route scan.
type SearchProvider interface {
	Search(ctx context.Context, q FlightQuery) ([]Fare, error)
	Endpoint() string
}
