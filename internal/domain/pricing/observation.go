package pricing

import (
	"time"

	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceFlightLabs tags observations fetched from the FlightLabs provider
const SourceFlightLabs = "flightlabs"

// PriceObservation is one normalized fare returned by the flight-search
// provider. Rows are append-only: nothing mutates an observation after it is
// written, which is what makes concurrent detection reads safe. Old rows are
// purged by the cleanup trigger after the retention window, never by the
// detection path.
type PriceObservation struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	RouteID          uuid.UUID       `gorm:"type:uuid;not null;index:idx_obs_route_departure"`
	Price            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency         string          `gorm:"type:char(3);not null"`
	DepartureDate    time.Time       `gorm:"not null;index:idx_obs_route_departure"`
	ReturnDate       time.Time       `gorm:"not null"`
	TripDurationDays int             `gorm:"not null"`
	Airline          string          `gorm:"type:varchar(100)"`
	FlightNumber     string          `gorm:"type:varchar(20)"`
	BookingClass     string          `gorm:"type:varchar(20);default:'economy'"`
	StopCount        int             `gorm:"not null;default:0"`
	DeepLink         string          `gorm:"type:text"`
	RawData          string          `gorm:"type:jsonb"`
	Source           string          `gorm:"type:varchar(50);not null"`
	CreatedAt        time.Time       `gorm:"index"`
}

// TableName returns the table name for GORM
func (PriceObservation) TableName() string {
	return "price_observations"
}

// NewPriceObservation creates an observation for a route
func NewPriceObservation(routeID uuid.UUID, price decimal.Decimal, currency string, departure, ret time.Time, source string) (*PriceObservation, error) {
	if price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Price cannot be negative")
	}
	if ret.Before(departure) {
		return nil, shared.NewDomainError("INVALID_DATES", "Return date precedes departure date")
	}

	duration := int(ret.Sub(departure).Hours() / 24)
	return &PriceObservation{
		ID:               uuid.New(),
		RouteID:          routeID,
		Price:            price,
		Currency:         currency,
		DepartureDate:    departure,
		ReturnDate:       ret,
		TripDurationDays: duration,
		Source:           source,
		CreatedAt:        time.Now(),
	}, nil
}

// DaysUntilDeparture returns the booking window length at the given time
func (o *PriceObservation) DaysUntilDeparture(now time.Time) int {
	return int(o.DepartureDate.Sub(now).Hours() / 24)
}
