package route

import (
	"time"

	"github.com/globegenius/backend/internal/domain/shared"
)

// Tier is a route's priority class. Tier 1 routes are scanned most often.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// Valid reports whether the tier is one of the three known classes
func (t Tier) Valid() bool {
	return t >= Tier1 && t <= Tier3
}

// Route represents a monitored flight route (origin/destination pair)
// It is the aggregate root for scan-scheduling operations. The core only
// mutates tier and schedule fields; routes are created from seed
// configuration or operator action and are never deleted here.
type Route struct {
	shared.BaseAggregateRoot
	Origin              string     `gorm:"type:char(3);not null;uniqueIndex:idx_route_pair,priority:1"`
	Destination         string     `gorm:"type:char(3);not null;uniqueIndex:idx_route_pair,priority:2"`
	Tier                Tier       `gorm:"not null;default:3;index"`
	ScanIntervalMinutes int        `gorm:"not null;default:120"`
	LastScanAt          *time.Time `gorm:"index"`
	NextScanAt          *time.Time `gorm:"index"`
	PriorityScore       float64    `gorm:"not null;default:0.5"`
	TotalScans          int        `gorm:"not null;default:0"`
	MonthlyCalls        int        `gorm:"not null;default:0"`
	IsActive            bool       `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (Route) TableName() string {
	return "routes"
}

// NewRoute creates a new route in the given tier
func NewRoute(origin, destination string, tier Tier, intervalMinutes int) (*Route, error) {
	if len(origin) != 3 || len(destination) != 3 {
		return nil, shared.NewDomainError("INVALID_AIRPORT_CODE", "Origin and destination must be 3-letter IATA codes")
	}
	if !tier.Valid() {
		return nil, shared.NewDomainError("INVALID_TIER", "Tier must be 1, 2 or 3")
	}
	if intervalMinutes <= 0 {
		return nil, shared.NewDomainError("INVALID_INTERVAL", "Scan interval must be positive")
	}

	return &Route{
		BaseAggregateRoot:   shared.NewBaseAggregateRoot(),
		Origin:              origin,
		Destination:         destination,
		Tier:                tier,
		ScanIntervalMinutes: intervalMinutes,
		PriorityScore:       0.5,
		IsActive:            true,
	}, nil
}

// RecordScan advances the route's schedule after a scan attempt. It always
// moves next_scan_at one full interval past the call time, so calling it
// twice in a row pushes the schedule forward twice. callsUsed is the number
// of provider calls the scan consumed (one per date window).
func (r *Route) RecordScan(at time.Time, callsUsed int) {
	next := at.Add(time.Duration(r.ScanIntervalMinutes) * time.Minute)
	r.LastScanAt = &at
	r.NextScanAt = &next
	r.TotalScans++
	r.MonthlyCalls += callsUsed
	r.UpdatedAt = at
	r.IncrementVersion()
}

// ChangeTier moves the route to a new tier and reschedules it one new-tier
// interval from now. Used only by the daily reallocation.
func (r *Route) ChangeTier(tier Tier, intervalMinutes int, now time.Time) error {
	if !tier.Valid() {
		return shared.NewDomainError("INVALID_TIER", "Tier must be 1, 2 or 3")
	}
	next := now.Add(time.Duration(intervalMinutes) * time.Minute)
	r.Tier = tier
	r.ScanIntervalMinutes = intervalMinutes
	r.NextScanAt = &next
	r.UpdatedAt = now
	r.IncrementVersion()
	return nil
}

// HoursSinceLastScan returns the age of the last scan in hours.
// Never-scanned routes report a large sentinel so they sort first.
func (r *Route) HoursSinceLastScan(now time.Time) float64 {
	if r.LastScanAt == nil {
		return 1000
	}
	return now.Sub(*r.LastScanAt).Hours()
}

// IsDue reports whether the route is eligible for scanning at the given time
func (r *Route) IsDue(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	return r.NextScanAt == nil || !r.NextScanAt.After(now)
}
