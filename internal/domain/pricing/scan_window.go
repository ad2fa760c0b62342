package pricing

import "time"

// ScanWindow is one departure/duration combination probed during a route
// scan. MonthsAhead sets the departure date relative to the scan time;
// DurationDays sets the return date relative to departure.
type ScanWindow struct {
	MonthsAhead  int
	DurationDays int
}

// DefaultScanWindows is the fixed probe set for every route scan. Each
// window costs one provider call, so the per-scan quota cost is
// len(DefaultScanWindows).
var DefaultScanWindows = []ScanWindow{
	{MonthsAhead: 2, DurationDays: 7},
	{MonthsAhead: 2, DurationDays: 14},
	{MonthsAhead: 3, DurationDays: 7},
	{MonthsAhead: 4, DurationDays: 10},
	{MonthsAhead: 6, DurationDays: 7},
	{MonthsAhead: 8, DurationDays: 14},
}

// Dates resolves the window to concrete departure and return dates
func (w ScanWindow) Dates(now time.Time) (departure, ret time.Time) {
	departure = now.AddDate(0, w.MonthsAhead, 0)
	ret = departure.AddDate(0, 0, w.DurationDays)
	return departure, ret
}
