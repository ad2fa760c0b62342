package scan

import (
	"slices"
	"time"

	"github.com/globegenius/backend/internal/domain/route"
)

// Performance score weights. Each input is normalized to [0,1] against a
// saturation point (10 anomalies, 100 interested users, 1000 revenue) so one
// runaway route cannot drown out the rest of the ranking.
const (
	weightAnomalies = 0.35
	weightDiscount  = 0.25
	weightUsers     = 0.25
	weightRevenue   = 0.15
)

// Seasonal demand boosts by destination. A destination in season multiplies
// its score by 1+boost, nudging it toward a higher tier for the duration.
var seasonalBoosts = []struct {
	destinations []string
	months       []time.Month
	boost        float64
}{
	{
		destinations: []string{"PMI", "IBZ", "HER", "RHO", "DBV", "SPU", "NCE", "NAP"},
		months:       []time.Month{time.May, time.June, time.July, time.August, time.September},
		boost:        0.3,
	},
	{
		destinations: []string{"GVA", "ZRH", "INN", "MUC", "VIE"},
		months:       []time.Month{time.December, time.January, time.February, time.March},
		boost:        0.25,
	},
	{
		destinations: []string{"JFK", "LAX", "DXB", "BKK", "NRT"},
		months:       []time.Month{time.November, time.December, time.January},
		boost:        0.2,
	},
}

// performanceScore ranks a route by its trailing performance, scaled by the
// destination's seasonal boost for the given month
func performanceScore(st route.PerformanceStats, destination string, month time.Month) float64 {
	score := weightAnomalies*clamp01(float64(st.AnomalyCount)/10) +
		weightDiscount*(st.AvgDiscount/100) +
		weightUsers*clamp01(float64(st.InterestedUsers)/100) +
		weightRevenue*clamp01(st.Revenue/1000)
	return score * (1 + seasonalBoost(destination, month))
}

// seasonalBoost returns the boost for a destination in the given month, or 0
func seasonalBoost(destination string, month time.Month) float64 {
	for _, entry := range seasonalBoosts {
		if !slices.Contains(entry.destinations, destination) {
			continue
		}
		if slices.Contains(entry.months, month) {
			return entry.boost
		}
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
