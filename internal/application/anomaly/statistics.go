package anomaly

import (
	"math"
	"sort"
)

// priceStats holds the descriptive statistics of a price history
type priceStats struct {
	Mean     float64
	Median   float64
	Min      float64
	Max      float64
	Variance float64
	StdDev   float64
}

func computeStats(prices []float64) priceStats {
	n := float64(len(prices))
	if n == 0 {
		return priceStats{}
	}

	var sum float64
	min, max := prices[0], prices[0]
	for _, p := range prices {
		sum += p
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	mean := sum / n

	var sqSum float64
	for _, p := range prices {
		d := p - mean
		sqSum += d * d
	}
	variance := sqSum / n

	return priceStats{
		Mean:     mean,
		Median:   median(prices),
		Min:      min,
		Max:      max,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
	}
}

func median(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
