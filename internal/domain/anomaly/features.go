package anomaly

// FeatureVector is the numeric summary of a price observation and its
// historical context fed to the scorer. Fields are explicit rather than a
// loose map so the scorer contract is typed and auditable.
type FeatureVector struct {
	PriceRatio         float64 `json:"price_ratio"`
	ZScore             float64 `json:"z_score"`
	DayOfWeek          int     `json:"day_of_week"`
	DaysUntilDeparture int     `json:"days_until_departure"`
	TripDuration       int     `json:"trip_duration"`
	SeasonalFactor     float64 `json:"seasonal_factor"`
	HistoricalMin      float64 `json:"historical_min"`
	HistoricalMax      float64 `json:"historical_max"`
	HistoricalMedian   float64 `json:"historical_median"`
	PriceVariance      float64 `json:"price_variance"`
	RecentTrend        float64 `json:"recent_trend"`
}

// ScoringResult is what a scoring strategy returns for one feature vector
type ScoringResult struct {
	IsolationScore     float64    `json:"isolation_score"`
	PredictedPrice     float64    `json:"predicted_price"`
	AnomalyProbability float64    `json:"anomaly_probability"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
}
