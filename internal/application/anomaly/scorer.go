package anomaly

import (
	"context"

	"github.com/globegenius/backend/internal/domain/anomaly"
)

// Scorer scores a feature vector for anomaly likelihood. The production
// implementation calls the external ML service; StatisticalScorer is the
// deterministic degradation used when that service cannot answer.
type Scorer interface {
	Score(ctx context.Context, fv anomaly.FeatureVector) (anomaly.ScoringResult, error)
}

// StatisticalScorer approximates the ML service with a z-score cut. It never
// fails, so detection keeps producing (more conservative) results through an
// ML outage.
type StatisticalScorer struct{}

// Score derives a scoring result from the feature vector alone
func (StatisticalScorer) Score(_ context.Context, fv anomaly.FeatureVector) (anomaly.ScoringResult, error) {
	probability := 0.1
	isolation := 0.0
	if fv.ZScore < -2 {
		probability = 0.9
		isolation = -0.8
	}
	return anomaly.ScoringResult{
		IsolationScore:     isolation,
		PredictedPrice:     fv.HistoricalMedian,
		AnomalyProbability: probability,
		ConfidenceInterval: [2]float64{fv.HistoricalMedian * 0.8, fv.HistoricalMedian * 1.2},
	}, nil
}
