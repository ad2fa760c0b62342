package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/globegenius/backend/internal/domain/anomaly"
	"github.com/globegenius/backend/internal/domain/pricing"
	"github.com/globegenius/backend/internal/domain/route"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/globegenius/backend/internal/infrastructure/cache"
	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/globegenius/backend/internal/infrastructure/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// durationTolerance widens the comparable-history match to trips within
// this many days of the candidate's duration
const durationTolerance = 3

// DetectorService decides whether a price observation is a genuine deal.
// With enough comparable history it combines an ML (or fallback) probability
// with deterministic sanity rules; with thin history it degrades to a plain
// discount threshold. Qualifying anomalies are persisted and announced on
// the event bus; the observation itself is never mutated.
type DetectorService struct {
	observations pricing.ObservationRepository
	anomalies    anomaly.Repository
	scorer       Scorer
	fallback     StatisticalScorer
	publisher    shared.EventPublisher
	cache        cache.Store
	cfg          config.DetectionConfig
	logger       *zap.Logger

	now func() time.Time
}

// NewDetectorService creates an anomaly detector
func NewDetectorService(
	observations pricing.ObservationRepository,
	anomalies anomaly.Repository,
	scorer Scorer,
	publisher shared.EventPublisher,
	store cache.Store,
	cfg config.DetectionConfig,
	logger *zap.Logger,
) *DetectorService {
	return &DetectorService{
		observations: observations,
		anomalies:    anomalies,
		scorer:       scorer,
		publisher:    publisher,
		cache:        store,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// Evaluate runs detection for one freshly stored observation
func (s *DetectorService) Evaluate(ctx context.Context, r *route.Route, obs *pricing.PriceObservation) error {
	history, err := s.comparableHistory(ctx, obs)
	if err != nil {
		return err
	}

	prices := make([]float64, 0, len(history))
	for _, h := range history {
		if h.ID == obs.ID {
			continue
		}
		p, _ := h.Price.Float64()
		prices = append(prices, p)
	}

	price, _ := obs.Price.Float64()
	if len(prices) < s.cfg.MinSamplesForScoring {
		return s.evaluateSimple(ctx, r, obs, price, prices)
	}
	return s.evaluateScored(ctx, r, obs, price, prices, history)
}

// evaluateSimple is the thin-history path: a plain discount threshold with
// fixed, conservative confidence. The scorer is never consulted here.
func (s *DetectorService) evaluateSimple(ctx context.Context, r *route.Route, obs *pricing.PriceObservation, price float64, prices []float64) error {
	if len(prices) == 0 {
		return nil
	}
	normal := median(prices)
	if normal == 0 {
		normal = computeStats(prices).Mean
	}
	if normal <= 0 {
		return nil
	}

	discount := (normal - price) / normal * 100
	if discount < s.cfg.MinDiscountPercentage {
		return nil
	}

	const confidence = 0.6
	if confidence < s.cfg.ConfidenceThreshold {
		return nil
	}
	features, _ := json.Marshal(map[string]any{
		"mode":         "simple",
		"sample_count": len(prices),
		"normal_price": normal,
	})
	return s.persist(ctx, r, obs, normal, discount, 0.7, confidence, 0, 0, string(features))
}

// evaluateScored is the full path: feature extraction, ML scoring with
// statistical fallback, rule merging and confidence adjustment
func (s *DetectorService) evaluateScored(ctx context.Context, r *route.Route, obs *pricing.PriceObservation, price float64, prices []float64, history []pricing.PriceObservation) error {
	stats := computeStats(prices)
	normal := stats.Median
	if normal == 0 {
		normal = stats.Mean
	}
	if normal <= 0 {
		return nil
	}

	zScore := 0.0
	if stats.StdDev > 0 {
		zScore = (price - stats.Mean) / stats.StdDev
	}
	now := s.now()
	fv := anomaly.FeatureVector{
		PriceRatio:         price / normal,
		ZScore:             zScore,
		DayOfWeek:          int(obs.DepartureDate.Weekday()),
		DaysUntilDeparture: obs.DaysUntilDeparture(now),
		TripDuration:       obs.TripDurationDays,
		SeasonalFactor:     seasonalFactor(obs.DepartureDate.Month()),
		HistoricalMin:      stats.Min,
		HistoricalMax:      stats.Max,
		HistoricalMedian:   stats.Median,
		PriceVariance:      stats.Variance,
		RecentTrend:        recentTrend(history, obs.ID, now),
	}

	scoring, err := s.scorer.Score(ctx, fv)
	if err != nil {
		metrics.ScorerFallbacks.Inc()
		s.logger.Warn("ML scorer unavailable, using statistical fallback", zap.Error(err))
		scoring, _ = s.fallback.Score(ctx, fv)
	}
	// The scorer's predicted normal price supersedes the historical median.
	if scoring.PredictedPrice > 0 {
		normal = scoring.PredictedPrice
	}

	discount := (normal - price) / normal * 100

	minDiscountMet := discount >= s.cfg.MinDiscountPercentage
	priceInRange := price >= 0.5*stats.Min && price <= 1.5*stats.Max
	bookingWindowOK := fv.DaysUntilDeparture >= 14 && fv.DaysUntilDeparture <= 300
	durationOK := obs.TripDurationDays >= 2 && obs.TripDurationDays <= 30

	rulesPassed := 0
	for _, ok := range []bool{minDiscountMet, priceInRange, bookingWindowOK, durationOK} {
		if ok {
			rulesPassed++
		}
	}

	composite := 0.7*scoring.AnomalyProbability + 0.3*float64(rulesPassed)/4
	if discount > 70 {
		composite += 0.2
	}
	if composite <= 0.5 || !minDiscountMet || !priceInRange {
		return nil
	}

	confidence := scoring.AnomalyProbability
	if zScore < -3 {
		confidence = min(confidence+0.2, 1)
	}
	if discount > 60 {
		confidence = min(confidence+0.15, 1)
	}
	if !bookingWindowOK {
		confidence *= 0.8
	}
	if confidence < s.cfg.ConfidenceThreshold {
		s.logger.Debug("anomaly below confidence threshold",
			zap.String("origin", r.Origin),
			zap.String("destination", r.Destination),
			zap.Float64("confidence", confidence))
		return nil
	}

	features, _ := json.Marshal(fv)
	return s.persist(ctx, r, obs, normal, discount, composite, confidence, scoring.IsolationScore, zScore, string(features))
}

// persist stores the anomaly and publishes its detection event
func (s *DetectorService) persist(ctx context.Context, r *route.Route, obs *pricing.PriceObservation, normal, discount, score, confidence, isolation, zScore float64, featuresJSON string) error {
	ttl := time.Duration(s.cfg.AlertExpiryHours) * time.Hour
	a := anomaly.NewAnomaly(
		r.ID, obs.ID,
		decimal.NewFromFloat(normal), obs.Price,
		discount, score, confidence, isolation, zScore,
		featuresJSON, ttl,
	)
	if err := s.anomalies.Save(ctx, a); err != nil {
		return err
	}
	metrics.AnomaliesDetected.Inc()

	if err := s.publisher.Publish(ctx, a.GetDomainEvents()...); err != nil {
		s.logger.Error("failed to publish anomaly event", zap.Error(err))
	}
	a.ClearDomainEvents()

	s.logger.Info("anomaly detected",
		zap.String("origin", r.Origin),
		zap.String("destination", r.Destination),
		zap.Float64("discount", discount),
		zap.Float64("confidence", confidence))
	return nil
}

// comparableHistory fetches (or reuses the cached) history matching the
// observation's route, departure month and trip duration
func (s *DetectorService) comparableHistory(ctx context.Context, obs *pricing.PriceObservation) ([]pricing.PriceObservation, error) {
	key := fmt.Sprintf("detection:history:%s:%d:%d", obs.RouteID, int(obs.DepartureDate.Month()), obs.TripDurationDays)
	if raw, found, err := s.cache.Get(ctx, key); err == nil && found {
		var cached []pricing.PriceObservation
		if jerr := json.Unmarshal([]byte(raw), &cached); jerr == nil {
			return cached, nil
		}
	}

	history, err := s.observations.FindComparable(ctx, pricing.HistoryQuery{
		RouteID:           obs.RouteID,
		DepartureMonth:    obs.DepartureDate.Month(),
		TripDurationDays:  obs.TripDurationDays,
		DurationTolerance: durationTolerance,
		Since:             s.now().AddDate(0, 0, -s.cfg.HistoryWindowDays),
		Limit:             s.cfg.HistoryLimit,
	})
	if err != nil {
		return nil, err
	}

	if encoded, jerr := json.Marshal(history); jerr == nil {
		if cerr := s.cache.Set(ctx, key, string(encoded), s.cfg.HistoryCacheTTL); cerr != nil {
			s.logger.Warn("history cache write failed", zap.Error(cerr))
		}
	}
	return history, nil
}

// seasonalFactor encodes demand seasonality by departure month
func seasonalFactor(m time.Month) float64 {
	switch m {
	case time.June, time.July, time.August:
		return 1.3
	case time.December:
		return 1.4
	case time.February, time.November:
		return 0.8
	default:
		return 1.0
	}
}

// recentTrend is the relative change between the oldest and newest samples
// of the last seven days. Positive means prices have been rising recently.
func recentTrend(history []pricing.PriceObservation, excludeID uuid.UUID, now time.Time) float64 {
	cutoff := now.AddDate(0, 0, -7)
	var oldest, newest *pricing.PriceObservation
	for i := range history {
		h := &history[i]
		if h.ID == excludeID || h.CreatedAt.Before(cutoff) {
			continue
		}
		if oldest == nil || h.CreatedAt.Before(oldest.CreatedAt) {
			oldest = h
		}
		if newest == nil || h.CreatedAt.After(newest.CreatedAt) {
			newest = h
		}
	}
	if oldest == nil || newest == nil || oldest == newest {
		return 0
	}
	first, _ := oldest.Price.Float64()
	last, _ := newest.Price.Float64()
	if first <= 0 {
		return 0
	}
	return (last - first) / first
}
