package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/globegenius/backend/internal/application/quota"
	"github.com/globegenius/backend/internal/domain/pricing"
	"github.com/globegenius/backend/internal/domain/route"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/globegenius/backend/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// AnomalyEvaluator receives every stored observation for detection. A
// detection failure never fails the scan that produced the observation.
type AnomalyEvaluator interface {
	Evaluate(ctx context.Context, r *route.Route, obs *pricing.PriceObservation) error
}

// ScanResult summarizes one route scan
type ScanResult struct {
	WindowsScanned     int
	CallsUsed          int
	ObservationsStored int
}

// ScanService performs the provider calls for one route scan: one call per
// date window, pacing between calls, quota accounting for every call made,
// and handoff of each stored observation to the anomaly evaluator.
type ScanService struct {
	provider     SearchProvider
	observations pricing.ObservationRepository
	guard        *quota.Guard
	evaluator    AnomalyEvaluator
	cfg          config.ScanningConfig
	logger       *zap.Logger

	now func() time.Time
}

// NewScanService creates a price fetcher
func NewScanService(
	provider SearchProvider,
	observations pricing.ObservationRepository,
	guard *quota.Guard,
	evaluator AnomalyEvaluator,
	cfg config.ScanningConfig,
	logger *zap.Logger,
) *ScanService {
	return &ScanService{
		provider:     provider,
		observations: observations,
		guard:        guard,
		evaluator:    evaluator,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// ScanRoute probes every date window for the route. Windows degrade
// independently: a provider failure on one window logs and moves on. Two
// conditions abort the remaining windows instead: an exhausted monthly
// budget and a provider rate-limit rejection. The partial result is
// returned alongside the aborting error.
func (s *ScanService) ScanRoute(ctx context.Context, r *route.Route) (ScanResult, error) {
	var result ScanResult
	log := s.logger.With(
		zap.String("origin", r.Origin),
		zap.String("destination", r.Destination))

	for i, window := range pricing.DefaultScanWindows {
		if i > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(s.cfg.InterWindowDelay):
			}
		}

		if err := s.guard.AssertSpendable(ctx, 1); err != nil {
			metrics.RouteScans.WithLabelValues("quota_exhausted").Inc()
			return result, err
		}

		departure, ret := window.Dates(s.now())
		fares, err := s.searchWindow(ctx, r, departure, ret)
		result.CallsUsed++
		if err != nil {
			if errors.Is(err, shared.ErrProviderRateLimited) {
				log.Warn("provider rate limited, aborting remaining windows",
					zap.Int("windows_scanned", result.WindowsScanned))
				metrics.RouteScans.WithLabelValues("rate_limited").Inc()
				return result, err
			}
			log.Warn("window search failed",
				zap.Int("months_ahead", window.MonthsAhead),
				zap.Int("duration_days", window.DurationDays),
				zap.Error(err))
			continue
		}
		result.WindowsScanned++

		fare, ok := cheapest(fares)
		if !ok {
			continue
		}
		obs, err := pricing.NewPriceObservation(r.ID, fare.Price, fare.Currency, departure, ret, pricing.SourceFlightLabs)
		if err != nil {
			log.Warn("provider returned an unusable fare", zap.Error(err))
			continue
		}
		obs.Airline = fare.Airline
		obs.FlightNumber = fare.FlightNumber
		if fare.BookingClass != "" {
			obs.BookingClass = fare.BookingClass
		}
		obs.StopCount = fare.StopCount
		obs.DeepLink = fare.DeepLink
		obs.RawData = string(fare.Raw)

		if err := s.observations.Save(ctx, obs); err != nil {
			log.Error("failed to store observation", zap.Error(err))
			continue
		}
		result.ObservationsStored++
		metrics.ObservationsStored.Inc()

		if err := s.evaluator.Evaluate(ctx, r, obs); err != nil {
			log.Warn("anomaly evaluation failed", zap.Error(err))
		}
	}
	metrics.RouteScans.WithLabelValues("completed").Inc()
	return result, nil
}

// searchWindow makes one provider call and records it against the quota
// whether it succeeded or not
func (s *ScanService) searchWindow(ctx context.Context, r *route.Route, departure, ret time.Time) ([]Fare, error) {
	start := time.Now()
	fares, err := s.provider.Search(ctx, FlightQuery{
		Origin:      r.Origin,
		Destination: r.Destination,
		Departure:   departure,
		Return:      ret,
	})
	metrics.ProviderCallDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	errMsg := ""
	if err != nil {
		outcome = "error"
		if errors.Is(err, shared.ErrProviderRateLimited) {
			outcome = "rate_limited"
		}
		errMsg = err.Error()
	}
	metrics.ProviderCalls.WithLabelValues(outcome).Inc()

	if rerr := s.guard.RecordCall(ctx, s.provider.Endpoint(), err == nil, errMsg); rerr != nil {
		s.logger.Error("failed to record provider call", zap.Error(rerr))
	}
	return fares, err
}

// cheapest picks the lowest-priced fare from a window's results
func cheapest(fares []Fare) (Fare, bool) {
	if len(fares) == 0 {
		return Fare{}, false
	}
	best := fares[0]
	for _, f := range fares[1:] {
		if f.Price.LessThan(best.Price) {
			best = f
		}
	}
	return best, true
}
