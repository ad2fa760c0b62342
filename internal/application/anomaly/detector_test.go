package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/globegenius/backend/internal/domain/anomaly"
	"github.com/globegenius/backend/internal/domain/pricing"
	"github.com/globegenius/backend/internal/domain/route"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/globegenius/backend/internal/infrastructure/cache"
	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockObservationRepository is a mock implementation of pricing.ObservationRepository
type MockObservationRepository struct {
	mock.Mock
}

func (m *MockObservationRepository) Save(ctx context.Context, obs *pricing.PriceObservation) error {
	args := m.Called(ctx, obs)
	return args.Error(0)
}

func (m *MockObservationRepository) FindComparable(ctx context.Context, q pricing.HistoryQuery) ([]pricing.PriceObservation, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pricing.PriceObservation), args.Error(1)
}

func (m *MockObservationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockAnomalyRepository is a mock implementation of anomaly.Repository
type MockAnomalyRepository struct {
	mock.Mock
}

func (m *MockAnomalyRepository) FindByID(ctx context.Context, id uuid.UUID) (*anomaly.Anomaly, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anomaly.Anomaly), args.Error(1)
}

func (m *MockAnomalyRepository) Save(ctx context.Context, a *anomaly.Anomaly) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAnomalyRepository) CountByRouteSince(ctx context.Context, routeID uuid.UUID, since time.Time) (int64, error) {
	args := m.Called(ctx, routeID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAnomalyRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockScorer is a mock implementation of Scorer
type MockScorer struct {
	mock.Mock
}

func (m *MockScorer) Score(ctx context.Context, fv anomaly.FeatureVector) (anomaly.ScoringResult, error) {
	args := m.Called(ctx, fv)
	return args.Get(0).(anomaly.ScoringResult), args.Error(1)
}

// MockPublisher is a mock implementation of shared.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func testDetectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		MinDiscountPercentage: 30,
		ConfidenceThreshold:   0.6,
		AlertExpiryHours:      48,
		HistoryWindowDays:     90,
		HistoryLimit:          100,
		HistoryCacheTTL:       4 * time.Hour,
		MinSamplesForScoring:  10,
	}
}

type detectorFixture struct {
	observations *MockObservationRepository
	anomalies    *MockAnomalyRepository
	scorer       *MockScorer
	publisher    *MockPublisher
	svc          *DetectorService
}

func newDetectorFixture() *detectorFixture {
	f := &detectorFixture{
		observations: new(MockObservationRepository),
		anomalies:    new(MockAnomalyRepository),
		scorer:       new(MockScorer),
		publisher:    new(MockPublisher),
	}
	f.svc = NewDetectorService(
		f.observations, f.anomalies, f.scorer, f.publisher,
		cache.NewMemoryStore(), testDetectionConfig(), zap.NewNop(),
	)
	return f
}

func testRoute(t *testing.T) *route.Route {
	r, err := route.NewRoute("BCN", "JFK", route.Tier1, 30)
	require.NoError(t, err)
	return r
}

func makeObservation(t *testing.T, routeID uuid.UUID, price float64, departure time.Time) *pricing.PriceObservation {
	obs, err := pricing.NewPriceObservation(
		routeID,
		decimal.NewFromFloat(price),
		"EUR",
		departure,
		departure.AddDate(0, 0, 7),
		pricing.SourceFlightLabs,
	)
	require.NoError(t, err)
	return obs
}

func makeHistory(t *testing.T, routeID uuid.UUID, departure time.Time, prices ...float64) []pricing.PriceObservation {
	history := make([]pricing.PriceObservation, 0, len(prices))
	for _, p := range prices {
		obs := makeObservation(t, routeID, p, departure)
		obs.CreatedAt = time.Now().AddDate(0, 0, -14)
		history = append(history, *obs)
	}
	return history
}

func TestDetectorService_Evaluate_SimpleRule(t *testing.T) {
	t.Run("thin history with deep discount persists an anomaly without scoring", func(t *testing.T) {
		f := newDetectorFixture()
		ctx := context.Background()
		r := testRoute(t)
		departure := time.Now().AddDate(0, 2, 0)

		// Nine comparable fares at 100, candidate at 20
		history := makeHistory(t, r.ID, departure, 100, 100, 100, 100, 100, 100, 100, 100, 100)
		candidate := makeObservation(t, r.ID, 20, departure)

		f.observations.On("FindComparable", ctx, mock.AnythingOfType("pricing.HistoryQuery")).
			Return(history, nil).Once()
		f.anomalies.On("Save", ctx, mock.AnythingOfType("*anomaly.Anomaly")).Return(nil).Once()
		f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Once()

		require.NoError(t, f.svc.Evaluate(ctx, r, candidate))

		saved := f.anomalies.Calls[0].Arguments.Get(1).(*anomaly.Anomaly)
		assert.True(t, saved.NormalPrice.Equal(decimal.NewFromInt(100)))
		assert.InDelta(t, 80.0, saved.DiscountPercentage, 0.001)
		assert.InDelta(t, 0.6, saved.MLConfidence, 0.001)
		assert.InDelta(t, 0.7, saved.AnomalyScore, 0.001)

		f.scorer.AssertNotCalled(t, "Score")
		f.anomalies.AssertExpectations(t)
		f.publisher.AssertExpectations(t)
	})

	t.Run("thin history below the discount threshold stores nothing", func(t *testing.T) {
		f := newDetectorFixture()
		ctx := context.Background()
		r := testRoute(t)
		departure := time.Now().AddDate(0, 2, 0)

		history := makeHistory(t, r.ID, departure, 100, 100, 100, 100, 100)
		candidate := makeObservation(t, r.ID, 80, departure)

		f.observations.On("FindComparable", ctx, mock.AnythingOfType("pricing.HistoryQuery")).
			Return(history, nil).Once()

		require.NoError(t, f.svc.Evaluate(ctx, r, candidate))

		f.scorer.AssertNotCalled(t, "Score")
		f.anomalies.AssertNotCalled(t, "Save")
	})

	t.Run("no history at all stores nothing", func(t *testing.T) {
		f := newDetectorFixture()
		ctx := context.Background()
		r := testRoute(t)
		candidate := makeObservation(t, r.ID, 50, time.Now().AddDate(0, 2, 0))

		f.observations.On("FindComparable", ctx, mock.AnythingOfType("pricing.HistoryQuery")).
			Return([]pricing.PriceObservation{}, nil).Once()

		require.NoError(t, f.svc.Evaluate(ctx, r, candidate))
		f.anomalies.AssertNotCalled(t, "Save")
	})
}

// scoredHistory returns twenty fares spread between 180 and 420 so the
// candidate at 100 sits several standard deviations below the mean
func scoredHistory(t *testing.T, routeID uuid.UUID, departure time.Time) []pricing.PriceObservation {
	prices := []float64{
		180, 200, 220, 240, 260, 280, 290, 295, 300, 305,
		310, 315, 320, 330, 340, 360, 380, 400, 410, 420,
	}
	return makeHistory(t, routeID, departure, prices...)
}

func TestDetectorService_Evaluate_Scored(t *testing.T) {
	t.Run("high scorer probability with passing rules persists an anomaly", func(t *testing.T) {
		f := newDetectorFixture()
		ctx := context.Background()
		r := testRoute(t)
		departure := time.Now().AddDate(0, 2, 0)

		f.observations.On("FindComparable", ctx, mock.AnythingOfType("pricing.HistoryQuery")).
			Return(scoredHistory(t, r.ID, departure), nil).Once()
		f.scorer.On("Score", ctx, mock.AnythingOfType("anomaly.FeatureVector")).
			Return(anomaly.ScoringResult{
				IsolationScore:     -0.7,
				PredictedPrice:     305,
				AnomalyProbability: 0.92,
				ConfidenceInterval: [2]float64{250, 360},
			}, nil).Once()
		f.anomalies.On("Save", ctx, mock.AnythingOfType("*anomaly.Anomaly")).Return(nil).Once()
		f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Once()

		candidate := makeObservation(t, r.ID, 100, departure)
		require.NoError(t, f.svc.Evaluate(ctx, r, candidate))

		saved := f.anomalies.Calls[0].Arguments.Get(1).(*anomaly.Anomaly)
		assert.InDelta(t, -0.7, saved.IsolationScore, 0.001)
		assert.Negative(t, saved.ZScore)
		assert.NotEmpty(t, saved.Features)
		f.anomalies.AssertExpectations(t)
	})

	t.Run("scorer predicted price drives the normal price and discount", func(t *testing.T) {
		f := newDetectorFixture()
		ctx := context.Background()
		r := testRoute(t)
		departure := time.Now().AddDate(0, 2, 0)

		f.observations.On("FindComparable", ctx, mock.AnythingOfType("pricing.HistoryQuery")).
			Return(scoredHistory(t, r.ID, departure), nil).Once()
		f.scorer.On("Score", ctx, mock.AnythingOfType("anomaly.FeatureVector")).
			Return(anomaly.ScoringResult{
				IsolationScore:     -0.6,
				PredictedPrice:     500,
				AnomalyProbability: 0.92,
				ConfidenceInterval: [2]float64{400, 600},
			}, nil).Once()
		f.anomalies.On("Save", ctx, mock.AnythingOfType("*anomaly.Anomaly")).Return(nil).Once()
		f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Once()

		candidate := makeObservation(t, r.ID, 100, departure)
		require.NoError(t, f.svc.Evaluate(ctx, r, candidate))

		// Normal price comes from the model, not the historical median
		saved := f.anomalies.Calls[0].Arguments.Get(1).(*anomaly.Anomaly)
		assert.True(t, saved.NormalPrice.Equal(decimal.NewFromInt(500)), "normal price %s", saved.NormalPrice)
		assert.InDelta(t, 80.0, saved.DiscountPercentage, 0.001)
		f.anomalies.AssertExpectations(t)
	})

	t.Run("low scorer probability stores nothing", func(t *testing.T) {
		f := newDetectorFixture()
		ctx := context.Background()
		r := testRoute(t)
		departure := time.Now().AddDate(0, 2, 0)

		f.observations.On("FindComparable", ctx, mock.AnythingOfType("pricing.HistoryQuery")).
			Return(scoredHistory(t, r.ID, departure), nil).Once()
		f.scorer.On("Score", ctx, mock.AnythingOfType("anomaly.FeatureVector")).
			Return(anomaly.ScoringResult{AnomalyProbability: 0.1, PredictedPrice: 305}, nil).Once()

		candidate := makeObservation(t, r.ID, 200, departure)
		require.NoError(t, f.svc.Evaluate(ctx, r, candidate))
		f.anomalies.AssertNotCalled(t, "Save")
	})

	t.Run("scorer outage falls back to the statistical scorer", func(t *testing.T) {
		f := newDetectorFixture()
		ctx := context.Background()
		r := testRoute(t)
		departure := time.Now().AddDate(0, 2, 0)

		f.observations.On("FindComparable", ctx, mock.AnythingOfType("pricing.HistoryQuery")).
			Return(scoredHistory(t, r.ID, departure), nil).Once()
		f.scorer.On("Score", ctx, mock.AnythingOfType("anomaly.FeatureVector")).
			Return(anomaly.ScoringResult{}, shared.ErrScorerUnavailable).Once()
		f.anomalies.On("Save", ctx, mock.AnythingOfType("*anomaly.Anomaly")).Return(nil).Once()
		f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Once()

		// Deep enough below the mean for the fallback to call it anomalous
		candidate := makeObservation(t, r.ID, 100, departure)
		require.NoError(t, f.svc.Evaluate(ctx, r, candidate))
		f.anomalies.AssertExpectations(t)
	})

	t.Run("price below half the historical minimum is rejected", func(t *testing.T) {
		f := newDetectorFixture()
		ctx := context.Background()
		r := testRoute(t)
		departure := time.Now().AddDate(0, 2, 0)

		f.observations.On("FindComparable", ctx, mock.AnythingOfType("pricing.HistoryQuery")).
			Return(scoredHistory(t, r.ID, departure), nil).Once()
		f.scorer.On("Score", ctx, mock.AnythingOfType("anomaly.FeatureVector")).
			Return(anomaly.ScoringResult{AnomalyProbability: 0.99, PredictedPrice: 305}, nil).Once()

		// 50 is under 0.5 * 180: too good to be true
		candidate := makeObservation(t, r.ID, 50, departure)
		require.NoError(t, f.svc.Evaluate(ctx, r, candidate))
		f.anomalies.AssertNotCalled(t, "Save")
	})
}

func TestRecentTrend(t *testing.T) {
	now := time.Now()
	routeID := uuid.New()
	departure := now.AddDate(0, 2, 0)

	at := func(t *testing.T, price float64, age time.Duration) pricing.PriceObservation {
		obs := makeObservation(t, routeID, price, departure)
		obs.CreatedAt = now.Add(-age)
		return *obs
	}

	t.Run("rising prices yield the first-to-last relative change", func(t *testing.T) {
		history := []pricing.PriceObservation{
			at(t, 100, 6*24*time.Hour),
			at(t, 150, 3*24*time.Hour),
			at(t, 200, 24*time.Hour),
		}
		assert.InDelta(t, 1.0, recentTrend(history, uuid.New(), now), 0.001)
	})

	t.Run("falling prices yield a negative trend", func(t *testing.T) {
		history := []pricing.PriceObservation{
			at(t, 200, 5*24*time.Hour),
			at(t, 120, 24*time.Hour),
		}
		assert.InDelta(t, -0.4, recentTrend(history, uuid.New(), now), 0.001)
	})

	t.Run("fewer than two samples in the window yields zero", func(t *testing.T) {
		history := []pricing.PriceObservation{
			at(t, 100, 24*time.Hour),
			at(t, 500, 10*24*time.Hour),
		}
		assert.Zero(t, recentTrend(history, uuid.New(), now))
	})

	t.Run("the candidate observation is excluded", func(t *testing.T) {
		candidate := at(t, 999, time.Hour)
		history := []pricing.PriceObservation{
			at(t, 100, 6*24*time.Hour),
			at(t, 150, 2*24*time.Hour),
			candidate,
		}
		assert.InDelta(t, 0.5, recentTrend(history, candidate.ID, now), 0.001)
	})
}

func TestDetectorService_Evaluate_HistoryCache(t *testing.T) {
	f := newDetectorFixture()
	ctx := context.Background()
	r := testRoute(t)
	departure := time.Now().AddDate(0, 2, 0)

	history := makeHistory(t, r.ID, departure, 100, 100, 100)
	f.observations.On("FindComparable", ctx, mock.AnythingOfType("pricing.HistoryQuery")).
		Return(history, nil).Once()

	// Two candidates with the same route, month and duration share one
	// history fetch
	first := makeObservation(t, r.ID, 90, departure)
	second := makeObservation(t, r.ID, 95, departure)

	require.NoError(t, f.svc.Evaluate(ctx, r, first))
	require.NoError(t, f.svc.Evaluate(ctx, r, second))

	f.observations.AssertExpectations(t)
}
