package pricing_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appanomaly "github.com/globegenius/backend/internal/application/anomaly"
	apppricing "github.com/globegenius/backend/internal/application/pricing"
	"github.com/globegenius/backend/internal/application/quota"
	anomalydomain "github.com/globegenius/backend/internal/domain/anomaly"
	"github.com/globegenius/backend/internal/domain/pricing"
	"github.com/globegenius/backend/internal/domain/route"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/globegenius/backend/internal/infrastructure/cache"
	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/globegenius/backend/internal/infrastructure/flightsearch"
	"github.com/globegenius/backend/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type collectingPublisher struct {
	events []shared.DomainEvent
}

func (p *collectingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.events = append(p.events, events...)
	return nil
}

// The scan pipeline end to end: httptest provider, sqlite-backed
// repositories, the real detector with its statistical fallback. A route
// with deeply discounted fares against seeded history must come out the
// other side as stored observations, recorded provider calls and a
// published anomaly.
func TestScanPipeline_EndToEnd(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&route.Route{}, &pricing.PriceObservation{}, &anomalydomain.Anomaly{}, &pricing.ApiCallLog{},
	))

	observations := persistence.NewGormObservationRepository(db)
	anomalies := persistence.NewGormAnomalyRepository(db)
	callLogs := persistence.NewGormApiCallLogRepository(db)

	r, err := route.NewRoute("BCN", "JFK", route.Tier1, 30)
	require.NoError(t, err)
	require.NoError(t, db.Create(r).Error)

	// Seed comparable history well above the fares the provider will return
	ctx := context.Background()
	for _, window := range pricing.DefaultScanWindows {
		departure, ret := window.Dates(time.Now())
		for i := 0; i < 12; i++ {
			obs, oerr := pricing.NewPriceObservation(
				r.ID, decimal.NewFromInt(int64(400+i*5)), "EUR", departure, ret, pricing.SourceFlightLabs)
			require.NoError(t, oerr)
			require.NoError(t, observations.Save(ctx, obs))
		}
	}

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"success": true, "data": [
			{"price": {"amount": 220.0, "currency": "EUR"}, "airline": "LH", "flight_number": "LH100", "booking_class": "economy", "stops": 1, "deep_link": "https://example.com/deal"}
		]}`)
	}))
	defer provider.Close()

	client := flightsearch.NewFlightLabsClient(config.ProviderConfig{
		BaseURL: provider.URL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	})
	guard := quota.NewGuard(callLogs, cache.NewMemoryStore(), config.APILimitsConfig{
		MonthlyLimit:       1000,
		EmergencyThreshold: 0.05,
		LowWaterMark:       10,
		DailyWarning:       10000,
		UsageCacheTTL:      time.Minute,
	}, zap.NewNop())
	publisher := &collectingPublisher{}
	// failingScorer forces the statistical fallback path
	detector := appanomaly.NewDetectorService(
		observations, anomalies, failingScorer{}, publisher,
		cache.NewMemoryStore(), config.DetectionConfig{
			MinDiscountPercentage: 30,
			ConfidenceThreshold:   0.6,
			AlertExpiryHours:      48,
			HistoryWindowDays:     90,
			HistoryLimit:          100,
			HistoryCacheTTL:       time.Hour,
			MinSamplesForScoring:  10,
		}, zap.NewNop())

	svc := apppricing.NewScanService(client, observations, guard, detector, config.ScanningConfig{
		InterWindowDelay: time.Millisecond,
	}, zap.NewNop())

	result, err := svc.ScanRoute(ctx, r)
	require.NoError(t, err)

	windows := len(pricing.DefaultScanWindows)
	assert.Equal(t, windows, result.WindowsScanned)
	assert.Equal(t, windows, result.CallsUsed)
	assert.Equal(t, windows, result.ObservationsStored)

	calls, err := callLogs.CountSince(ctx, pricing.SourceFlightLabs, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(windows), calls)

	var anomalyCount int64
	require.NoError(t, db.Model(&anomalydomain.Anomaly{}).Count(&anomalyCount).Error)
	assert.Equal(t, int64(windows), anomalyCount)
	assert.Len(t, publisher.events, windows)
	assert.Equal(t, anomalydomain.EventTypeAnomalyDetected, publisher.events[0].EventType())
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, anomalydomain.FeatureVector) (anomalydomain.ScoringResult, error) {
	return anomalydomain.ScoringResult{}, shared.ErrScorerUnavailable
}
