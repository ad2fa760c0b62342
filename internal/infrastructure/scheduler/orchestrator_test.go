package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/globegenius/backend/internal/application/alert"
	"github.com/globegenius/backend/internal/domain/anomaly"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockDispatcher is a mock implementation of alert.Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) SendAnomalyAlerts(ctx context.Context, anomalyID uuid.UUID) error {
	args := m.Called(ctx, anomalyID)
	return args.Error(0)
}

func (m *MockDispatcher) DigestRecipients(ctx context.Context, kind alert.DigestKind) ([]uuid.UUID, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockDispatcher) SendDigest(ctx context.Context, userID uuid.UUID, kind alert.DigestKind) error {
	args := m.Called(ctx, userID, kind)
	return args.Error(0)
}

var _ alert.Dispatcher = (*MockDispatcher)(nil)

func TestOrchestrator_ShouldRunDaily(t *testing.T) {
	o := &Orchestrator{lastRunDay: make(map[string]string)}

	day1 := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	assert.False(t, o.shouldRunDaily("reallocation", day1.Add(-time.Hour), 3), "wrong hour must not fire")
	assert.True(t, o.shouldRunDaily("reallocation", day1, 3))
	assert.False(t, o.shouldRunDaily("reallocation", day1.Add(30*time.Minute), 3), "same day must not fire twice")

	// Independent triggers do not share the dedup key
	assert.True(t, o.shouldRunDaily("cleanup", day1.Add(time.Hour), 4))

	// Next day fires again
	assert.True(t, o.shouldRunDaily("reallocation", day1.AddDate(0, 0, 1), 3))
}

func TestOrchestrator_ShouldRunWeekly(t *testing.T) {
	o := &Orchestrator{lastRunDay: make(map[string]string)}

	monday := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())

	assert.False(t, o.shouldRunWeekly("weekly_digest", monday.AddDate(0, 0, 1), time.Monday, 9), "wrong weekday must not fire")
	assert.False(t, o.shouldRunWeekly("weekly_digest", monday.Add(-time.Hour), time.Monday, 9), "wrong hour must not fire")
	assert.True(t, o.shouldRunWeekly("weekly_digest", monday, time.Monday, 9))
	assert.False(t, o.shouldRunWeekly("weekly_digest", monday.Add(30*time.Minute), time.Monday, 9), "same Monday must not fire twice")

	// The following Monday fires again
	assert.True(t, o.shouldRunWeekly("weekly_digest", monday.AddDate(0, 0, 7), time.Monday, 9))
}

func TestOrchestrator_EnqueueDigests(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.DigestSpreadDuration = time.Millisecond
	s := startScheduler(t, cfg)

	dispatcher := new(MockDispatcher)
	o := &Orchestrator{
		sched:      s,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     zap.NewNop(),
		lastRunDay: make(map[string]string),
	}

	users := []uuid.UUID{uuid.New(), uuid.New()}
	done := make(chan uuid.UUID, len(users))
	dispatcher.On("DigestRecipients", mock.Anything, alert.DigestWeekly).
		Return(users, nil).Once()
	dispatcher.On("SendDigest", mock.Anything, mock.AnythingOfType("uuid.UUID"), alert.DigestWeekly).
		Run(func(args mock.Arguments) { done <- args.Get(1).(uuid.UUID) }).
		Return(nil).Twice()

	o.enqueueDigests(context.Background(), alert.DigestWeekly)

	delivered := make(map[uuid.UUID]bool)
	for range users {
		select {
		case id := <-done:
			delivered[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("digest job never ran")
		}
	}
	assert.Len(t, delivered, len(users))
	dispatcher.AssertExpectations(t)
}

func TestAnomalyAlertHandler_Handle(t *testing.T) {
	cfg := testSchedulerConfig()
	s := startScheduler(t, cfg)

	dispatcher := new(MockDispatcher)
	handler := NewAnomalyAlertHandler(s, dispatcher, cfg.RetryAttempts, zap.NewNop())

	assert.Equal(t, []string{anomaly.EventTypeAnomalyDetected}, handler.EventTypes())

	a := anomaly.NewAnomaly(
		uuid.New(), uuid.New(),
		decimal.NewFromInt(300), decimal.NewFromInt(120),
		60, 0.9, 0.85, -0.7, -2.9, "{}", 48*time.Hour,
	)
	event := anomaly.NewAnomalyDetectedEvent(a)

	done := make(chan struct{})
	dispatcher.On("SendAnomalyAlerts", mock.Anything, a.ID).
		Run(func(mock.Arguments) { close(done) }).
		Return(nil).Once()

	require.NoError(t, handler.Handle(context.Background(), event))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("alert fanout job never ran")
	}
	dispatcher.AssertExpectations(t)
}

func TestAnomalyAlertHandler_IgnoresOtherEvents(t *testing.T) {
	s := startScheduler(t, testSchedulerConfig())
	dispatcher := new(MockDispatcher)
	handler := NewAnomalyAlertHandler(s, dispatcher, 0, zap.NewNop())

	other := shared.NewBaseDomainEvent("some.other.event", "Other", uuid.New())
	require.NoError(t, handler.Handle(context.Background(), &other))
	dispatcher.AssertNotCalled(t, "SendAnomalyAlerts")
}
