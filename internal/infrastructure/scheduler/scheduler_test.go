package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		ScanWorkers:        2,
		AlertWorkers:       1,
		MaintenanceWorkers: 1,
		QueueSize:          10,
		RetryAttempts:      3,
		RetryBackoffBase:   time.Millisecond,
		JobTimeout:         time.Second,
	}
}

func startScheduler(t *testing.T, cfg config.SchedulerConfig) *Scheduler {
	t.Helper()
	s := NewScheduler(cfg, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestScheduler_ProcessesJob(t *testing.T) {
	s := startScheduler(t, testSchedulerConfig())

	done := make(chan struct{})
	job := NewJob("test_job", CategoryScan, 0, func(ctx context.Context) error {
		close(done)
		return nil
	})
	require.NoError(t, s.Submit(job))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never executed")
	}
}

func TestScheduler_RetriesUntilBudgetExhausted(t *testing.T) {
	s := startScheduler(t, testSchedulerConfig())

	var attempts atomic.Int32
	job := NewJob("flaky_job", CategoryScan, 2, func(ctx context.Context) error {
		attempts.Add(1)
		return assert.AnError
	})
	require.NoError(t, s.Submit(job))

	require.Eventually(t, func() bool {
		return len(s.FailedJobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(3), attempts.Load())
	failed := s.FailedJobs()[0]
	assert.Equal(t, JobStatusFailed, failed.Status)
	assert.Equal(t, 2, failed.RetryCount)
}

func TestScheduler_RecoversAfterRetry(t *testing.T) {
	s := startScheduler(t, testSchedulerConfig())

	var attempts atomic.Int32
	done := make(chan struct{})
	job := NewJob("second_try_job", CategoryAlert, 3, func(ctx context.Context) error {
		if attempts.Add(1) == 1 {
			return assert.AnError
		}
		close(done)
		return nil
	})
	require.NoError(t, s.Submit(job))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded after retry")
	}
	assert.Empty(t, s.FailedJobs())
}

func TestScheduler_SubmitWhenStopped(t *testing.T) {
	s := NewScheduler(testSchedulerConfig(), zap.NewNop())

	job := NewJob("test_job", CategoryScan, 0, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, s.Submit(job), ErrSchedulerNotRunning)
}

func TestScheduler_SubmitWhenQueueFull(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.ScanWorkers = 0 // nothing drains the scan queue
	cfg.QueueSize = 1
	s := startScheduler(t, cfg)

	first := NewJob("filler", CategoryScan, 0, func(ctx context.Context) error { return nil })
	require.NoError(t, s.Submit(first))

	second := NewJob("overflow", CategoryScan, 0, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, s.Submit(second), ErrJobQueueFull)
}

func TestScheduler_SubmitDuringStop(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.QueueSize = 1000
	s := NewScheduler(cfg, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))

	// Hammer Submit while Stop closes the queues. A send on a closed
	// queue would panic and fail the test.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			job := NewJob("racer", CategoryScan, 0, func(ctx context.Context) error { return nil })
			if err := s.Submit(job); err != nil {
				return
			}
		}
	}()

	time.Sleep(time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	<-done

	job := NewJob("late", CategoryScan, 0, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, s.Submit(job), ErrSchedulerNotRunning)
}

func TestScheduler_JobTimeout(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.JobTimeout = 20 * time.Millisecond
	s := startScheduler(t, cfg)

	job := NewJob("slow_job", CategoryMaintenance, 0, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, s.Submit(job))

	require.Eventually(t, func() bool {
		return len(s.FailedJobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, s.FailedJobs()[0].Error, "context deadline exceeded")
}
