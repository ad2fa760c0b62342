package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/globegenius/backend/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// failedJobHistory bounds the list kept for inspection
const failedJobHistory = 50

// Scheduler runs background jobs on per-category worker pools. Each
// category owns its queue and workers so one slow category cannot block the
// others. Failed jobs retry with exponential backoff up to their retry
// budget; terminally failed jobs are kept in a bounded list for inspection.
type Scheduler struct {
	cfg    config.SchedulerConfig
	logger *zap.Logger

	queues map[JobCategory]chan *Job

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	failedMu   sync.Mutex
	failedJobs []*Job
}

// NewScheduler creates a scheduler with one queue per category
func NewScheduler(cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	queues := make(map[JobCategory]chan *Job, len(AllCategories()))
	for _, cat := range AllCategories() {
		queues[cat] = make(chan *Job, cfg.QueueSize)
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		queues: queues,
	}
}

// workerCount returns the pool size for a category
func (s *Scheduler) workerCount(cat JobCategory) int {
	switch cat {
	case CategoryScan:
		return s.cfg.ScanWorkers
	case CategoryAlert:
		return s.cfg.AlertWorkers
	default:
		return s.cfg.MaintenanceWorkers
	}
}

// Start starts the worker pools
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, cat := range AllCategories() {
		for i := 0; i < s.workerCount(cat); i++ {
			s.wg.Add(1)
			go s.worker(ctx, cat, i)
		}
	}

	s.logger.Info("Job scheduler started",
		zap.Int("scan_workers", s.cfg.ScanWorkers),
		zap.Int("alert_workers", s.cfg.AlertWorkers),
		zap.Int("maintenance_workers", s.cfg.MaintenanceWorkers),
		zap.Duration("job_timeout", s.cfg.JobTimeout),
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	// Closing under the same lock Submit holds across its send keeps a
	// concurrent Submit from writing to a closed queue.
	for _, queue := range s.queues {
		close(queue)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Job scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit enqueues a job on its category queue without blocking
func (s *Scheduler) Submit(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	queue, ok := s.queues[job.Category]
	if !ok {
		queue = s.queues[CategoryMaintenance]
	}
	select {
	case queue <- job:
		metrics.QueueDepth.WithLabelValues(string(job.Category)).Set(float64(len(queue)))
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("name", job.Name),
			zap.String("category", string(job.Category)),
		)
		return nil
	default:
		s.logger.Warn("Job queue full",
			zap.String("name", job.Name),
			zap.String("category", string(job.Category)),
		)
		return ErrJobQueueFull
	}
}

// FailedJobs returns a snapshot of terminally failed jobs, newest last
func (s *Scheduler) FailedJobs() []*Job {
	s.failedMu.Lock()
	defer s.failedMu.Unlock()
	out := make([]*Job, len(s.failedJobs))
	copy(out, s.failedJobs)
	return out
}

// worker processes jobs from one category queue
func (s *Scheduler) worker(ctx context.Context, cat JobCategory, workerID int) {
	defer s.wg.Done()

	queue := s.queues[cat]
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-queue:
			if !ok {
				return
			}
			metrics.QueueDepth.WithLabelValues(string(cat)).Set(float64(len(queue)))
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes one job with timeout and retry handling
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	// A retried job may surface before its backoff elapsed; wait it out
	// rather than re-queueing in a tight loop
	if job.NextRetryAt != nil {
		if wait := time.Until(*job.NextRetryAt); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}

	job.Start()
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	err := job.Run(jobCtx)
	if err != nil {
		job.Fail(err.Error())
		s.logger.Error("Job failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("name", job.Name),
			zap.Error(err),
		)

		if job.ShouldRetry() {
			job.ScheduleRetry(job.BackoffDelay(s.cfg.RetryBackoffBase))
			metrics.JobsProcessed.WithLabelValues(string(job.Category), "retried").Inc()
			if serr := s.Submit(job); serr != nil {
				s.recordFailure(job)
				s.logger.Warn("Failed to re-queue job for retry",
					zap.String("job_id", job.ID.String()),
					zap.Error(serr),
				)
			}
			return
		}
		metrics.JobsProcessed.WithLabelValues(string(job.Category), "failed").Inc()
		s.recordFailure(job)
		return
	}

	job.Complete()
	metrics.JobsProcessed.WithLabelValues(string(job.Category), "success").Inc()
	s.logger.Debug("Job completed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("name", job.Name),
	)
}

func (s *Scheduler) recordFailure(job *Job) {
	s.failedMu.Lock()
	defer s.failedMu.Unlock()
	s.failedJobs = append(s.failedJobs, job)
	if len(s.failedJobs) > failedJobHistory {
		s.failedJobs = s.failedJobs[len(s.failedJobs)-failedJobHistory:]
	}
}
