package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/globegenius/backend/internal/application/alert"
	apppricing "github.com/globegenius/backend/internal/application/pricing"
	"github.com/globegenius/backend/internal/application/quota"
	"github.com/globegenius/backend/internal/application/scan"
	anomalydomain "github.com/globegenius/backend/internal/domain/anomaly"
	"github.com/globegenius/backend/internal/domain/pricing"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/globegenius/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// cronTickerInterval is how often the orchestrator checks its daily triggers
const cronTickerInterval = 1 * time.Minute

// Orchestrator owns the recurring triggers of the scanning pipeline: the
// scan heartbeat, the daily reallocation, digest and cleanup runs, and the
// periodic dashboard metrics refresh. Each trigger only enqueues jobs; all
// execution happens on the scheduler's worker pools.
type Orchestrator struct {
	sched         *Scheduler
	scanScheduler *scan.SchedulerService
	scanService   *apppricing.ScanService
	guard         *quota.Guard
	dispatcher    alert.Dispatcher
	observations  pricing.ObservationRepository
	callLogs      pricing.ApiCallLogRepository
	anomalies     anomalydomain.Repository
	db            *persistence.Database
	cfg           config.SchedulerConfig
	retention     config.RetentionConfig
	logger        *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// lastRunDay guards each daily trigger against double-firing within
	// its hour (keyed by trigger name, value is the civil date)
	lastRunDay map[string]string
}

// NewOrchestrator wires the recurring triggers
func NewOrchestrator(
	sched *Scheduler,
	scanScheduler *scan.SchedulerService,
	scanService *apppricing.ScanService,
	guard *quota.Guard,
	dispatcher alert.Dispatcher,
	observations pricing.ObservationRepository,
	callLogs pricing.ApiCallLogRepository,
	anomalies anomalydomain.Repository,
	db *persistence.Database,
	cfg config.SchedulerConfig,
	retention config.RetentionConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		sched:         sched,
		scanScheduler: scanScheduler,
		scanService:   scanService,
		guard:         guard,
		dispatcher:    dispatcher,
		observations:  observations,
		callLogs:      callLogs,
		anomalies:     anomalies,
		db:            db,
		cfg:           cfg,
		retention:     retention,
		logger:        logger,
		lastRunDay:    make(map[string]string),
	}
}

// Start launches the heartbeat, cron and metrics refresh loops
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.isRunning {
		o.mu.Unlock()
		return nil
	}
	o.isRunning = true
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(3)
	go o.heartbeatLoop(ctx)
	go o.cronLoop(ctx)
	go o.metricsRefreshLoop(ctx)

	o.logger.Info("Orchestrator started",
		zap.Duration("heartbeat_interval", o.cfg.HeartbeatInterval),
		zap.Int("reallocation_hour", o.cfg.ReallocationHour),
		zap.Int("digest_hour", o.cfg.DigestHour),
		zap.Int("cleanup_hour", o.cfg.CleanupHour),
	)
	return nil
}

// Stop stops the loops; queued jobs drain through the scheduler's own Stop
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.isRunning {
		o.mu.Unlock()
		return nil
	}
	o.isRunning = false
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.logger.Info("Orchestrator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// heartbeatLoop enqueues scan batches on a fixed interval, starting with an
// immediate run
func (o *Orchestrator) heartbeatLoop(ctx context.Context) {
	defer o.wg.Done()

	o.runHeartbeat(ctx)
	ticker := time.NewTicker(o.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runHeartbeat(ctx)
		}
	}
}

// runHeartbeat picks the due batch and enqueues one scan job per route.
// A route's schedule is advanced as soon as its job is accepted so the next
// heartbeat does not pick it again while the job is still queued.
func (o *Orchestrator) runHeartbeat(ctx context.Context) {
	remaining, err := o.guard.Remaining(ctx)
	if err != nil {
		o.logger.Error("heartbeat: quota check failed", zap.Error(err))
		return
	}
	if remaining < o.cfg.HeartbeatQuotaFloor {
		o.logger.Warn("heartbeat: skipping cycle, remaining budget below floor",
			zap.Int("remaining", remaining),
			zap.Int("floor", o.cfg.HeartbeatQuotaFloor))
		return
	}

	batch, err := o.scanScheduler.NextDueRoutes(ctx, o.cfg.HeartbeatBatchSize)
	if err != nil {
		o.logger.Error("heartbeat: due-route query failed", zap.Error(err))
		return
	}
	if len(batch) == 0 {
		return
	}

	callsPerScan := len(pricing.DefaultScanWindows)
	enqueued := 0
	for _, r := range batch {
		r := r
		job := NewJob(
			fmt.Sprintf("scan %s-%s", r.Origin, r.Destination),
			CategoryScan,
			o.cfg.RetryAttempts,
			func(jobCtx context.Context) error {
				_, err := o.scanService.ScanRoute(jobCtx, &r)
				if errors.Is(err, shared.ErrQuotaExceeded) || errors.Is(err, shared.ErrProviderRateLimited) {
					// Deterministic for the rest of this cycle; retrying
					// would only burn more budget
					o.logger.Warn("scan aborted",
						zap.String("origin", r.Origin),
						zap.String("destination", r.Destination),
						zap.Error(err))
					return nil
				}
				return err
			},
		)
		if err := o.sched.Submit(job); err != nil {
			o.logger.Warn("heartbeat: could not enqueue scan",
				zap.String("origin", r.Origin),
				zap.String("destination", r.Destination),
				zap.Error(err))
			continue
		}
		if err := o.scanScheduler.MarkScanned(ctx, r.ID, time.Now(), callsPerScan); err != nil {
			o.logger.Error("heartbeat: failed to advance route schedule",
				zap.String("origin", r.Origin),
				zap.String("destination", r.Destination),
				zap.Error(err))
		}
		enqueued++
	}
	o.logger.Info("heartbeat: scan batch enqueued",
		zap.Int("routes", enqueued),
		zap.Int("remaining_budget", remaining))
}

// cronLoop fires the daily triggers at their configured hours
func (o *Orchestrator) cronLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(cronTickerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if o.shouldRunDaily("reallocation", now, o.cfg.ReallocationHour) {
				o.enqueueReallocation()
			}
			if o.shouldRunDaily("digest", now, o.cfg.DigestHour) {
				o.enqueueDigests(ctx, alert.DigestDaily)
			}
			if o.shouldRunWeekly("weekly_digest", now, time.Weekday(o.cfg.WeeklyDigestWeekday), o.cfg.WeeklyDigestHour) {
				o.enqueueDigests(ctx, alert.DigestWeekly)
			}
			if o.shouldRunDaily("cleanup", now, o.cfg.CleanupHour) {
				o.enqueueCleanup()
			}
		}
	}
}

// shouldRunDaily reports whether the named trigger is due: the hour matches
// and it has not already fired today
func (o *Orchestrator) shouldRunDaily(name string, now time.Time, hour int) bool {
	if now.Hour() != hour {
		return false
	}
	day := now.Format("2006-01-02")
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastRunDay[name] == day {
		return false
	}
	o.lastRunDay[name] = day
	return true
}

// shouldRunWeekly is shouldRunDaily restricted to one weekday
func (o *Orchestrator) shouldRunWeekly(name string, now time.Time, weekday time.Weekday, hour int) bool {
	if now.Weekday() != weekday {
		return false
	}
	return o.shouldRunDaily(name, now, hour)
}

func (o *Orchestrator) enqueueReallocation() {
	job := NewJob("tier reallocation", CategoryMaintenance, o.cfg.RetryAttempts, func(ctx context.Context) error {
		changes, err := o.scanScheduler.ReallocateTiers(ctx)
		if errors.Is(err, shared.ErrReallocationUnsafe) {
			// Rerunning on the same stats would fail again; surface it and
			// wait for tomorrow's run
			o.logger.Error("tier reallocation skipped as unsafe")
			return nil
		}
		if err != nil {
			return err
		}
		for _, c := range changes {
			o.logger.Info("route tier changed",
				zap.String("route_id", c.RouteID.String()),
				zap.Int("old_tier", int(c.OldTier)),
				zap.Int("new_tier", int(c.NewTier)),
				zap.String("reason", c.Reason))
		}
		return nil
	})
	if err := o.sched.Submit(job); err != nil {
		o.logger.Error("could not enqueue reallocation", zap.Error(err))
	}
}

// enqueueDigests spreads one digest job per recipient over the configured
// window so outbound delivery is not a single burst. The weekly run covers
// a larger audience and gets twice the spread.
func (o *Orchestrator) enqueueDigests(ctx context.Context, kind alert.DigestKind) {
	recipients, err := o.dispatcher.DigestRecipients(ctx, kind)
	if err != nil {
		o.logger.Error("digest: recipient query failed",
			zap.String("kind", string(kind)),
			zap.Error(err))
		return
	}
	spread := o.cfg.DigestSpreadDuration
	if kind == alert.DigestWeekly {
		spread *= 2
	}
	for _, userID := range recipients {
		userID := userID
		delay := time.Duration(rand.Int63n(int64(spread)))
		job := NewJob(string(kind)+" digest", CategoryAlert, o.cfg.RetryAttempts, func(jobCtx context.Context) error {
			select {
			case <-jobCtx.Done():
				return jobCtx.Err()
			case <-time.After(delay):
			}
			return o.dispatcher.SendDigest(jobCtx, userID, kind)
		})
		if err := o.sched.Submit(job); err != nil {
			o.logger.Warn("could not enqueue digest",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
	o.logger.Info("digest jobs enqueued",
		zap.String("kind", string(kind)),
		zap.Int("recipients", len(recipients)))
}

func (o *Orchestrator) enqueueCleanup() {
	job := NewJob("data cleanup", CategoryMaintenance, o.cfg.RetryAttempts, func(ctx context.Context) error {
		now := time.Now()

		removed, err := o.observations.DeleteOlderThan(ctx, now.AddDate(0, 0, -o.retention.ObservationDays))
		if err != nil {
			return fmt.Errorf("purging observations: %w", err)
		}
		o.logger.Info("cleanup: observations purged", zap.Int64("rows", removed))

		removed, err = o.anomalies.DeleteExpiredBefore(ctx, now.AddDate(0, 0, -o.retention.AnomalyGraceDays))
		if err != nil {
			return fmt.Errorf("purging anomalies: %w", err)
		}
		o.logger.Info("cleanup: expired anomalies purged", zap.Int64("rows", removed))

		removed, err = o.callLogs.DeleteOlderThan(ctx, now.AddDate(0, 0, -o.retention.APICallLogDays))
		if err != nil {
			return fmt.Errorf("purging api call logs: %w", err)
		}
		o.logger.Info("cleanup: api call logs purged", zap.Int64("rows", removed))
		return nil
	})
	if err := o.sched.Submit(job); err != nil {
		o.logger.Error("could not enqueue cleanup", zap.Error(err))
	}
}

// metricsRefreshLoop keeps the dashboard materialized view fresh
func (o *Orchestrator) metricsRefreshLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.MetricsRefreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job := NewJob("dashboard metrics refresh", CategoryMaintenance, 0, func(jobCtx context.Context) error {
				return o.db.RefreshDashboardMetrics(jobCtx)
			})
			if err := o.sched.Submit(job); err != nil {
				o.logger.Warn("could not enqueue metrics refresh", zap.Error(err))
			}
		}
	}
}

// AnomalyAlertHandler bridges the event bus to the alert queue: every
// detected anomaly becomes one alert-fanout job.
type AnomalyAlertHandler struct {
	sched      *Scheduler
	dispatcher alert.Dispatcher
	maxRetries int
	logger     *zap.Logger
}

// NewAnomalyAlertHandler creates the fanout handler
func NewAnomalyAlertHandler(sched *Scheduler, dispatcher alert.Dispatcher, maxRetries int, logger *zap.Logger) *AnomalyAlertHandler {
	return &AnomalyAlertHandler{
		sched:      sched,
		dispatcher: dispatcher,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// EventTypes returns the subscribed event types
func (h *AnomalyAlertHandler) EventTypes() []string {
	return []string{anomalydomain.EventTypeAnomalyDetected}
}

// Handle enqueues the alert fanout for a detected anomaly
func (h *AnomalyAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	detected, ok := event.(*anomalydomain.AnomalyDetectedEvent)
	if !ok {
		return nil
	}
	anomalyID := detected.AnomalyID
	job := NewJob("anomaly alert fanout", CategoryAlert, h.maxRetries, func(jobCtx context.Context) error {
		return h.dispatcher.SendAnomalyAlerts(jobCtx, anomalyID)
	})
	if err := h.sched.Submit(job); err != nil {
		h.logger.Error("could not enqueue alert fanout",
			zap.String("anomaly_id", anomalyID.String()),
			zap.Error(err))
		return err
	}
	return nil
}

var _ shared.EventHandler = (*AnomalyAlertHandler)(nil)
