package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anomalyapp "github.com/globegenius/backend/internal/application/anomaly"
	pricingapp "github.com/globegenius/backend/internal/application/pricing"
	"github.com/globegenius/backend/internal/application/quota"
	scanapp "github.com/globegenius/backend/internal/application/scan"
	"github.com/globegenius/backend/internal/domain/route"
	"github.com/globegenius/backend/internal/infrastructure/alerting"
	"github.com/globegenius/backend/internal/infrastructure/cache"
	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/globegenius/backend/internal/infrastructure/event"
	"github.com/globegenius/backend/internal/infrastructure/flightsearch"
	"github.com/globegenius/backend/internal/infrastructure/logger"
	"github.com/globegenius/backend/internal/infrastructure/persistence"
	"github.com/globegenius/backend/internal/infrastructure/scheduler"
	"github.com/globegenius/backend/internal/infrastructure/scoring"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting GlobeGenius core",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize Redis; cache, event publishing and alert dispatch share one client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	pingCancel()
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}()
	log.Info("Redis connected successfully")

	cacheStore := cache.NewRedisStoreWithClient(redisClient, "")

	// Initialize repositories
	routeRepo := persistence.NewGormRouteRepository(db.DB)
	observationRepo := persistence.NewGormObservationRepository(db.DB)
	anomalyRepo := persistence.NewGormAnomalyRepository(db.DB)
	callLogRepo := persistence.NewGormApiCallLogRepository(db.DB)

	// Initialize event bus and its subscribers
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.NewRedisAnomalyPublisher(redisClient, log))

	// Initialize external adapters
	provider := flightsearch.NewFlightLabsClient(cfg.Provider)
	scorer := scoring.NewRemoteScorer(cfg.ML)
	dispatcher := alerting.NewRedisDispatcher(redisClient, db.DB, log)

	// Initialize application services
	guard := quota.NewGuard(callLogRepo, cacheStore, cfg.APILimits, log)
	detector := anomalyapp.NewDetectorService(observationRepo, anomalyRepo, scorer, bus, cacheStore, cfg.Detection, log)
	scanService := pricingapp.NewScanService(provider, observationRepo, guard, detector, cfg.Scanning, log)
	scanScheduler := scanapp.NewSchedulerService(routeRepo, guard, cacheStore, cfg.Scanning, cfg.APILimits, log)

	// Initialize job scheduler and orchestrator
	jobScheduler := scheduler.NewScheduler(cfg.Scheduler, log)
	bus.Subscribe(scheduler.NewAnomalyAlertHandler(jobScheduler, dispatcher, cfg.Scheduler.RetryAttempts, log))
	orchestrator := scheduler.NewOrchestrator(
		jobScheduler,
		scanScheduler,
		scanService,
		guard,
		dispatcher,
		observationRepo,
		callLogRepo,
		anomalyRepo,
		db,
		cfg.Scheduler,
		cfg.Retention,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ensure the configured route catalogue exists before the first heartbeat
	if len(cfg.Scanning.RouteCatalogue) > 0 {
		seeds := make([]scanapp.RouteSeed, 0, len(cfg.Scanning.RouteCatalogue))
		for _, entry := range cfg.Scanning.RouteCatalogue {
			seeds = append(seeds, scanapp.RouteSeed{
				Origin:      entry.Origin,
				Destination: entry.Destination,
				Tier:        route.Tier(entry.Tier),
			})
		}
		if err := scanScheduler.SeedRoutes(ctx, seeds); err != nil {
			log.Fatal("Failed to seed route catalogue", zap.Error(err))
		}
		log.Info("Route catalogue seeded", zap.Int("routes", len(seeds)))
	}

	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	if err := jobScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start job scheduler", zap.Error(err))
	}
	if err := orchestrator.Start(ctx); err != nil {
		log.Fatal("Failed to start orchestrator", zap.Error(err))
	}
	// Expose Prometheus metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.App.MetricsAddr, Handler: metricsMux}
	go func() {
		log.Info("Metrics endpoint listening", zap.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server error", zap.Error(err))
		}
	}()

	log.Info("Scanning pipeline running")

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server shutdown error", zap.Error(err))
	}
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		log.Error("Orchestrator shutdown error", zap.Error(err))
	}
	if err := jobScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Job scheduler shutdown error", zap.Error(err))
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus shutdown error", zap.Error(err))
	}

	log.Info("Shutdown complete")
}
