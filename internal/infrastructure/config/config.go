package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	APILimits APILimitsConfig
	Scanning  ScanningConfig
	Detection DetectionConfig
	ML        MLConfig
	Provider  ProviderConfig
	Scheduler SchedulerConfig
	Retention RetentionConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name        string
	Env         string
	MetricsAddr string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// DSN returns the postgres connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address for the Redis client
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// APILimitsConfig holds the external provider call budget settings
type APILimitsConfig struct {
	MonthlyLimit       int           // hard monthly call cap for the flight-search provider
	BufferPercentage   float64       // reallocation safety margin against the monthly limit
	LowWaterMark       int           // remaining-budget level that triggers warnings
	DailyWarning       int           // same-day usage level that triggers warnings
	EmergencyThreshold float64       // fraction of the monthly limit below which emergency mode engages
	EmergencyBatchCap  int           // max routes per batch in emergency mode
	UsageCacheTTL      time.Duration // how long the monthly usage figure is cached
}

// RouteCatalogueEntry is one route seeded at startup
type RouteCatalogueEntry struct {
	Origin      string `mapstructure:"origin"`
	Destination string `mapstructure:"destination"`
	Tier        int    `mapstructure:"tier"`
}

// ScanningConfig holds route tiering and date-window policy
type ScanningConfig struct {
	Tier1IntervalMinutes int
	Tier2IntervalMinutes int
	Tier3IntervalMinutes int
	Tier1ScansPerDay     int
	Tier2ScansPerDay     int
	Tier3ScansPerDay     int
	Tier1CohortSize      int
	Tier2CohortSize      int
	Tier3CohortSize      int
	InterWindowDelay     time.Duration // pause between provider calls within one route scan
	DueRouteCacheTTL     time.Duration // cache duration for the due-route batch
	RouteCatalogue       []RouteCatalogueEntry
}

// DetectionConfig holds anomaly engine thresholds
type DetectionConfig struct {
	MinDiscountPercentage float64
	ConfidenceThreshold   float64
	AlertExpiryHours      int
	HistoryWindowDays     int
	HistoryLimit          int
	HistoryCacheTTL       time.Duration
	MinSamplesForScoring  int
}

// MLConfig holds the external scoring service settings
type MLConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

// ProviderConfig holds the flight-search provider settings
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SchedulerConfig holds job orchestration settings
type SchedulerConfig struct {
	HeartbeatInterval    time.Duration
	HeartbeatBatchSize   int
	HeartbeatQuotaFloor  int // skip the cycle entirely below this remaining budget
	ReallocationHour     int
	DigestHour           int
	WeeklyDigestHour     int
	WeeklyDigestWeekday  int // time.Weekday numbering, Sunday = 0
	CleanupHour          int
	MetricsRefreshEvery  time.Duration
	ScanWorkers          int
	AlertWorkers         int
	MaintenanceWorkers   int
	QueueSize            int
	RetryAttempts        int
	RetryBackoffBase     time.Duration
	JobTimeout           time.Duration
	DigestSpreadDuration time.Duration // outbound digest load is spread over this window
}

// RetentionConfig holds data purge windows for the cleanup trigger
type RetentionConfig struct {
	ObservationDays  int
	AnomalyGraceDays int
	APICallLogDays   int
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with GG_ prefix (e.g., GG_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("GG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:        v.GetString("app.name"),
			Env:         v.GetString("app.env"),
			MetricsAddr: v.GetString("app.metrics_addr"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		APILimits: APILimitsConfig{
			MonthlyLimit:       v.GetInt("api_limits.monthly_limit"),
			BufferPercentage:   v.GetFloat64("api_limits.buffer_percentage"),
			LowWaterMark:       v.GetInt("api_limits.low_water_mark"),
			DailyWarning:       v.GetInt("api_limits.daily_warning"),
			EmergencyThreshold: v.GetFloat64("api_limits.emergency_threshold"),
			EmergencyBatchCap:  v.GetInt("api_limits.emergency_batch_cap"),
			UsageCacheTTL:      v.GetDuration("api_limits.usage_cache_ttl"),
		},
		Scanning: ScanningConfig{
			Tier1IntervalMinutes: v.GetInt("scanning.tier1_interval_minutes"),
			Tier2IntervalMinutes: v.GetInt("scanning.tier2_interval_minutes"),
			Tier3IntervalMinutes: v.GetInt("scanning.tier3_interval_minutes"),
			Tier1ScansPerDay:     v.GetInt("scanning.tier1_scans_per_day"),
			Tier2ScansPerDay:     v.GetInt("scanning.tier2_scans_per_day"),
			Tier3ScansPerDay:     v.GetInt("scanning.tier3_scans_per_day"),
			Tier1CohortSize:      v.GetInt("scanning.tier1_cohort_size"),
			Tier2CohortSize:      v.GetInt("scanning.tier2_cohort_size"),
			Tier3CohortSize:      v.GetInt("scanning.tier3_cohort_size"),
			InterWindowDelay:     v.GetDuration("scanning.inter_window_delay"),
			DueRouteCacheTTL:     v.GetDuration("scanning.due_route_cache_ttl"),
		},
		Detection: DetectionConfig{
			MinDiscountPercentage: v.GetFloat64("detection.min_discount_percentage"),
			ConfidenceThreshold:   v.GetFloat64("detection.confidence_threshold"),
			AlertExpiryHours:      v.GetInt("detection.alert_expiry_hours"),
			HistoryWindowDays:     v.GetInt("detection.history_window_days"),
			HistoryLimit:          v.GetInt("detection.history_limit"),
			HistoryCacheTTL:       v.GetDuration("detection.history_cache_ttl"),
			MinSamplesForScoring:  v.GetInt("detection.min_samples_for_scoring"),
		},
		ML: MLConfig{
			ServiceURL: v.GetString("ml.service_url"),
			Timeout:    v.GetDuration("ml.timeout"),
		},
		Provider: ProviderConfig{
			BaseURL: v.GetString("provider.base_url"),
			APIKey:  v.GetString("provider.api_key"),
			Timeout: v.GetDuration("provider.timeout"),
		},
		Scheduler: SchedulerConfig{
			HeartbeatInterval:    v.GetDuration("scheduler.heartbeat_interval"),
			HeartbeatBatchSize:   v.GetInt("scheduler.heartbeat_batch_size"),
			HeartbeatQuotaFloor:  v.GetInt("scheduler.heartbeat_quota_floor"),
			ReallocationHour:     v.GetInt("scheduler.reallocation_hour"),
			DigestHour:           v.GetInt("scheduler.digest_hour"),
			WeeklyDigestHour:     v.GetInt("scheduler.weekly_digest_hour"),
			WeeklyDigestWeekday:  v.GetInt("scheduler.weekly_digest_weekday"),
			CleanupHour:          v.GetInt("scheduler.cleanup_hour"),
			MetricsRefreshEvery:  v.GetDuration("scheduler.metrics_refresh_every"),
			ScanWorkers:          v.GetInt("scheduler.scan_workers"),
			AlertWorkers:         v.GetInt("scheduler.alert_workers"),
			MaintenanceWorkers:   v.GetInt("scheduler.maintenance_workers"),
			QueueSize:            v.GetInt("scheduler.queue_size"),
			RetryAttempts:        v.GetInt("scheduler.retry_attempts"),
			RetryBackoffBase:     v.GetDuration("scheduler.retry_backoff_base"),
			JobTimeout:           v.GetDuration("scheduler.job_timeout"),
			DigestSpreadDuration: v.GetDuration("scheduler.digest_spread_duration"),
		},
		Retention: RetentionConfig{
			ObservationDays:  v.GetInt("retention.observation_days"),
			AnomalyGraceDays: v.GetInt("retention.anomaly_grace_days"),
			APICallLogDays:   v.GetInt("retention.api_call_log_days"),
		},
	}

	if err := v.UnmarshalKey("scanning.routes", &cfg.Scanning.RouteCatalogue); err != nil {
		return nil, fmt.Errorf("error parsing scanning.routes: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "globegenius-core"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = ":9090"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "globegenius"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.APILimits.MonthlyLimit == 0 {
		cfg.APILimits.MonthlyLimit = 10000
	}
	if cfg.APILimits.BufferPercentage == 0 {
		cfg.APILimits.BufferPercentage = 0.1
	}
	if cfg.APILimits.LowWaterMark == 0 {
		cfg.APILimits.LowWaterMark = 500
	}
	if cfg.APILimits.DailyWarning == 0 {
		cfg.APILimits.DailyWarning = 300
	}
	if cfg.APILimits.EmergencyThreshold == 0 {
		cfg.APILimits.EmergencyThreshold = 0.05
	}
	if cfg.APILimits.EmergencyBatchCap == 0 {
		cfg.APILimits.EmergencyBatchCap = 5
	}
	if cfg.APILimits.UsageCacheTTL == 0 {
		cfg.APILimits.UsageCacheTTL = 5 * time.Minute
	}
	if cfg.Scanning.Tier1IntervalMinutes == 0 {
		cfg.Scanning.Tier1IntervalMinutes = 30
	}
	if cfg.Scanning.Tier2IntervalMinutes == 0 {
		cfg.Scanning.Tier2IntervalMinutes = 60
	}
	if cfg.Scanning.Tier3IntervalMinutes == 0 {
		cfg.Scanning.Tier3IntervalMinutes = 120
	}
	if cfg.Scanning.Tier1ScansPerDay == 0 {
		cfg.Scanning.Tier1ScansPerDay = 6
	}
	if cfg.Scanning.Tier2ScansPerDay == 0 {
		cfg.Scanning.Tier2ScansPerDay = 4
	}
	if cfg.Scanning.Tier3ScansPerDay == 0 {
		cfg.Scanning.Tier3ScansPerDay = 2
	}
	if cfg.Scanning.Tier1CohortSize == 0 {
		cfg.Scanning.Tier1CohortSize = 20
	}
	if cfg.Scanning.Tier2CohortSize == 0 {
		cfg.Scanning.Tier2CohortSize = 25
	}
	if cfg.Scanning.Tier3CohortSize == 0 {
		cfg.Scanning.Tier3CohortSize = 15
	}
	if cfg.Scanning.InterWindowDelay == 0 {
		cfg.Scanning.InterWindowDelay = time.Second
	}
	if cfg.Scanning.DueRouteCacheTTL == 0 {
		cfg.Scanning.DueRouteCacheTTL = time.Minute
	}
	if cfg.Detection.MinDiscountPercentage == 0 {
		cfg.Detection.MinDiscountPercentage = 30
	}
	if cfg.Detection.ConfidenceThreshold == 0 {
		cfg.Detection.ConfidenceThreshold = 0.6
	}
	if cfg.Detection.AlertExpiryHours == 0 {
		cfg.Detection.AlertExpiryHours = 48
	}
	if cfg.Detection.HistoryWindowDays == 0 {
		cfg.Detection.HistoryWindowDays = 90
	}
	if cfg.Detection.HistoryLimit == 0 {
		cfg.Detection.HistoryLimit = 100
	}
	if cfg.Detection.HistoryCacheTTL == 0 {
		cfg.Detection.HistoryCacheTTL = 4 * time.Hour
	}
	if cfg.Detection.MinSamplesForScoring == 0 {
		cfg.Detection.MinSamplesForScoring = 10
	}
	if cfg.ML.ServiceURL == "" {
		cfg.ML.ServiceURL = "http://localhost:8000"
	}
	if cfg.ML.Timeout == 0 {
		cfg.ML.Timeout = 5 * time.Second
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://app.goflightlabs.com"
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}
	if cfg.Scheduler.HeartbeatInterval == 0 {
		cfg.Scheduler.HeartbeatInterval = 30 * time.Minute
	}
	if cfg.Scheduler.HeartbeatBatchSize == 0 {
		cfg.Scheduler.HeartbeatBatchSize = 10
	}
	if cfg.Scheduler.HeartbeatQuotaFloor == 0 {
		cfg.Scheduler.HeartbeatQuotaFloor = 100
	}
	if cfg.Scheduler.ReallocationHour == 0 {
		cfg.Scheduler.ReallocationHour = 3
	}
	if cfg.Scheduler.DigestHour == 0 {
		cfg.Scheduler.DigestHour = 8
	}
	if cfg.Scheduler.WeeklyDigestHour == 0 {
		cfg.Scheduler.WeeklyDigestHour = 9
	}
	if cfg.Scheduler.WeeklyDigestWeekday == 0 {
		cfg.Scheduler.WeeklyDigestWeekday = int(time.Monday)
	}
	if cfg.Scheduler.CleanupHour == 0 {
		cfg.Scheduler.CleanupHour = 4
	}
	if cfg.Scheduler.MetricsRefreshEvery == 0 {
		cfg.Scheduler.MetricsRefreshEvery = 5 * time.Minute
	}
	if cfg.Scheduler.ScanWorkers == 0 {
		cfg.Scheduler.ScanWorkers = 5
	}
	if cfg.Scheduler.AlertWorkers == 0 {
		cfg.Scheduler.AlertWorkers = 10
	}
	if cfg.Scheduler.MaintenanceWorkers == 0 {
		cfg.Scheduler.MaintenanceWorkers = 2
	}
	if cfg.Scheduler.QueueSize == 0 {
		cfg.Scheduler.QueueSize = 100
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryBackoffBase == 0 {
		cfg.Scheduler.RetryBackoffBase = 2 * time.Second
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 10 * time.Minute
	}
	if cfg.Scheduler.DigestSpreadDuration == 0 {
		cfg.Scheduler.DigestSpreadDuration = time.Hour
	}
	if cfg.Retention.ObservationDays == 0 {
		cfg.Retention.ObservationDays = 180
	}
	if cfg.Retention.AnomalyGraceDays == 0 {
		cfg.Retention.AnomalyGraceDays = 30
	}
	if cfg.Retention.APICallLogDays == 0 {
		cfg.Retention.APICallLogDays = 30
	}
}

// validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior
func (c *Config) validate() error {
	if c.APILimits.MonthlyLimit <= 0 {
		return fmt.Errorf("api_limits.monthly_limit must be positive, got %d", c.APILimits.MonthlyLimit)
	}
	if c.APILimits.BufferPercentage < 0 || c.APILimits.BufferPercentage >= 1 {
		return fmt.Errorf("api_limits.buffer_percentage must be in [0,1), got %v", c.APILimits.BufferPercentage)
	}
	if c.APILimits.EmergencyThreshold <= 0 || c.APILimits.EmergencyThreshold >= 1 {
		return fmt.Errorf("api_limits.emergency_threshold must be in (0,1), got %v", c.APILimits.EmergencyThreshold)
	}
	t1, t2, t3 := c.Scanning.Tier1IntervalMinutes, c.Scanning.Tier2IntervalMinutes, c.Scanning.Tier3IntervalMinutes
	if !(t1 < t2 && t2 < t3) {
		return fmt.Errorf("scanning tier intervals must be strictly increasing, got %d/%d/%d", t1, t2, t3)
	}
	if c.Detection.MinDiscountPercentage <= 0 || c.Detection.MinDiscountPercentage >= 100 {
		return fmt.Errorf("detection.min_discount_percentage must be in (0,100), got %v", c.Detection.MinDiscountPercentage)
	}
	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("detection.confidence_threshold must be in [0,1], got %v", c.Detection.ConfidenceThreshold)
	}
	for name, hour := range map[string]int{
		"scheduler.reallocation_hour":  c.Scheduler.ReallocationHour,
		"scheduler.digest_hour":        c.Scheduler.DigestHour,
		"scheduler.weekly_digest_hour": c.Scheduler.WeeklyDigestHour,
		"scheduler.cleanup_hour":       c.Scheduler.CleanupHour,
	} {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("%s must be 0-23, got %d", name, hour)
		}
	}
	if wd := c.Scheduler.WeeklyDigestWeekday; wd < 0 || wd > 6 {
		return fmt.Errorf("scheduler.weekly_digest_weekday must be 0-6, got %d", wd)
	}
	return nil
}

// TierInterval returns the configured scan interval in minutes for a tier
func (c *ScanningConfig) TierInterval(tier int) int {
	switch tier {
	case 1:
		return c.Tier1IntervalMinutes
	case 2:
		return c.Tier2IntervalMinutes
	default:
		return c.Tier3IntervalMinutes
	}
}

// TierScansPerDay returns the planned scan frequency for a tier
func (c *ScanningConfig) TierScansPerDay(tier int) int {
	switch tier {
	case 1:
		return c.Tier1ScansPerDay
	case 2:
		return c.Tier2ScansPerDay
	default:
		return c.Tier3ScansPerDay
	}
}
