// Package config holds the control plane's configuration: a struct with
// environment-variable tags and sane defaults, loaded through a
// functional-options constructor. It also carries the path of the YAML
// rule-registry document, which the safety package loads; this package
// reads no files itself.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every recognized option from the configuration surface,
// plus the ambient fields (logging, telemetry, redis) a deployable binary
// needs that the reconciliation core itself doesn't.
type Config struct {
	Reconciliation ReconciliationConfig
	Maintenance    MaintenanceConfig
	Health         HealthConfig
	Store          StoreConfig
	Rules          RulesConfig
	Logging        LoggingConfig
	Telemetry      TelemetryConfig
	Redis          RedisConfig
}

type ReconciliationConfig struct {
	DebounceMs    int `env:"TWINCTL_RECONCILIATION_DEBOUNCE_MS"`
	DriftPeriodMs int `env:"TWINCTL_RECONCILIATION_DRIFT_PERIOD_MS"`
}

type MaintenanceConfig struct {
	StaleDetectionCron string `env:"TWINCTL_MAINTENANCE_STALE_DETECTION_CRON"`
	StaleThresholdDays int    `env:"TWINCTL_MAINTENANCE_STALE_THRESHOLD_DAYS"`
	OrphanCleanupCron  string `env:"TWINCTL_MAINTENANCE_ORPHAN_CLEANUP_CRON"`
}

type HealthConfig struct {
	FailureThreshold  int `env:"TWINCTL_HEALTH_FAILURE_THRESHOLD"`
	RecoveryThreshold int `env:"TWINCTL_HEALTH_RECOVERY_THRESHOLD"`
}

type StoreConfig struct {
	TimeoutMs   int `env:"TWINCTL_STORE_TIMEOUT_MS"`
	PublishMs   int `env:"TWINCTL_PUBLISH_TIMEOUT_MS"`
}

type RulesConfig struct {
	EvaluationTimeoutMs int    `env:"TWINCTL_RULES_EVALUATION_TIMEOUT_MS"`
	RegistryPath        string `env:"TWINCTL_RULES_REGISTRY_PATH"`
}

type LoggingConfig struct {
	Level  string `env:"TWINCTL_LOGGING_LEVEL"`
	Format string `env:"TWINCTL_LOGGING_FORMAT"`
}

type TelemetryConfig struct {
	Enabled      bool   `env:"TWINCTL_TELEMETRY_ENABLED"`
	OTLPEndpoint string `env:"TWINCTL_TELEMETRY_OTLP_ENDPOINT"`
}

type RedisConfig struct {
	URL       string `env:"TWINCTL_REDIS_URL"`
	Namespace string `env:"TWINCTL_REDIS_NAMESPACE"`
}

// Option mutates a Config under construction; invalid values are reported
// as errors rather than panicking.
type Option func(*Config) error

// Default returns a Config populated with documented defaults.
func Default() *Config {
	return &Config{
		Reconciliation: ReconciliationConfig{DebounceMs: 50, DriftPeriodMs: 5000},
		Maintenance: MaintenanceConfig{
			StaleDetectionCron: "0 0 3 * * *",
			StaleThresholdDays: 7,
			OrphanCleanupCron:  "0 0 4 * * *",
		},
		Health: HealthConfig{FailureThreshold: 3, RecoveryThreshold: 2},
		Store:  StoreConfig{TimeoutMs: 1000, PublishMs: 2000},
		Rules:  RulesConfig{EvaluationTimeoutMs: 50},
		Logging: LoggingConfig{Level: "INFO", Format: "text"},
		Telemetry: TelemetryConfig{Enabled: false, OTLPEndpoint: ""},
		Redis:     RedisConfig{Namespace: "twinctl"},
	}
}

// New builds a Config from defaults, environment variables, then the
// supplied options, in that increasing-priority order.
func New(opts ...Option) (*Config, error) {
	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("config: applying option: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv overlays recognized TWINCTL_* environment variables onto cfg.
func (c *Config) LoadFromEnv() error {
	intVar(&c.Reconciliation.DebounceMs, "TWINCTL_RECONCILIATION_DEBOUNCE_MS")
	intVar(&c.Reconciliation.DriftPeriodMs, "TWINCTL_RECONCILIATION_DRIFT_PERIOD_MS")
	strVar(&c.Maintenance.StaleDetectionCron, "TWINCTL_MAINTENANCE_STALE_DETECTION_CRON")
	intVar(&c.Maintenance.StaleThresholdDays, "TWINCTL_MAINTENANCE_STALE_THRESHOLD_DAYS")
	strVar(&c.Maintenance.OrphanCleanupCron, "TWINCTL_MAINTENANCE_ORPHAN_CLEANUP_CRON")
	intVar(&c.Health.FailureThreshold, "TWINCTL_HEALTH_FAILURE_THRESHOLD")
	intVar(&c.Health.RecoveryThreshold, "TWINCTL_HEALTH_RECOVERY_THRESHOLD")
	intVar(&c.Store.TimeoutMs, "TWINCTL_STORE_TIMEOUT_MS")
	intVar(&c.Store.PublishMs, "TWINCTL_PUBLISH_TIMEOUT_MS")
	intVar(&c.Rules.EvaluationTimeoutMs, "TWINCTL_RULES_EVALUATION_TIMEOUT_MS")
	strVar(&c.Rules.RegistryPath, "TWINCTL_RULES_REGISTRY_PATH")
	strVar(&c.Logging.Level, "TWINCTL_LOGGING_LEVEL")
	strVar(&c.Logging.Format, "TWINCTL_LOGGING_FORMAT")
	boolVar(&c.Telemetry.Enabled, "TWINCTL_TELEMETRY_ENABLED")
	strVar(&c.Telemetry.OTLPEndpoint, "TWINCTL_TELEMETRY_OTLP_ENDPOINT")
	strVar(&c.Redis.URL, "TWINCTL_REDIS_URL")
	strVar(&c.Redis.Namespace, "TWINCTL_REDIS_NAMESPACE")
	return nil
}

func strVar(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

func intVar(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func boolVar(dst *bool, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate rejects nonsensical values before the binary starts components
// on top of them.
func (c *Config) Validate() error {
	if c.Reconciliation.DebounceMs <= 0 {
		return fmt.Errorf("config: reconciliation.debounceMs must be positive")
	}
	if c.Reconciliation.DriftPeriodMs <= 0 {
		return fmt.Errorf("config: reconciliation.driftPeriodMs must be positive")
	}
	if c.Health.FailureThreshold <= 0 || c.Health.RecoveryThreshold <= 0 {
		return fmt.Errorf("config: health thresholds must be positive")
	}
	if c.Maintenance.StaleThresholdDays <= 0 {
		return fmt.Errorf("config: maintenance.staleThresholdDays must be positive")
	}
	return nil
}

func (c ReconciliationConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c ReconciliationConfig) DriftPeriod() time.Duration {
	return time.Duration(c.DriftPeriodMs) * time.Millisecond
}

func (c StoreConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }
func (c StoreConfig) Publish() time.Duration { return time.Duration(c.PublishMs) * time.Millisecond }

func (c RulesConfig) EvaluationTimeout() time.Duration {
	return time.Duration(c.EvaluationTimeoutMs) * time.Millisecond
}

// WithDebounce overrides reconciliation.debounceMs.
func WithDebounce(ms int) Option {
	return func(c *Config) error {
		if ms <= 0 {
			return fmt.Errorf("debounce must be positive")
		}
		c.Reconciliation.DebounceMs = ms
		return nil
	}
}

// WithRedisURL overrides the redis connection string.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Redis.URL = url
		return nil
	}
}

// WithTelemetry enables telemetry and sets the exporter endpoint.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.OTLPEndpoint = endpoint
		return nil
	}
}

// WithRulesRegistryPath overrides the YAML rule-registry document path.
func WithRulesRegistryPath(path string) Option {
	return func(c *Config) error {
		c.Rules.RegistryPath = path
		return nil
	}
}
