// Package config holds the runtime configuration for the duplicate
// detection and audit pipeline. Each concern gets its own struct with
// documented defaults and ranges; values come from defaults, then an
// optional YAML file, then DUPGUARD_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DetectorConfig tunes the duplicate lookup
type DetectorConfig struct {
	// WindowDays is the lookback window for candidate matches (in days).
	// Records with a transaction_date older than now minus this window are
	// never returned.
	// Default: 730 (2 years), Range: 1-3650
	WindowDays int

	// MaxCandidates caps the number of candidates returned per check, to
	// bound fan-out from vendors with many legitimate same-day bookings.
	// Default: 100, Range: 1-1000
	MaxCandidates int

	// AmountEpsilon is the absolute tolerance used when comparing amounts.
	// Upstream extraction introduces rounding noise, so raw equality would
	// miss real duplicates.
	// Default: 0.01, Range: (0, 1]
	AmountEpsilon float64
}

// CacheConfig tunes the query cache in front of the transaction store
type CacheConfig struct {
	// TTL is how long a cached candidate set stays valid.
	// Default: 300s, Range: 1s-1h
	TTL time.Duration

	// SweepInterval is how often the background sweep evicts expired
	// entries. Expired entries are also dropped on access.
	// Default: 60s, Range: 1s-1h
	SweepInterval time.Duration

	// TargetHitRate is the hit rate the health score treats as 100%
	// cache efficiency. A lower observed rate degrades the score but
	// never affects correctness.
	// Default: 0.70, Range: (0, 1]
	TargetHitRate float64
}

// DecisionConfig tunes the decision state machine
type DecisionConfig struct {
	// Timeout bounds how long an instance may sit in AwaitingDecision
	// before the system applies an implicit cancel.
	// Default: 5m, Range: 1s-1h
	Timeout time.Duration
}

// CleanupConfig tunes file-deletion retries
type CleanupConfig struct {
	// MaxAttempts is the total number of delete attempts per file.
	// Default: 3, Range: 1-10
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	// Default: 500ms
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff growth.
	// Default: 5s
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay between attempts.
	// Default: 2.0, Range: [1, 10]
	BackoffMultiplier float64
}

// AuditConfig tunes the decision log write path and retention
type AuditConfig struct {
	// WriteMaxAttempts is the number of synchronous attempts before an
	// entry is parked on the deferred retry queue.
	// Default: 3, Range: 1-10
	WriteMaxAttempts int

	// WriteBackoff is the delay before the first synchronous retry.
	// Default: 250ms
	WriteBackoff time.Duration

	// DrainInterval is how often the background sweep retries queued
	// entries.
	// Default: 30s, Range: 1s-10m
	DrainInterval time.Duration

	// RetentionDays is how long decision log entries are kept. Cleanup
	// deletes older entries; this is the only permitted mutation of the
	// log.
	// Default: 730, Range: 30-3650
	RetentionDays int

	// CleanupBatchSize is the number of rows deleted per batch during
	// retention cleanup. Larger batches finish faster but hold locks
	// longer.
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int

	// MirrorEnabled turns on mirroring of logged entries to an external
	// warehouse table for enterprise reporting.
	// Default: false
	MirrorEnabled bool

	// MirrorProject, MirrorDataset, MirrorTable locate the warehouse
	// table when mirroring is enabled.
	MirrorProject string
	MirrorDataset string
	MirrorTable   string
}

// MonitorConfig tunes the performance monitor
type MonitorConfig struct {
	// SampleWindowSize bounds the in-memory ring of performance samples.
	// Default: 1000, Range: 100-100000
	SampleWindowSize int

	// QueryBudget is the soft latency budget for a duplicate check. The
	// fraction of checks finishing under it feeds the health score; the
	// budget is monitored, never enforced.
	// Default: 2s
	QueryBudget time.Duration

	// SlowThreshold marks an operation as slow in listings.
	// Default: 1s
	SlowThreshold time.Duration
}

// FilesConfig tunes blob store access
type FilesConfig struct {
	// RequestTimeout bounds each blob store call.
	// Default: 30s, Range: 1s-5m
	RequestTimeout time.Duration
}

// ServerConfig tunes the serve command
type ServerConfig struct {
	// Addr is the HTTP listen address.
	// Default: ":8088"
	Addr string

	// DBPath locates the SQLite database file.
	// Default: "dupguard.db"
	DBPath string

	// LogLevel selects the service log level (zerolog level names).
	// Default: "info"
	LogLevel string

	// RetentionInterval runs audit retention cleanup periodically when
	// positive. Zero disables the job; cleanup then runs only on demand.
	// Default: 0 (disabled)
	RetentionInterval time.Duration
}

// Config aggregates every concern's configuration
type Config struct {
	Detector DetectorConfig
	Cache    CacheConfig
	Decision DecisionConfig
	Cleanup  CleanupConfig
	Audit    AuditConfig
	Monitor  MonitorConfig
	Files    FilesConfig
	Server   ServerConfig
}

// Default returns the default configuration for every concern
func Default() Config {
	return Config{
		Detector: DetectorConfig{
			WindowDays:    730,
			MaxCandidates: 100,
			AmountEpsilon: 0.01,
		},
		Cache: CacheConfig{
			TTL:           300 * time.Second,
			SweepInterval: 60 * time.Second,
			TargetHitRate: 0.70,
		},
		Decision: DecisionConfig{
			Timeout: 5 * time.Minute,
		},
		Cleanup: CleanupConfig{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Audit: AuditConfig{
			WriteMaxAttempts: 3,
			WriteBackoff:     250 * time.Millisecond,
			DrainInterval:    30 * time.Second,
			RetentionDays:    730,
			CleanupBatchSize: 1000,
			MirrorTable:      "decision_log",
		},
		Monitor: MonitorConfig{
			SampleWindowSize: 1000,
			QueryBudget:      2 * time.Second,
			SlowThreshold:    1 * time.Second,
		},
		Files: FilesConfig{
			RequestTimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Addr:     ":8088",
			DBPath:   "dupguard.db",
			LogLevel: "info",
		},
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Detector.WindowDays < 1 || c.Detector.WindowDays > 3650 {
		return fmt.Errorf("window_days must be between 1 and 3650 (got %d)", c.Detector.WindowDays)
	}
	if c.Detector.MaxCandidates < 1 || c.Detector.MaxCandidates > 1000 {
		return fmt.Errorf("max_candidates must be between 1 and 1000 (got %d)", c.Detector.MaxCandidates)
	}
	if c.Detector.AmountEpsilon <= 0 || c.Detector.AmountEpsilon > 1 {
		return fmt.Errorf("amount_epsilon must be in (0, 1] (got %g)", c.Detector.AmountEpsilon)
	}

	if c.Cache.TTL < time.Second || c.Cache.TTL > time.Hour {
		return fmt.Errorf("cache ttl must be between 1s and 1h (got %v)", c.Cache.TTL)
	}
	if c.Cache.SweepInterval < time.Second || c.Cache.SweepInterval > time.Hour {
		return fmt.Errorf("cache sweep_interval must be between 1s and 1h (got %v)", c.Cache.SweepInterval)
	}
	if c.Cache.TargetHitRate <= 0 || c.Cache.TargetHitRate > 1 {
		return fmt.Errorf("cache target_hit_rate must be in (0, 1] (got %g)", c.Cache.TargetHitRate)
	}

	if c.Decision.Timeout < time.Second || c.Decision.Timeout > time.Hour {
		return fmt.Errorf("decision timeout must be between 1s and 1h (got %v)", c.Decision.Timeout)
	}

	if c.Cleanup.MaxAttempts < 1 || c.Cleanup.MaxAttempts > 10 {
		return fmt.Errorf("cleanup max_attempts must be between 1 and 10 (got %d)", c.Cleanup.MaxAttempts)
	}
	if c.Cleanup.InitialBackoff <= 0 {
		return fmt.Errorf("cleanup initial_backoff must be positive (got %v)", c.Cleanup.InitialBackoff)
	}
	if c.Cleanup.MaxBackoff < c.Cleanup.InitialBackoff {
		return fmt.Errorf("cleanup max_backoff (%v) must be >= initial_backoff (%v)",
			c.Cleanup.MaxBackoff, c.Cleanup.InitialBackoff)
	}
	if c.Cleanup.BackoffMultiplier < 1 || c.Cleanup.BackoffMultiplier > 10 {
		return fmt.Errorf("cleanup backoff_multiplier must be between 1 and 10 (got %g)", c.Cleanup.BackoffMultiplier)
	}

	if c.Audit.WriteMaxAttempts < 1 || c.Audit.WriteMaxAttempts > 10 {
		return fmt.Errorf("audit write_max_attempts must be between 1 and 10 (got %d)", c.Audit.WriteMaxAttempts)
	}
	if c.Audit.WriteBackoff <= 0 {
		return fmt.Errorf("audit write_backoff must be positive (got %v)", c.Audit.WriteBackoff)
	}
	if c.Audit.DrainInterval < time.Second || c.Audit.DrainInterval > 10*time.Minute {
		return fmt.Errorf("audit drain_interval must be between 1s and 10m (got %v)", c.Audit.DrainInterval)
	}
	if c.Audit.RetentionDays < 30 || c.Audit.RetentionDays > 3650 {
		return fmt.Errorf("audit retention_days must be between 30 and 3650 (got %d)", c.Audit.RetentionDays)
	}
	if c.Audit.CleanupBatchSize < 100 || c.Audit.CleanupBatchSize > 10000 {
		return fmt.Errorf("audit cleanup_batch_size must be between 100 and 10000 (got %d)", c.Audit.CleanupBatchSize)
	}
	if c.Audit.MirrorEnabled {
		if c.Audit.MirrorProject == "" || c.Audit.MirrorDataset == "" || c.Audit.MirrorTable == "" {
			return fmt.Errorf("audit mirror requires project, dataset, and table")
		}
	}

	if c.Monitor.SampleWindowSize < 100 || c.Monitor.SampleWindowSize > 100000 {
		return fmt.Errorf("monitor sample_window_size must be between 100 and 100000 (got %d)", c.Monitor.SampleWindowSize)
	}
	if c.Monitor.QueryBudget <= 0 {
		return fmt.Errorf("monitor query_budget must be positive (got %v)", c.Monitor.QueryBudget)
	}
	if c.Monitor.SlowThreshold <= 0 {
		return fmt.Errorf("monitor slow_threshold must be positive (got %v)", c.Monitor.SlowThreshold)
	}

	if c.Files.RequestTimeout < time.Second || c.Files.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("files request_timeout must be between 1s and 5m (got %v)", c.Files.RequestTimeout)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.Server.DBPath == "" {
		return fmt.Errorf("server db_path is required")
	}
	if c.Server.RetentionInterval < 0 {
		return fmt.Errorf("server retention_interval cannot be negative (got %v)", c.Server.RetentionInterval)
	}

	return nil
}

// Window returns the detector lookback as a duration
func (c DetectorConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// FromEnv creates a Config from defaults overridden by environment
// variables.
//
// Environment variables:
//   - DUPGUARD_WINDOW_DAYS: detector lookback window in days (default: 730)
//   - DUPGUARD_MAX_CANDIDATES: candidate cap per check (default: 100)
//   - DUPGUARD_AMOUNT_EPSILON: amount comparison tolerance (default: 0.01)
//   - DUPGUARD_CACHE_TTL: cache entry lifetime (default: 300s)
//   - DUPGUARD_CACHE_SWEEP_INTERVAL: background sweep period (default: 60s)
//   - DUPGUARD_CACHE_TARGET_HIT_RATE: hit rate treated as full efficiency (default: 0.70)
//   - DUPGUARD_DECISION_TIMEOUT: awaiting-decision timeout (default: 5m)
//   - DUPGUARD_CLEANUP_MAX_ATTEMPTS: delete attempts per file (default: 3)
//   - DUPGUARD_CLEANUP_INITIAL_BACKOFF: first retry delay (default: 500ms)
//   - DUPGUARD_CLEANUP_MAX_BACKOFF: backoff cap (default: 5s)
//   - DUPGUARD_AUDIT_WRITE_MAX_ATTEMPTS: synchronous audit write attempts (default: 3)
//   - DUPGUARD_AUDIT_DRAIN_INTERVAL: deferred queue drain period (default: 30s)
//   - DUPGUARD_AUDIT_RETENTION_DAYS: decision log retention (default: 730)
//   - DUPGUARD_AUDIT_CLEANUP_BATCH_SIZE: rows per retention delete batch (default: 1000)
//   - DUPGUARD_AUDIT_MIRROR_ENABLED: mirror logged entries to the warehouse (default: false)
//   - DUPGUARD_AUDIT_MIRROR_PROJECT / _DATASET / _TABLE: warehouse location
//   - DUPGUARD_MONITOR_WINDOW_SIZE: performance sample ring size (default: 1000)
//   - DUPGUARD_QUERY_BUDGET: soft check latency budget (default: 2s)
//   - DUPGUARD_SLOW_THRESHOLD: slow operation threshold (default: 1s)
//   - DUPGUARD_FILES_REQUEST_TIMEOUT: blob store call timeout (default: 30s)
//   - DUPGUARD_ADDR: HTTP listen address (default: ":8088")
//   - DUPGUARD_DB: SQLite database path (default: "dupguard.db")
//   - DUPGUARD_LOG_LEVEL: service log level (default: "info")
//   - DUPGUARD_RETENTION_INTERVAL: periodic retention job period, 0 disables (default: 0)
//
// Returns an error if any variable has an invalid value.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays DUPGUARD_* environment variables on cfg
func applyEnv(cfg *Config) error {
	if err := parseEnvInt("DUPGUARD_WINDOW_DAYS", &cfg.Detector.WindowDays); err != nil {
		return err
	}
	if err := parseEnvInt("DUPGUARD_MAX_CANDIDATES", &cfg.Detector.MaxCandidates); err != nil {
		return err
	}
	if err := parseEnvFloat("DUPGUARD_AMOUNT_EPSILON", &cfg.Detector.AmountEpsilon); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_CACHE_TTL", &cfg.Cache.TTL); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_CACHE_SWEEP_INTERVAL", &cfg.Cache.SweepInterval); err != nil {
		return err
	}
	if err := parseEnvFloat("DUPGUARD_CACHE_TARGET_HIT_RATE", &cfg.Cache.TargetHitRate); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_DECISION_TIMEOUT", &cfg.Decision.Timeout); err != nil {
		return err
	}
	if err := parseEnvInt("DUPGUARD_CLEANUP_MAX_ATTEMPTS", &cfg.Cleanup.MaxAttempts); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_CLEANUP_INITIAL_BACKOFF", &cfg.Cleanup.InitialBackoff); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_CLEANUP_MAX_BACKOFF", &cfg.Cleanup.MaxBackoff); err != nil {
		return err
	}
	if err := parseEnvInt("DUPGUARD_AUDIT_WRITE_MAX_ATTEMPTS", &cfg.Audit.WriteMaxAttempts); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_AUDIT_WRITE_BACKOFF", &cfg.Audit.WriteBackoff); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_AUDIT_DRAIN_INTERVAL", &cfg.Audit.DrainInterval); err != nil {
		return err
	}
	if err := parseEnvInt("DUPGUARD_AUDIT_RETENTION_DAYS", &cfg.Audit.RetentionDays); err != nil {
		return err
	}
	if err := parseEnvInt("DUPGUARD_AUDIT_CLEANUP_BATCH_SIZE", &cfg.Audit.CleanupBatchSize); err != nil {
		return err
	}
	if err := parseEnvBool("DUPGUARD_AUDIT_MIRROR_ENABLED", &cfg.Audit.MirrorEnabled); err != nil {
		return err
	}
	if err := parseEnvString("DUPGUARD_AUDIT_MIRROR_PROJECT", &cfg.Audit.MirrorProject); err != nil {
		return err
	}
	if err := parseEnvString("DUPGUARD_AUDIT_MIRROR_DATASET", &cfg.Audit.MirrorDataset); err != nil {
		return err
	}
	if err := parseEnvString("DUPGUARD_AUDIT_MIRROR_TABLE", &cfg.Audit.MirrorTable); err != nil {
		return err
	}
	if err := parseEnvInt("DUPGUARD_MONITOR_WINDOW_SIZE", &cfg.Monitor.SampleWindowSize); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_QUERY_BUDGET", &cfg.Monitor.QueryBudget); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_SLOW_THRESHOLD", &cfg.Monitor.SlowThreshold); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_FILES_REQUEST_TIMEOUT", &cfg.Files.RequestTimeout); err != nil {
		return err
	}
	if err := parseEnvString("DUPGUARD_ADDR", &cfg.Server.Addr); err != nil {
		return err
	}
	if err := parseEnvString("DUPGUARD_DB", &cfg.Server.DBPath); err != nil {
		return err
	}
	if err := parseEnvString("DUPGUARD_LOG_LEVEL", &cfg.Server.LogLevel); err != nil {
		return err
	}
	if err := parseEnvDuration("DUPGUARD_RETENTION_INTERVAL", &cfg.Server.RetentionInterval); err != nil {
		return err
	}

	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a time.Duration from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
