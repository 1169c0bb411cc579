package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML representation of Config. Durations are strings
// ("300s", "5m") and zero values mean "keep the default", so a file only
// needs the keys it overrides.
type fileConfig struct {
	Detector struct {
		WindowDays    int     `yaml:"window_days,omitempty"`
		MaxCandidates int     `yaml:"max_candidates,omitempty"`
		AmountEpsilon float64 `yaml:"amount_epsilon,omitempty"`
	} `yaml:"detector,omitempty"`
	Cache struct {
		TTL           string  `yaml:"ttl,omitempty"`
		SweepInterval string  `yaml:"sweep_interval,omitempty"`
		TargetHitRate float64 `yaml:"target_hit_rate,omitempty"`
	} `yaml:"cache,omitempty"`
	Decision struct {
		Timeout string `yaml:"timeout,omitempty"`
	} `yaml:"decision,omitempty"`
	Cleanup struct {
		MaxAttempts       int     `yaml:"max_attempts,omitempty"`
		InitialBackoff    string  `yaml:"initial_backoff,omitempty"`
		MaxBackoff        string  `yaml:"max_backoff,omitempty"`
		BackoffMultiplier float64 `yaml:"backoff_multiplier,omitempty"`
	} `yaml:"cleanup,omitempty"`
	Audit struct {
		WriteMaxAttempts int    `yaml:"write_max_attempts,omitempty"`
		WriteBackoff     string `yaml:"write_backoff,omitempty"`
		DrainInterval    string `yaml:"drain_interval,omitempty"`
		RetentionDays    int    `yaml:"retention_days,omitempty"`
		CleanupBatchSize int    `yaml:"cleanup_batch_size,omitempty"`
		MirrorEnabled    bool   `yaml:"mirror_enabled,omitempty"`
		MirrorProject    string `yaml:"mirror_project,omitempty"`
		MirrorDataset    string `yaml:"mirror_dataset,omitempty"`
		MirrorTable      string `yaml:"mirror_table,omitempty"`
	} `yaml:"audit,omitempty"`
	Monitor struct {
		SampleWindowSize int    `yaml:"sample_window_size,omitempty"`
		QueryBudget      string `yaml:"query_budget,omitempty"`
		SlowThreshold    string `yaml:"slow_threshold,omitempty"`
	} `yaml:"monitor,omitempty"`
	Files struct {
		RequestTimeout string `yaml:"request_timeout,omitempty"`
	} `yaml:"files,omitempty"`
	Server struct {
		Addr              string `yaml:"addr,omitempty"`
		DBPath            string `yaml:"db_path,omitempty"`
		LogLevel          string `yaml:"log_level,omitempty"`
		RetentionInterval string `yaml:"retention_interval,omitempty"`
	} `yaml:"server,omitempty"`
}

// Load reads a YAML config file and applies it over the defaults.
// Environment variables still win: callers typically Load then overlay
// FromEnv values, which is what LoadWithEnv does.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := fc.apply(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWithEnv loads the YAML file when path is non-empty, then overlays
// DUPGUARD_* environment variables on top. Environment always wins.
func LoadWithEnv(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.Detector.WindowDays != 0 {
		cfg.Detector.WindowDays = fc.Detector.WindowDays
	}
	if fc.Detector.MaxCandidates != 0 {
		cfg.Detector.MaxCandidates = fc.Detector.MaxCandidates
	}
	if fc.Detector.AmountEpsilon != 0 {
		cfg.Detector.AmountEpsilon = fc.Detector.AmountEpsilon
	}
	if err := applyDuration(fc.Cache.TTL, "cache.ttl", &cfg.Cache.TTL); err != nil {
		return err
	}
	if err := applyDuration(fc.Cache.SweepInterval, "cache.sweep_interval", &cfg.Cache.SweepInterval); err != nil {
		return err
	}
	if fc.Cache.TargetHitRate != 0 {
		cfg.Cache.TargetHitRate = fc.Cache.TargetHitRate
	}
	if err := applyDuration(fc.Decision.Timeout, "decision.timeout", &cfg.Decision.Timeout); err != nil {
		return err
	}
	if fc.Cleanup.MaxAttempts != 0 {
		cfg.Cleanup.MaxAttempts = fc.Cleanup.MaxAttempts
	}
	if err := applyDuration(fc.Cleanup.InitialBackoff, "cleanup.initial_backoff", &cfg.Cleanup.InitialBackoff); err != nil {
		return err
	}
	if err := applyDuration(fc.Cleanup.MaxBackoff, "cleanup.max_backoff", &cfg.Cleanup.MaxBackoff); err != nil {
		return err
	}
	if fc.Cleanup.BackoffMultiplier != 0 {
		cfg.Cleanup.BackoffMultiplier = fc.Cleanup.BackoffMultiplier
	}
	if fc.Audit.WriteMaxAttempts != 0 {
		cfg.Audit.WriteMaxAttempts = fc.Audit.WriteMaxAttempts
	}
	if err := applyDuration(fc.Audit.WriteBackoff, "audit.write_backoff", &cfg.Audit.WriteBackoff); err != nil {
		return err
	}
	if err := applyDuration(fc.Audit.DrainInterval, "audit.drain_interval", &cfg.Audit.DrainInterval); err != nil {
		return err
	}
	if fc.Audit.RetentionDays != 0 {
		cfg.Audit.RetentionDays = fc.Audit.RetentionDays
	}
	if fc.Audit.CleanupBatchSize != 0 {
		cfg.Audit.CleanupBatchSize = fc.Audit.CleanupBatchSize
	}
	if fc.Audit.MirrorEnabled {
		cfg.Audit.MirrorEnabled = true
	}
	if fc.Audit.MirrorProject != "" {
		cfg.Audit.MirrorProject = fc.Audit.MirrorProject
	}
	if fc.Audit.MirrorDataset != "" {
		cfg.Audit.MirrorDataset = fc.Audit.MirrorDataset
	}
	if fc.Audit.MirrorTable != "" {
		cfg.Audit.MirrorTable = fc.Audit.MirrorTable
	}
	if fc.Monitor.SampleWindowSize != 0 {
		cfg.Monitor.SampleWindowSize = fc.Monitor.SampleWindowSize
	}
	if err := applyDuration(fc.Monitor.QueryBudget, "monitor.query_budget", &cfg.Monitor.QueryBudget); err != nil {
		return err
	}
	if err := applyDuration(fc.Monitor.SlowThreshold, "monitor.slow_threshold", &cfg.Monitor.SlowThreshold); err != nil {
		return err
	}
	if err := applyDuration(fc.Files.RequestTimeout, "files.request_timeout", &cfg.Files.RequestTimeout); err != nil {
		return err
	}
	if fc.Server.Addr != "" {
		cfg.Server.Addr = fc.Server.Addr
	}
	if fc.Server.DBPath != "" {
		cfg.Server.DBPath = fc.Server.DBPath
	}
	if fc.Server.LogLevel != "" {
		cfg.Server.LogLevel = fc.Server.LogLevel
	}
	if err := applyDuration(fc.Server.RetentionInterval, "server.retention_interval", &cfg.Server.RetentionInterval); err != nil {
		return err
	}
	return nil
}

func applyDuration(value, field string, dest *time.Duration) error {
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	*dest = parsed
	return nil
}

// SaveDefault writes a commented starter config file with the defaults
func SaveDefault(path string) error {
	cfg := Default()

	var fc fileConfig
	fc.Detector.WindowDays = cfg.Detector.WindowDays
	fc.Detector.MaxCandidates = cfg.Detector.MaxCandidates
	fc.Detector.AmountEpsilon = cfg.Detector.AmountEpsilon
	fc.Cache.TTL = cfg.Cache.TTL.String()
	fc.Cache.SweepInterval = cfg.Cache.SweepInterval.String()
	fc.Cache.TargetHitRate = cfg.Cache.TargetHitRate
	fc.Decision.Timeout = cfg.Decision.Timeout.String()
	fc.Cleanup.MaxAttempts = cfg.Cleanup.MaxAttempts
	fc.Cleanup.InitialBackoff = cfg.Cleanup.InitialBackoff.String()
	fc.Cleanup.MaxBackoff = cfg.Cleanup.MaxBackoff.String()
	fc.Cleanup.BackoffMultiplier = cfg.Cleanup.BackoffMultiplier
	fc.Audit.WriteMaxAttempts = cfg.Audit.WriteMaxAttempts
	fc.Audit.WriteBackoff = cfg.Audit.WriteBackoff.String()
	fc.Audit.DrainInterval = cfg.Audit.DrainInterval.String()
	fc.Audit.RetentionDays = cfg.Audit.RetentionDays
	fc.Audit.CleanupBatchSize = cfg.Audit.CleanupBatchSize
	fc.Monitor.SampleWindowSize = cfg.Monitor.SampleWindowSize
	fc.Monitor.QueryBudget = cfg.Monitor.QueryBudget.String()
	fc.Monitor.SlowThreshold = cfg.Monitor.SlowThreshold.String()
	fc.Files.RequestTimeout = cfg.Files.RequestTimeout.String()
	fc.Server.Addr = cfg.Server.Addr
	fc.Server.DBPath = cfg.Server.DBPath
	fc.Server.LogLevel = cfg.Server.LogLevel

	data, err := yaml.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
