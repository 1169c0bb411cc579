package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
	if cfg.Detector.WindowDays != 730 {
		t.Errorf("WindowDays = %d, want 730", cfg.Detector.WindowDays)
	}
	if cfg.Detector.MaxCandidates != 100 {
		t.Errorf("MaxCandidates = %d, want 100", cfg.Detector.MaxCandidates)
	}
	if cfg.Cache.TTL != 300*time.Second {
		t.Errorf("Cache.TTL = %v, want 300s", cfg.Cache.TTL)
	}
	if cfg.Cache.TargetHitRate != 0.70 {
		t.Errorf("TargetHitRate = %v, want 0.70", cfg.Cache.TargetHitRate)
	}
	if cfg.Decision.Timeout != 5*time.Minute {
		t.Errorf("Decision.Timeout = %v, want 5m", cfg.Decision.Timeout)
	}
	if cfg.Cleanup.MaxAttempts != 3 {
		t.Errorf("Cleanup.MaxAttempts = %d, want 3", cfg.Cleanup.MaxAttempts)
	}
	if cfg.Audit.RetentionDays != 730 {
		t.Errorf("Audit.RetentionDays = %d, want 730", cfg.Audit.RetentionDays)
	}
	if cfg.Monitor.QueryBudget != 2*time.Second {
		t.Errorf("Monitor.QueryBudget = %v, want 2s", cfg.Monitor.QueryBudget)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"window too small", func(c *Config) { c.Detector.WindowDays = 0 }},
		{"window too large", func(c *Config) { c.Detector.WindowDays = 5000 }},
		{"candidates zero", func(c *Config) { c.Detector.MaxCandidates = 0 }},
		{"epsilon zero", func(c *Config) { c.Detector.AmountEpsilon = 0 }},
		{"epsilon too large", func(c *Config) { c.Detector.AmountEpsilon = 2 }},
		{"ttl too short", func(c *Config) { c.Cache.TTL = time.Millisecond }},
		{"hit rate above one", func(c *Config) { c.Cache.TargetHitRate = 1.5 }},
		{"decision timeout too short", func(c *Config) { c.Decision.Timeout = 0 }},
		{"cleanup attempts zero", func(c *Config) { c.Cleanup.MaxAttempts = 0 }},
		{"backoff inverted", func(c *Config) {
			c.Cleanup.InitialBackoff = 10 * time.Second
			c.Cleanup.MaxBackoff = time.Second
		}},
		{"retention too short", func(c *Config) { c.Audit.RetentionDays = 7 }},
		{"batch too small", func(c *Config) { c.Audit.CleanupBatchSize = 10 }},
		{"mirror missing dataset", func(c *Config) {
			c.Audit.MirrorEnabled = true
			c.Audit.MirrorProject = "p"
			c.Audit.MirrorDataset = ""
		}},
		{"monitor window tiny", func(c *Config) { c.Monitor.SampleWindowSize = 10 }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"empty db path", func(c *Config) { c.Server.DBPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg Config)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg Config) {
				defaults := Default()
				if cfg.Detector.WindowDays != defaults.Detector.WindowDays {
					t.Errorf("WindowDays = %v, want %v", cfg.Detector.WindowDays, defaults.Detector.WindowDays)
				}
				if cfg.Cache.TTL != defaults.Cache.TTL {
					t.Errorf("Cache.TTL = %v, want %v", cfg.Cache.TTL, defaults.Cache.TTL)
				}
			},
		},
		{
			name: "overrides applied",
			envVars: map[string]string{
				"DUPGUARD_WINDOW_DAYS":      "365",
				"DUPGUARD_CACHE_TTL":        "120s",
				"DUPGUARD_DECISION_TIMEOUT": "30s",
				"DUPGUARD_ADDR":             ":9090",
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.Detector.WindowDays != 365 {
					t.Errorf("WindowDays = %v, want 365", cfg.Detector.WindowDays)
				}
				if cfg.Cache.TTL != 120*time.Second {
					t.Errorf("Cache.TTL = %v, want 120s", cfg.Cache.TTL)
				}
				if cfg.Decision.Timeout != 30*time.Second {
					t.Errorf("Decision.Timeout = %v, want 30s", cfg.Decision.Timeout)
				}
				if cfg.Server.Addr != ":9090" {
					t.Errorf("Addr = %q, want :9090", cfg.Server.Addr)
				}
			},
		},
		{
			name:    "malformed int rejected",
			envVars: map[string]string{"DUPGUARD_WINDOW_DAYS": "two years"},
			wantErr: true,
		},
		{
			name:    "malformed duration rejected",
			envVars: map[string]string{"DUPGUARD_CACHE_TTL": "300"},
			wantErr: true,
		},
		{
			name:    "out of range value rejected",
			envVars: map[string]string{"DUPGUARD_MAX_CANDIDATES": "100000"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg, err := FromEnv()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("FromEnv() error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dupguard.yaml")
	content := []byte(`detector:
  window_days: 365
  max_candidates: 50
cache:
  ttl: 60s
  target_hit_rate: 0.5
decision:
  timeout: 2m
server:
  addr: ":7070"
  db_path: "other.db"
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Detector.WindowDays != 365 {
		t.Errorf("WindowDays = %d, want 365", cfg.Detector.WindowDays)
	}
	if cfg.Detector.MaxCandidates != 50 {
		t.Errorf("MaxCandidates = %d, want 50", cfg.Detector.MaxCandidates)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("Cache.TTL = %v, want 1m", cfg.Cache.TTL)
	}
	if cfg.Decision.Timeout != 2*time.Minute {
		t.Errorf("Decision.Timeout = %v, want 2m", cfg.Decision.Timeout)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Addr = %q, want :7070", cfg.Server.Addr)
	}
	// Untouched keys keep defaults.
	if cfg.Audit.RetentionDays != 730 {
		t.Errorf("RetentionDays = %d, want default 730", cfg.Audit.RetentionDays)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dupguard.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  ttl: fast\n"), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unparsable duration")
	}
}

func TestLoadWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dupguard.yaml")
	if err := os.WriteFile(path, []byte("detector:\n  window_days: 365\n"), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("DUPGUARD_WINDOW_DAYS", "90")

	cfg, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}
	if cfg.Detector.WindowDays != 90 {
		t.Errorf("environment should win over file: got %d, want 90", cfg.Detector.WindowDays)
	}
}

func TestSaveDefaultRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dupguard.yaml")
	if err := SaveDefault(path); err != nil {
		t.Fatalf("SaveDefault() error: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of saved default errored: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("saved default must validate: %v", err)
	}
	defaults := Default()
	if cfg.Detector.WindowDays != defaults.Detector.WindowDays {
		t.Errorf("WindowDays = %d, want %d", cfg.Detector.WindowDays, defaults.Detector.WindowDays)
	}
	if cfg.Cache.TTL != defaults.Cache.TTL {
		t.Errorf("Cache.TTL = %v, want %v", cfg.Cache.TTL, defaults.Cache.TTL)
	}
}

func TestDetectorWindow(t *testing.T) {
	cfg := DetectorConfig{WindowDays: 2}
	if got := cfg.Window(); got != 48*time.Hour {
		t.Errorf("Window() = %v, want 48h", got)
	}
}
