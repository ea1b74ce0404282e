// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package config holds the layered application configuration.
// Precedence: environment variables > YAML config file > built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	KV        KVConfig        `koanf:"kv"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Detection DetectionConfig `koanf:"detection"`
	Policy    PolicyConfig    `koanf:"policy"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Security  SecurityConfig  `koanf:"security"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig configures the DuckDB signal store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" for ephemeral use.
	Path string `koanf:"path"`
}

// KVConfig configures the BadgerDB keyed store used for score records,
// ranking snapshots, dedup keys, and job checkpoints.
type KVConfig struct {
	// Path is the Badger directory. Empty selects in-memory mode.
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// IngestConfig configures the activity event bus.
type IngestConfig struct {
	// Enabled controls whether the ingest consumer runs.
	Enabled bool `koanf:"enabled"`

	// NATS selects the NATS JetStream transport; when false an in-process
	// gochannel Pub/Sub is used (standalone and test deployments).
	NATS           bool          `koanf:"nats"`
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	StreamName     string        `koanf:"stream_name"`
	QueueGroup     string        `koanf:"queue_group"`
	RetryCount     int           `koanf:"retry_count"`
	RetryInterval  time.Duration `koanf:"retry_interval"`
	PoisonTopic    string        `koanf:"poison_topic"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`
}

// DetectionConfig configures the detection engine envelope. Per-detector
// thresholds live with the detectors (detection.Default*Config) and can be
// overridden through the engine API.
type DetectionConfig struct {
	Enabled bool `koanf:"enabled"`

	// ObserveTimeout bounds a single Observe call; on expiry no signal is
	// emitted this time and the caller never sees the failure.
	ObserveTimeout time.Duration `koanf:"observe_timeout"`

	// DedupTTL is how long idempotency keys suppress re-emission. It
	// should cover the widest detector window.
	DedupTTL time.Duration `koanf:"dedup_ttl"`
}

// PolicyConfig is the versioned scoring policy passed into the
// aggregators. The literals are tuning parameters, not product
// requirements, so they are configuration rather than compiled-in.
type PolicyConfig struct {
	Version int         `koanf:"version"`
	Risk    RiskPolicy  `koanf:"risk"`
	Trust   TrustPolicy `koanf:"trust"`
}

// RiskPolicy holds the severity→points curve, the decay schedule, and the
// level thresholds.
type RiskPolicy struct {
	// SeverityPoints maps severity 1..5 (index 0..4) to point values.
	// Must be monotonically increasing.
	SeverityPoints []float64 `koanf:"severity_points"`

	// FullWeightDays is the age under which a signal keeps full weight.
	FullWeightDays int `koanf:"full_weight_days"`

	// HalfWeightDays is the age under which a signal keeps half weight.
	HalfWeightDays int `koanf:"half_weight_days"`

	// DecayHalfLifeDays drives the exponential tail beyond HalfWeightDays.
	DecayHalfLifeDays int `koanf:"decay_half_life_days"`

	// DecayFloor is the minimum weight an aged signal retains.
	DecayFloor float64 `koanf:"decay_floor"`

	// Level thresholds: score >= LevelCritical is CRITICAL, >= LevelHigh
	// is HIGH, >= LevelMedium is MEDIUM, else LOW.
	LevelMedium   int `koanf:"level_medium"`
	LevelHigh     int `koanf:"level_high"`
	LevelCritical int `koanf:"level_critical"`
}

// TrustPolicy holds the subscore weights and tier cutoffs.
type TrustPolicy struct {
	QualityWeight     float64 `koanf:"quality_weight"`
	ReliabilityWeight float64 `koanf:"reliability_weight"`
	SafetyWeight      float64 `koanf:"safety_weight"`
	PayoutWeight      float64 `koanf:"payout_weight"`

	// Tier cutoffs: score >= TierExcellent is EXCELLENT, >= TierGood is
	// GOOD, >= TierFair is FAIR, else NEEDS_IMPROVEMENT.
	TierExcellent int `koanf:"tier_excellent"`
	TierGood      int `koanf:"tier_good"`
	TierFair      int `koanf:"tier_fair"`
}

// SchedulerConfig configures the periodic jobs.
type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`

	RiskSweepInterval time.Duration `koanf:"risk_sweep_interval"`
	TrustSweepInterval time.Duration `koanf:"trust_sweep_interval"`
	RankingInterval    time.Duration `koanf:"ranking_interval"`
	RetentionInterval  time.Duration `koanf:"retention_interval"`

	// JobDeadline bounds each job run's wall-clock time.
	JobDeadline time.Duration `koanf:"job_deadline"`

	// Workers is the per-sweep subject recompute parallelism.
	Workers int `koanf:"workers"`

	// SubjectsPerSecond throttles subject recomputes (0 = unlimited).
	SubjectsPerSecond float64 `koanf:"subjects_per_second"`

	// TrustLookback selects subjects with activity in this window for
	// the daily trust sweep.
	TrustLookback time.Duration `koanf:"trust_lookback"`

	// SignalRetentionDays is the signal store retention window.
	SignalRetentionDays int `koanf:"signal_retention_days"`

	// Populations are the ranking populations generated daily.
	Populations []string `koanf:"populations"`
}

// SecurityConfig configures authentication and rate limiting.
type SecurityConfig struct {
	// JWTSecret signs and verifies API bearer tokens. Required unless
	// AuthDisabled is set (development only).
	JWTSecret    string `koanf:"jwt_secret"`
	AuthDisabled bool   `koanf:"auth_disabled"`

	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// APIConfig configures the query surface.
type APIConfig struct {
	DefaultPageSize int  `koanf:"default_page_size"`
	MaxPageSize     int  `koanf:"max_page_size"`
	SwaggerEnabled  bool `koanf:"swagger_enabled"`
}

// LoggingConfig configures the logging package.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks cross-field configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if !c.Security.AuthDisabled && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters (or set security.auth_disabled for development)")
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be positive")
	}
	if c.API.DefaultPageSize < 1 || c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api page sizes invalid: default %d, max %d", c.API.DefaultPageSize, c.API.MaxPageSize)
	}
	return nil
}

// Validate checks the policy block invariants.
func (p *PolicyConfig) Validate() error {
	if len(p.Risk.SeverityPoints) != 5 {
		return fmt.Errorf("policy.risk.severity_points must have exactly 5 entries, got %d", len(p.Risk.SeverityPoints))
	}
	for i := 1; i < len(p.Risk.SeverityPoints); i++ {
		if p.Risk.SeverityPoints[i] <= p.Risk.SeverityPoints[i-1] {
			return fmt.Errorf("policy.risk.severity_points must be strictly increasing")
		}
	}
	if p.Risk.SeverityPoints[0] <= 0 {
		return fmt.Errorf("policy.risk.severity_points must be positive")
	}
	if p.Risk.FullWeightDays <= 0 || p.Risk.HalfWeightDays <= p.Risk.FullWeightDays {
		return fmt.Errorf("policy.risk decay windows invalid: full %d, half %d", p.Risk.FullWeightDays, p.Risk.HalfWeightDays)
	}
	if p.Risk.DecayFloor < 0 || p.Risk.DecayFloor >= 1 {
		return fmt.Errorf("policy.risk.decay_floor must be in [0,1)")
	}
	if !(p.Risk.LevelMedium < p.Risk.LevelHigh && p.Risk.LevelHigh < p.Risk.LevelCritical) {
		return fmt.Errorf("policy.risk level thresholds must be increasing")
	}

	weightSum := p.Trust.QualityWeight + p.Trust.ReliabilityWeight + p.Trust.SafetyWeight + p.Trust.PayoutWeight
	if weightSum < 0.999 || weightSum > 1.001 {
		return fmt.Errorf("policy.trust subscore weights must sum to 1.0, got %.3f", weightSum)
	}
	if !(p.Trust.TierFair < p.Trust.TierGood && p.Trust.TierGood < p.Trust.TierExcellent) {
		return fmt.Errorf("policy.trust tier cutoffs must be increasing")
	}
	return nil
}
