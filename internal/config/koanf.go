// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vigil/config.yaml",
	"/etc/vigil/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "VIGIL_CONFIG"

// Default returns a Config with all built-in defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8470,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "/data/vigil.duckdb",
		},
		KV: KVConfig{
			Path:     "/data/vigil-kv",
			InMemory: false,
		},
		Ingest: IngestConfig{
			Enabled:        true,
			NATS:           false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			StoreDir:       "/data/nats/jetstream",
			StreamName:     "ACTIVITY",
			QueueGroup:     "vigil-detectors",
			RetryCount:     3,
			RetryInterval:  100 * time.Millisecond,
			PoisonTopic:    "activity.poison",
			CloseTimeout:   30 * time.Second,
		},
		Detection: DetectionConfig{
			Enabled:        true,
			ObserveTimeout: 2 * time.Second,
			DedupTTL:       31 * 24 * time.Hour,
		},
		Policy: PolicyConfig{
			Version: 1,
			Risk: RiskPolicy{
				SeverityPoints:    []float64{2, 5, 10, 20, 40},
				FullWeightDays:    30,
				HalfWeightDays:    60,
				DecayHalfLifeDays: 30,
				DecayFloor:        0.10,
				LevelMedium:       15,
				LevelHigh:         35,
				LevelCritical:     70,
			},
			Trust: TrustPolicy{
				QualityWeight:     0.35,
				ReliabilityWeight: 0.30,
				SafetyWeight:      0.25,
				PayoutWeight:      0.10,
				TierExcellent:     85,
				TierGood:          70,
				TierFair:          50,
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:             true,
			RiskSweepInterval:   time.Hour,
			TrustSweepInterval:  24 * time.Hour,
			RankingInterval:     24 * time.Hour,
			RetentionInterval:   24 * time.Hour,
			JobDeadline:         15 * time.Minute,
			Workers:             8,
			SubjectsPerSecond:   0,
			TrustLookback:       30 * 24 * time.Hour,
			SignalRetentionDays: 365,
			Populations:         []string{"creators"},
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			AuthDisabled:    false,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			SwaggerEnabled:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (VIGIL_SERVER_PORT -> server.port)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("VIGIL_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps VIGIL_SECTION_SOME_KEY to section.some_key. The first
// underscore separates the section; the rest of the key keeps its
// underscores (VIGIL_SECURITY_JWT_SECRET -> security.jwt_secret).
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "VIGIL_"))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}

// sliceConfigPaths are parsed from comma-separated env var strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"scheduler.populations",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}
