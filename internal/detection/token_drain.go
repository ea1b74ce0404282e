// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package detection

import (
	"context"
	"time"

	"github.com/avedell/vigil/internal/signal"
)

// TokenDrainConfig tunes the token-drain detector.
type TokenDrainConfig struct {
	// MaxDuration is what counts as a "short" session.
	MaxDuration time.Duration `koanf:"max_duration"`

	// Window is the evaluation window.
	Window time.Duration `koanf:"window"`

	// Threshold is the short paid session count that triggers a signal.
	Threshold int `koanf:"threshold"`
}

// DefaultTokenDrainConfig returns the default thresholds.
func DefaultTokenDrainConfig() TokenDrainConfig {
	return TokenDrainConfig{
		MaxDuration: 30 * time.Second,
		Window:      24 * time.Hour,
		Threshold:   5,
	}
}

// TokenDrainDetector flags subjects running many very short paid
// sessions, the pattern of draining caller tokens without delivering a
// real session.
type TokenDrainDetector struct {
	cfg      TokenDrainConfig
	sessions SessionView
}

// NewTokenDrainDetector creates the detector.
func NewTokenDrainDetector(cfg TokenDrainConfig, sessions SessionView) *TokenDrainDetector {
	return &TokenDrainDetector{cfg: cfg, sessions: sessions}
}

func (d *TokenDrainDetector) Type() signal.Type {
	return signal.TypeTokenDrain
}

func (d *TokenDrainDetector) Relevant(kind EventKind) bool {
	return kind == EventSessionEnded
}

func (d *TokenDrainDetector) Detect(ctx context.Context, ev Event) (*Finding, error) {
	count, err := d.sessions.ShortPaidSessions(ctx, ev.SubjectID, d.cfg.MaxDuration, d.cfg.Window, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if count < d.cfg.Threshold {
		return nil, nil
	}

	return &Finding{
		Severity:   scaleSeverity(count, d.cfg.Threshold, 1),
		Source:     signal.SourceCalling,
		Window:     d.cfg.Window,
		ContextRef: ev.SessionID,
		Metadata: &signal.TokenDrainMetadata{
			ShortSessionCount: count,
			MaxDuration:       d.cfg.MaxDuration,
			WindowStart:       ev.OccurredAt.Add(-d.cfg.Window),
			WindowEnd:         ev.OccurredAt,
		},
	}, nil
}
