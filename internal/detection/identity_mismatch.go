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

// IdentityMismatchConfig tunes the identity-mismatch detector.
type IdentityMismatchConfig struct {
	// Window is the evaluation window.
	Window time.Duration `koanf:"window"`

	// Threshold is the distinct-reporter count that triggers.
	Threshold int `koanf:"threshold"`
}

// DefaultIdentityMismatchConfig returns the default thresholds.
func DefaultIdentityMismatchConfig() IdentityMismatchConfig {
	return IdentityMismatchConfig{
		Window:    30 * 24 * time.Hour,
		Threshold: 3,
	}
}

// IdentityMismatchDetector flags subjects reported by several distinct
// users as not matching their profile. Repeat reports from one reporter
// count once.
type IdentityMismatchDetector struct {
	cfg     IdentityMismatchConfig
	reports IdentityView
}

// NewIdentityMismatchDetector creates the detector.
func NewIdentityMismatchDetector(cfg IdentityMismatchConfig, reports IdentityView) *IdentityMismatchDetector {
	return &IdentityMismatchDetector{cfg: cfg, reports: reports}
}

func (d *IdentityMismatchDetector) Type() signal.Type {
	return signal.TypeIdentityMismatch
}

func (d *IdentityMismatchDetector) Relevant(kind EventKind) bool {
	return kind == EventIdentityReported
}

func (d *IdentityMismatchDetector) Detect(ctx context.Context, ev Event) (*Finding, error) {
	reporters, err := d.reports.DistinctReporters(ctx, ev.SubjectID, d.cfg.Window, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if len(reporters) < d.cfg.Threshold {
		return nil, nil
	}

	return &Finding{
		Severity: scaleSeverity(len(reporters), d.cfg.Threshold, 1),
		Source:   signal.SourceIdentity,
		Window:   d.cfg.Window,
		Metadata: &signal.IdentityMismatchMetadata{
			ReporterCount: len(reporters),
			ReporterIDs:   reporters,
		},
	}, nil
}
