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

// PanicSpikeConfig tunes the panic-rate spike detector.
type PanicSpikeConfig struct {
	// Window is the evaluation window.
	Window time.Duration `koanf:"window"`

	// Threshold is the panic trigger count that triggers a signal.
	Threshold int `koanf:"threshold"`
}

// DefaultPanicSpikeConfig returns the default thresholds.
func DefaultPanicSpikeConfig() PanicSpikeConfig {
	return PanicSpikeConfig{
		Window:    24 * time.Hour,
		Threshold: 3,
	}
}

// PanicSpikeDetector flags subjects whose counterparts keep hitting the
// panic alert.
type PanicSpikeDetector struct {
	cfg    PanicSpikeConfig
	safety SafetyView
}

// NewPanicSpikeDetector creates the detector.
func NewPanicSpikeDetector(cfg PanicSpikeConfig, safety SafetyView) *PanicSpikeDetector {
	return &PanicSpikeDetector{cfg: cfg, safety: safety}
}

func (d *PanicSpikeDetector) Type() signal.Type {
	return signal.TypePanicSpike
}

func (d *PanicSpikeDetector) Relevant(kind EventKind) bool {
	return kind == EventPanicTriggered
}

func (d *PanicSpikeDetector) Detect(ctx context.Context, ev Event) (*Finding, error) {
	count, err := d.safety.PanicTriggers(ctx, ev.SubjectID, d.cfg.Window, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if count < d.cfg.Threshold {
		return nil, nil
	}

	return &Finding{
		Severity: scaleSeverity(count, d.cfg.Threshold, 1),
		Source:   signal.SourceSafety,
		Window:   d.cfg.Window,
		Metadata: &signal.PanicSpikeMetadata{
			TriggerCount: count,
			WindowStart:  ev.OccurredAt.Add(-d.cfg.Window),
			WindowEnd:    ev.OccurredAt,
		},
	}, nil
}
