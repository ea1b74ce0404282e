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

// PayoutAbuseConfig tunes the payout-abuse detector.
type PayoutAbuseConfig struct {
	// Window is the evaluation window.
	Window time.Duration `koanf:"window"`

	// Threshold is the payout attempt count that triggers.
	Threshold int `koanf:"threshold"`
}

// DefaultPayoutAbuseConfig returns the default thresholds.
func DefaultPayoutAbuseConfig() PayoutAbuseConfig {
	return PayoutAbuseConfig{
		Window:    time.Hour,
		Threshold: 3,
	}
}

// PayoutAbuseDetector flags subjects hammering the payout endpoint.
type PayoutAbuseDetector struct {
	cfg     PayoutAbuseConfig
	payouts PayoutView
}

// NewPayoutAbuseDetector creates the detector.
func NewPayoutAbuseDetector(cfg PayoutAbuseConfig, payouts PayoutView) *PayoutAbuseDetector {
	return &PayoutAbuseDetector{cfg: cfg, payouts: payouts}
}

func (d *PayoutAbuseDetector) Type() signal.Type {
	return signal.TypePayoutAbuse
}

func (d *PayoutAbuseDetector) Relevant(kind EventKind) bool {
	return kind == EventPayoutAttempted
}

func (d *PayoutAbuseDetector) Detect(ctx context.Context, ev Event) (*Finding, error) {
	count, err := d.payouts.PayoutAttempts(ctx, ev.SubjectID, d.cfg.Window, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if count < d.cfg.Threshold {
		return nil, nil
	}

	return &Finding{
		Severity: scaleSeverity(count, d.cfg.Threshold, 1),
		Source:   signal.SourcePayout,
		Window:   d.cfg.Window,
		Metadata: &signal.PayoutAbuseMetadata{
			AttemptCount: count,
			WindowStart:  ev.OccurredAt.Add(-d.cfg.Window),
			WindowEnd:    ev.OccurredAt,
		},
	}, nil
}
