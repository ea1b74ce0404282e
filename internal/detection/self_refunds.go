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

// SelfRefundsConfig tunes the self-refunds detector.
type SelfRefundsConfig struct {
	// Window is the evaluation window.
	Window time.Duration `koanf:"window"`

	// Threshold is the creator-cancellation count that triggers.
	Threshold int `koanf:"threshold"`
}

// DefaultSelfRefundsConfig returns the default thresholds.
func DefaultSelfRefundsConfig() SelfRefundsConfig {
	return SelfRefundsConfig{
		Window:    7 * 24 * time.Hour,
		Threshold: 5,
	}
}

// SelfRefundsDetector flags creators repeatedly cancelling their own
// bookings.
type SelfRefundsDetector struct {
	cfg      SelfRefundsConfig
	bookings BookingView
}

// NewSelfRefundsDetector creates the detector.
func NewSelfRefundsDetector(cfg SelfRefundsConfig, bookings BookingView) *SelfRefundsDetector {
	return &SelfRefundsDetector{cfg: cfg, bookings: bookings}
}

func (d *SelfRefundsDetector) Type() signal.Type {
	return signal.TypeSelfRefunds
}

func (d *SelfRefundsDetector) Relevant(kind EventKind) bool {
	return kind == EventBookingCancelled
}

func (d *SelfRefundsDetector) Detect(ctx context.Context, ev Event) (*Finding, error) {
	// Only creator-initiated cancellations count; a customer cancelling
	// says nothing about the creator.
	if ev.CancelledBy != CancelledByCreator {
		return nil, nil
	}

	count, err := d.bookings.CreatorCancellations(ctx, ev.SubjectID, d.cfg.Window, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if count < d.cfg.Threshold {
		return nil, nil
	}

	return &Finding{
		Severity:   scaleSeverity(count, d.cfg.Threshold, 1),
		Source:     signal.SourceBooking,
		Window:     d.cfg.Window,
		ContextRef: ev.BookingID,
		Metadata: &signal.SelfRefundsMetadata{
			CancellationCount: count,
			WindowStart:       ev.OccurredAt.Add(-d.cfg.Window),
			WindowEnd:         ev.OccurredAt,
		},
	}, nil
}
