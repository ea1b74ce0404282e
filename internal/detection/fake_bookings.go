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

// FakeBookingsConfig tunes the fake-bookings detector.
type FakeBookingsConfig struct {
	// Window is the evaluation window.
	Window time.Duration `koanf:"window"`

	// MinRefunds is the refund count below which the rate is ignored
	// (a single refunded booking is a 100% rate but not a pattern).
	MinRefunds int `koanf:"min_refunds"`

	// RateThreshold is the refund rate that triggers a signal.
	RateThreshold float64 `koanf:"rate_threshold"`
}

// DefaultFakeBookingsConfig returns the default thresholds.
func DefaultFakeBookingsConfig() FakeBookingsConfig {
	return FakeBookingsConfig{
		Window:        30 * 24 * time.Hour,
		MinRefunds:    3,
		RateThreshold: 0.6,
	}
}

// FakeBookingsDetector flags subjects whose bookings are mostly refunded,
// the signature of booking inflation through refund churn.
type FakeBookingsDetector struct {
	cfg      FakeBookingsConfig
	bookings BookingView
}

// NewFakeBookingsDetector creates the detector.
func NewFakeBookingsDetector(cfg FakeBookingsConfig, bookings BookingView) *FakeBookingsDetector {
	return &FakeBookingsDetector{cfg: cfg, bookings: bookings}
}

func (d *FakeBookingsDetector) Type() signal.Type {
	return signal.TypeFakeBookings
}

func (d *FakeBookingsDetector) Relevant(kind EventKind) bool {
	return kind == EventBookingRefunded
}

func (d *FakeBookingsDetector) Detect(ctx context.Context, ev Event) (*Finding, error) {
	bookings, refunds, err := d.bookings.BookingStats(ctx, ev.SubjectID, d.cfg.Window, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if refunds < d.cfg.MinRefunds || bookings == 0 {
		return nil, nil
	}
	rate := float64(refunds) / float64(bookings)
	if rate < d.cfg.RateThreshold {
		return nil, nil
	}

	return &Finding{
		Severity:   scaleSeverityRatio(rate, d.cfg.RateThreshold, 0.1),
		Source:     signal.SourceBooking,
		Window:     d.cfg.Window,
		ContextRef: ev.BookingID,
		Metadata: &signal.FakeBookingsMetadata{
			BookingCount: bookings,
			RefundCount:  refunds,
			RefundRate:   rate,
		},
	}, nil
}
