// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package detection turns activity events into behavioral signals.
// Eight detectors, one per signal type, each a pure function of a narrow
// read-only activity view plus its own threshold configuration. The
// Engine fans events out to the detectors, deduplicates findings, and
// appends the surviving signals to the store.
package detection

import (
	"context"
	"time"

	"github.com/avedell/vigil/internal/signal"
)

// Finding is a detector's positive result for one event.
type Finding struct {
	// Severity is within [signal.MinSeverity, signal.MaxSeverity].
	Severity int

	// Source is the business subsystem attributed on the signal.
	Source signal.Source

	// Window is the detector's evaluation window; dedup buckets align
	// to it so one abuse episode yields one signal per window.
	Window time.Duration

	// ContextRef optionally points at the triggering entity (session,
	// conversation, booking).
	ContextRef string

	// Metadata is the type-specific payload stored with the signal.
	Metadata signal.Metadata
}

// Detector is one abuse-category pattern matcher.
type Detector interface {
	// Type returns the signal type this detector emits.
	Type() signal.Type

	// Relevant reports whether an event kind can affect this detector.
	// The engine skips detectors for which the event is irrelevant.
	Relevant(kind EventKind) bool

	// Detect evaluates the subject's activity as of the event time.
	// A nil Finding means no signal. Errors are internal: the engine
	// logs and drops them, the event publisher never sees them.
	Detect(ctx context.Context, ev Event) (*Finding, error)
}

// scaleSeverity maps threshold excess to severity: meeting the threshold
// is severity 1 and every step of excess adds one, capped at the maximum.
func scaleSeverity(observed, threshold, step int) int {
	if step < 1 {
		step = 1
	}
	severity := 1 + (observed-threshold)/step
	if severity < signal.MinSeverity {
		severity = signal.MinSeverity
	}
	if severity > signal.MaxSeverity {
		severity = signal.MaxSeverity
	}
	return severity
}

// scaleSeverityRatio is scaleSeverity for rate-based thresholds.
func scaleSeverityRatio(observed, threshold, step float64) int {
	if step <= 0 {
		step = 0.1
	}
	severity := 1 + int((observed-threshold)/step)
	if severity < signal.MinSeverity {
		severity = signal.MinSeverity
	}
	if severity > signal.MaxSeverity {
		severity = signal.MaxSeverity
	}
	return severity
}
