// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package detection

import (
	"context"
	"time"
)

// The detectors are pure functions of these narrow read-only activity
// views. Each detector sees only the view it needs; every query takes an
// explicit asOf so evaluation is reproducible.

// SessionView exposes paid-session activity.
type SessionView interface {
	// ShortPaidSessions counts paid sessions that ended within the window
	// with a duration under maxDuration.
	ShortPaidSessions(ctx context.Context, subjectID string, maxDuration, window time.Duration, asOf time.Time) (int, error)

	// OpenSessions returns ids of sessions opened within the window that
	// have not ended.
	OpenSessions(ctx context.Context, subjectID string, window time.Duration, asOf time.Time) ([]string, error)
}

// MessageView exposes messaging activity.
type MessageView interface {
	// ConversationsWithHash returns the distinct conversation ids in which
	// the subject sent a message with the given content hash within the
	// window.
	ConversationsWithHash(ctx context.Context, subjectID, hash string, window time.Duration, asOf time.Time) ([]string, error)
}

// BookingView exposes booking outcomes.
type BookingView interface {
	// BookingStats returns booking and refund counts within the window.
	BookingStats(ctx context.Context, subjectID string, window time.Duration, asOf time.Time) (bookings, refunds int, err error)

	// CreatorCancellations counts creator-initiated cancellations within
	// the window.
	CreatorCancellations(ctx context.Context, subjectID string, window time.Duration, asOf time.Time) (int, error)
}

// PayoutView exposes payout activity.
type PayoutView interface {
	PayoutAttempts(ctx context.Context, subjectID string, window time.Duration, asOf time.Time) (int, error)
}

// IdentityView exposes identity report activity.
type IdentityView interface {
	// DistinctReporters returns the distinct reporter ids that flagged the
	// subject within the window.
	DistinctReporters(ctx context.Context, subjectID string, window time.Duration, asOf time.Time) ([]string, error)
}

// SafetyView exposes panic alert activity.
type SafetyView interface {
	PanicTriggers(ctx context.Context, subjectID string, window time.Duration, asOf time.Time) (int, error)
}

// ActivityView is the union of all views; the Tracker implements it.
type ActivityView interface {
	SessionView
	MessageView
	BookingView
	PayoutView
	IdentityView
	SafetyView
}
