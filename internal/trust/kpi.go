// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package trust

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/avedell/vigil/internal/logging"
)

// SessionKPIs summarizes a subject's session and rating activity.
type SessionKPIs struct {
	CompletedSessions int
	AvgRating         float64 // 0-5, 0 when unrated
	RatedSessions     int
}

// BookingKPIs summarizes a subject's booking outcomes.
type BookingKPIs struct {
	Bookings             int
	Completed            int
	CreatorCancellations int
	Refunds              int
}

// PayoutKPIs summarizes a subject's payout history.
type PayoutKPIs struct {
	Attempts    int
	Succeeded   int
	Chargebacks int
}

// ModerationKPIs summarizes a subject's moderation history.
type ModerationKPIs struct {
	ConfirmedViolations int
}

// The KPI sources are narrow read-only views over the business
// subsystems' reporting stores. Vigil never writes through them.

// SessionSource reads earnings/session KPIs.
type SessionSource interface {
	SessionKPIs(ctx context.Context, subjectID string) (SessionKPIs, error)
}

// BookingSource reads booking/refund KPIs.
type BookingSource interface {
	BookingKPIs(ctx context.Context, subjectID string) (BookingKPIs, error)
}

// PayoutSource reads payout KPIs.
type PayoutSource interface {
	PayoutKPIs(ctx context.Context, subjectID string) (PayoutKPIs, error)
}

// ModerationSource reads moderation KPIs.
type ModerationSource interface {
	ModerationKPIs(ctx context.Context, subjectID string) (ModerationKPIs, error)
}

// Sources bundles the four KPI sources a recompute needs.
type Sources struct {
	Sessions   SessionSource
	Bookings   BookingSource
	Payouts    PayoutSource
	Moderation ModerationSource
}

// guardedSources wraps each source in its own circuit breaker so one
// failing upstream cannot stall trust sweeps against the others. An open
// breaker fails the read immediately; the aggregator then leaves the
// previous record untouched.
type guardedSources struct {
	inner      Sources
	sessions   *gobreaker.CircuitBreaker[SessionKPIs]
	bookings   *gobreaker.CircuitBreaker[BookingKPIs]
	payouts    *gobreaker.CircuitBreaker[PayoutKPIs]
	moderation *gobreaker.CircuitBreaker[ModerationKPIs]
}

func breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("KPI source circuit breaker state change")
		},
	}
}

func newGuardedSources(inner Sources) *guardedSources {
	return &guardedSources{
		inner:      inner,
		sessions:   gobreaker.NewCircuitBreaker[SessionKPIs](breakerSettings("kpi-sessions")),
		bookings:   gobreaker.NewCircuitBreaker[BookingKPIs](breakerSettings("kpi-bookings")),
		payouts:    gobreaker.NewCircuitBreaker[PayoutKPIs](breakerSettings("kpi-payouts")),
		moderation: gobreaker.NewCircuitBreaker[ModerationKPIs](breakerSettings("kpi-moderation")),
	}
}

func (g *guardedSources) SessionKPIs(ctx context.Context, subjectID string) (SessionKPIs, error) {
	return g.sessions.Execute(func() (SessionKPIs, error) {
		return g.inner.Sessions.SessionKPIs(ctx, subjectID)
	})
}

func (g *guardedSources) BookingKPIs(ctx context.Context, subjectID string) (BookingKPIs, error) {
	return g.bookings.Execute(func() (BookingKPIs, error) {
		return g.inner.Bookings.BookingKPIs(ctx, subjectID)
	})
}

func (g *guardedSources) PayoutKPIs(ctx context.Context, subjectID string) (PayoutKPIs, error) {
	return g.payouts.Execute(func() (PayoutKPIs, error) {
		return g.inner.Payouts.PayoutKPIs(ctx, subjectID)
	})
}

func (g *guardedSources) ModerationKPIs(ctx context.Context, subjectID string) (ModerationKPIs, error) {
	return g.moderation.Execute(func() (ModerationKPIs, error) {
		return g.inner.Moderation.ModerationKPIs(ctx, subjectID)
	})
}
