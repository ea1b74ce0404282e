// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/avedell/vigil/internal/detection"
	"github.com/avedell/vigil/internal/trust"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
}

func newTestAccumulator() *Accumulator {
	a := NewAccumulator(0)
	a.now = fixedNow
	return a
}

func TestSessionKPIs(t *testing.T) {
	a := newTestAccumulator()
	ctx := context.Background()
	now := fixedNow()

	a.Observe(ctx, detection.Event{Kind: detection.EventSessionEnded, SubjectID: "sub-1", OccurredAt: now.Add(-time.Hour), Rating: 5})
	a.Observe(ctx, detection.Event{Kind: detection.EventSessionEnded, SubjectID: "sub-1", OccurredAt: now.Add(-2 * time.Hour), Rating: 4})
	a.Observe(ctx, detection.Event{Kind: detection.EventSessionEnded, SubjectID: "sub-1", OccurredAt: now.Add(-3 * time.Hour)})
	// Outside the lookback window.
	a.Observe(ctx, detection.Event{Kind: detection.EventSessionEnded, SubjectID: "sub-1", OccurredAt: now.Add(-100 * 24 * time.Hour), Rating: 1})

	kpis, err := a.SessionKPIs(ctx, "sub-1")
	if err != nil {
		t.Fatal(err)
	}
	if kpis.CompletedSessions != 3 {
		t.Errorf("CompletedSessions = %d, want 3", kpis.CompletedSessions)
	}
	if kpis.RatedSessions != 2 {
		t.Errorf("RatedSessions = %d, want 2", kpis.RatedSessions)
	}
	if kpis.AvgRating != 4.5 {
		t.Errorf("AvgRating = %v, want 4.5", kpis.AvgRating)
	}
}

func TestBookingKPIsIgnoresClientCancellations(t *testing.T) {
	a := newTestAccumulator()
	ctx := context.Background()
	now := fixedNow()

	a.Observe(ctx, detection.Event{Kind: detection.EventBookingCreated, SubjectID: "sub-1", OccurredAt: now})
	a.Observe(ctx, detection.Event{Kind: detection.EventBookingCompleted, SubjectID: "sub-1", OccurredAt: now})
	a.Observe(ctx, detection.Event{Kind: detection.EventBookingRefunded, SubjectID: "sub-1", OccurredAt: now})
	a.Observe(ctx, detection.Event{Kind: detection.EventBookingCancelled, SubjectID: "sub-1", OccurredAt: now, CancelledBy: detection.CancelledByCreator})
	a.Observe(ctx, detection.Event{Kind: detection.EventBookingCancelled, SubjectID: "sub-1", OccurredAt: now, CancelledBy: "client"})

	kpis, err := a.BookingKPIs(ctx, "sub-1")
	if err != nil {
		t.Fatal(err)
	}
	want := [4]int{1, 1, 1, 1}
	got := [4]int{kpis.Bookings, kpis.Completed, kpis.CreatorCancellations, kpis.Refunds}
	if got != want {
		t.Errorf("booking KPIs = %v, want %v", got, want)
	}
}

func TestPayoutAndModerationKPIs(t *testing.T) {
	a := newTestAccumulator()
	ctx := context.Background()
	now := fixedNow()

	a.Observe(ctx, detection.Event{Kind: detection.EventPayoutAttempted, SubjectID: "sub-1", OccurredAt: now})
	a.Observe(ctx, detection.Event{Kind: detection.EventPayoutSucceeded, SubjectID: "sub-1", OccurredAt: now})
	a.Observe(ctx, detection.Event{Kind: detection.EventPayoutChargeback, SubjectID: "sub-1", OccurredAt: now})
	a.Observe(ctx, detection.Event{Kind: detection.EventModerationConfirmed, SubjectID: "sub-1", OccurredAt: now})

	payouts, err := a.PayoutKPIs(ctx, "sub-1")
	if err != nil {
		t.Fatal(err)
	}
	if payouts.Attempts != 1 || payouts.Succeeded != 1 || payouts.Chargebacks != 1 {
		t.Errorf("payout KPIs = %+v", payouts)
	}

	moderation, err := a.ModerationKPIs(ctx, "sub-1")
	if err != nil {
		t.Fatal(err)
	}
	if moderation.ConfirmedViolations != 1 {
		t.Errorf("ConfirmedViolations = %d, want 1", moderation.ConfirmedViolations)
	}
}

func TestUnknownSubjectIsNeutral(t *testing.T) {
	a := newTestAccumulator()
	ctx := context.Background()

	sessions, err := a.SessionKPIs(ctx, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if sessions != (trust.SessionKPIs{}) {
		t.Errorf("sessions = %+v, want zero", sessions)
	}
}

func TestPruneForgetsQuietSubjects(t *testing.T) {
	a := newTestAccumulator()
	ctx := context.Background()
	now := fixedNow()

	a.Observe(ctx, detection.Event{Kind: detection.EventSessionEnded, SubjectID: "stale", OccurredAt: now.Add(-100 * 24 * time.Hour)})
	a.Observe(ctx, detection.Event{Kind: detection.EventSessionEnded, SubjectID: "fresh", OccurredAt: now.Add(-time.Hour)})
	if a.Subjects() != 2 {
		t.Fatalf("Subjects = %d, want 2", a.Subjects())
	}

	a.Prune(now)
	if a.Subjects() != 1 {
		t.Errorf("Subjects after prune = %d, want 1", a.Subjects())
	}

	kpis, err := a.SessionKPIs(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if kpis.CompletedSessions != 1 {
		t.Errorf("fresh subject lost its session")
	}
}

func TestObserveIgnoresDetectorOnlyKinds(t *testing.T) {
	a := newTestAccumulator()
	ctx := context.Background()
	now := fixedNow()

	a.Observe(ctx, detection.Event{Kind: detection.EventMessageSent, SubjectID: "sub-1", OccurredAt: now})
	a.Observe(ctx, detection.Event{Kind: detection.EventPanicTriggered, SubjectID: "sub-1", OccurredAt: now})

	// The subject map entry exists but holds nothing; Prune clears it.
	a.Prune(now)
	if a.Subjects() != 0 {
		t.Errorf("Subjects = %d, want 0", a.Subjects())
	}
}
