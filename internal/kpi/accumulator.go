// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package kpi accumulates business KPIs from the activity stream. It is
// the in-process implementation of the trust aggregator's read-only KPI
// sources for deployments where the business subsystems publish outcome
// events instead of exposing reporting stores.
package kpi

import (
	"context"
	"sync"
	"time"

	"github.com/avedell/vigil/internal/detection"
	"github.com/avedell/vigil/internal/trust"
)

// DefaultLookback is the KPI evaluation window.
const DefaultLookback = 90 * 24 * time.Hour

type sessionEntry struct {
	at     time.Time
	rating float64
}

type bookingEntry struct {
	at   time.Time
	kind detection.EventKind
}

type payoutEntry struct {
	at   time.Time
	kind detection.EventKind
}

type subjectKPIs struct {
	sessions   []sessionEntry
	bookings   []bookingEntry
	payouts    []payoutEntry
	violations []time.Time
}

// Accumulator tracks per-subject KPIs over a sliding lookback window.
// Like the detection tracker it holds working state, not durable data:
// after a restart it warms back up as outcome events arrive.
type Accumulator struct {
	lookback time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	subjects map[string]*subjectKPIs
}

// NewAccumulator creates an empty accumulator. A non-positive lookback
// selects DefaultLookback.
func NewAccumulator(lookback time.Duration) *Accumulator {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Accumulator{
		lookback: lookback,
		now:      time.Now,
		subjects: make(map[string]*subjectKPIs),
	}
}

// Sources bundles the accumulator as all four trust KPI sources.
func (a *Accumulator) Sources() trust.Sources {
	return trust.Sources{
		Sessions:   a,
		Bookings:   a,
		Payouts:    a,
		Moderation: a,
	}
}

// Observe ingests one activity event. Kinds without KPI relevance are
// ignored. It satisfies the ingest Observer contract.
func (a *Accumulator) Observe(_ context.Context, ev detection.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	subject, ok := a.subjects[ev.SubjectID]
	if !ok {
		subject = &subjectKPIs{}
		a.subjects[ev.SubjectID] = subject
	}

	switch ev.Kind {
	case detection.EventSessionEnded:
		subject.sessions = append(subject.sessions, sessionEntry{at: ev.OccurredAt, rating: ev.Rating})
	case detection.EventBookingCreated, detection.EventBookingCompleted,
		detection.EventBookingCancelled, detection.EventBookingRefunded:
		kind := ev.Kind
		if kind == detection.EventBookingCancelled && ev.CancelledBy != detection.CancelledByCreator {
			// Client cancellations do not count against the subject.
			return
		}
		subject.bookings = append(subject.bookings, bookingEntry{at: ev.OccurredAt, kind: kind})
	case detection.EventPayoutAttempted, detection.EventPayoutSucceeded, detection.EventPayoutChargeback:
		subject.payouts = append(subject.payouts, payoutEntry{at: ev.OccurredAt, kind: ev.Kind})
	case detection.EventModerationConfirmed:
		subject.violations = append(subject.violations, ev.OccurredAt)
	}
}

// SessionKPIs implements trust.SessionSource.
func (a *Accumulator) SessionKPIs(_ context.Context, subjectID string) (trust.SessionKPIs, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var kpis trust.SessionKPIs
	subject, ok := a.subjects[subjectID]
	if !ok {
		return kpis, nil
	}

	cutoff := a.now().Add(-a.lookback)
	ratingSum := 0.0
	for _, s := range subject.sessions {
		if s.at.Before(cutoff) {
			continue
		}
		kpis.CompletedSessions++
		if s.rating > 0 {
			kpis.RatedSessions++
			ratingSum += s.rating
		}
	}
	if kpis.RatedSessions > 0 {
		kpis.AvgRating = ratingSum / float64(kpis.RatedSessions)
	}
	return kpis, nil
}

// BookingKPIs implements trust.BookingSource.
func (a *Accumulator) BookingKPIs(_ context.Context, subjectID string) (trust.BookingKPIs, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var kpis trust.BookingKPIs
	subject, ok := a.subjects[subjectID]
	if !ok {
		return kpis, nil
	}

	cutoff := a.now().Add(-a.lookback)
	for _, b := range subject.bookings {
		if b.at.Before(cutoff) {
			continue
		}
		switch b.kind {
		case detection.EventBookingCreated:
			kpis.Bookings++
		case detection.EventBookingCompleted:
			kpis.Completed++
		case detection.EventBookingCancelled:
			kpis.CreatorCancellations++
		case detection.EventBookingRefunded:
			kpis.Refunds++
		}
	}
	return kpis, nil
}

// PayoutKPIs implements trust.PayoutSource.
func (a *Accumulator) PayoutKPIs(_ context.Context, subjectID string) (trust.PayoutKPIs, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var kpis trust.PayoutKPIs
	subject, ok := a.subjects[subjectID]
	if !ok {
		return kpis, nil
	}

	cutoff := a.now().Add(-a.lookback)
	for _, p := range subject.payouts {
		if p.at.Before(cutoff) {
			continue
		}
		switch p.kind {
		case detection.EventPayoutAttempted:
			kpis.Attempts++
		case detection.EventPayoutSucceeded:
			kpis.Succeeded++
		case detection.EventPayoutChargeback:
			kpis.Chargebacks++
		}
	}
	return kpis, nil
}

// ModerationKPIs implements trust.ModerationSource.
func (a *Accumulator) ModerationKPIs(_ context.Context, subjectID string) (trust.ModerationKPIs, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var kpis trust.ModerationKPIs
	subject, ok := a.subjects[subjectID]
	if !ok {
		return kpis, nil
	}

	cutoff := a.now().Add(-a.lookback)
	for _, at := range subject.violations {
		if !at.Before(cutoff) {
			kpis.ConfirmedViolations++
		}
	}
	return kpis, nil
}

// Prune drops entries past the lookback window and forgets subjects that
// went quiet. The retention job calls this periodically.
func (a *Accumulator) Prune(now time.Time) {
	cutoff := now.Add(-a.lookback)

	a.mu.Lock()
	defer a.mu.Unlock()
	for subjectID, subject := range a.subjects {
		subject.sessions = pruneEntries(subject.sessions, func(s sessionEntry) time.Time { return s.at }, cutoff)
		subject.bookings = pruneEntries(subject.bookings, func(b bookingEntry) time.Time { return b.at }, cutoff)
		subject.payouts = pruneEntries(subject.payouts, func(p payoutEntry) time.Time { return p.at }, cutoff)
		subject.violations = pruneEntries(subject.violations, func(at time.Time) time.Time { return at }, cutoff)

		if len(subject.sessions) == 0 && len(subject.bookings) == 0 &&
			len(subject.payouts) == 0 && len(subject.violations) == 0 {
			delete(a.subjects, subjectID)
		}
	}
}

// Subjects returns the number of subjects with tracked KPIs.
func (a *Accumulator) Subjects() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.subjects)
}

func pruneEntries[T any](entries []T, at func(T) time.Time, cutoff time.Time) []T {
	kept := entries[:0]
	for _, e := range entries {
		if !at(e).Before(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}
