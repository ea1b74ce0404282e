// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package detection

import (
	"context"
	"sync"
	"time"
)

// trackerMaxAge bounds how long activity is retained. It must cover the
// widest detector window (identity_mismatch, 30 days).
const trackerMaxAge = 31 * 24 * time.Hour

// Tracker is the in-memory activity store behind the detector views.
// Events recorded here are working state, not durable data: the signals
// the detectors emit are what persists. After a restart the tracker warms
// back up as new activity arrives.
type Tracker struct {
	mu       sync.RWMutex
	subjects map[string]*subjectActivity
}

type sessionRecord struct {
	id        string
	startedAt time.Time
	endedAt   time.Time // zero while open
	paid      bool
	duration  time.Duration
}

type messageRecord struct {
	at             time.Time
	conversationID string
	hash           string
}

type bookingRecord struct {
	at        time.Time
	kind      EventKind
	byCreator bool
}

type reportRecord struct {
	at         time.Time
	reporterID string
}

type subjectActivity struct {
	sessions []sessionRecord
	messages []messageRecord
	bookings []bookingRecord
	payouts  []time.Time
	reports  []reportRecord
	panics   []time.Time
}

// NewTracker creates an empty activity tracker.
func NewTracker() *Tracker {
	return &Tracker{subjects: make(map[string]*subjectActivity)}
}

// Record ingests one activity event. Unknown kinds are ignored.
func (t *Tracker) Record(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	activity, ok := t.subjects[ev.SubjectID]
	if !ok {
		activity = &subjectActivity{}
		t.subjects[ev.SubjectID] = activity
	}

	switch ev.Kind {
	case EventSessionStarted:
		activity.sessions = append(activity.sessions, sessionRecord{
			id:        ev.SessionID,
			startedAt: ev.OccurredAt,
			paid:      ev.Paid,
		})
	case EventSessionEnded:
		for i := len(activity.sessions) - 1; i >= 0; i-- {
			s := &activity.sessions[i]
			if s.id == ev.SessionID && s.endedAt.IsZero() {
				s.endedAt = ev.OccurredAt
				if ev.Duration > 0 {
					s.duration = ev.Duration
				} else {
					s.duration = ev.OccurredAt.Sub(s.startedAt)
				}
				if ev.Paid {
					s.paid = true
				}
				break
			}
		}
	case EventMessageSent:
		activity.messages = append(activity.messages, messageRecord{
			at:             ev.OccurredAt,
			conversationID: ev.ConversationID,
			hash:           ev.MessageHash,
		})
	case EventBookingCreated, EventBookingRefunded:
		activity.bookings = append(activity.bookings, bookingRecord{
			at:   ev.OccurredAt,
			kind: ev.Kind,
		})
	case EventBookingCancelled:
		activity.bookings = append(activity.bookings, bookingRecord{
			at:        ev.OccurredAt,
			kind:      ev.Kind,
			byCreator: ev.CancelledBy == CancelledByCreator,
		})
	case EventPayoutAttempted:
		activity.payouts = append(activity.payouts, ev.OccurredAt)
	case EventIdentityReported:
		activity.reports = append(activity.reports, reportRecord{
			at:         ev.OccurredAt,
			reporterID: ev.ReporterID,
		})
	case EventPanicTriggered:
		activity.panics = append(activity.panics, ev.OccurredAt)
	}

	activity.prune(ev.OccurredAt.Add(-trackerMaxAge))
}

// Prune drops all activity older than trackerMaxAge relative to now.
// The retention job calls this periodically to bound memory for subjects
// that went quiet.
func (t *Tracker) Prune(now time.Time) {
	cutoff := now.Add(-trackerMaxAge)

	t.mu.Lock()
	defer t.mu.Unlock()
	for subjectID, activity := range t.subjects {
		activity.prune(cutoff)
		if activity.empty() {
			delete(t.subjects, subjectID)
		}
	}
}

// Subjects returns the number of subjects with tracked activity.
func (t *Tracker) Subjects() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subjects)
}

func (a *subjectActivity) prune(cutoff time.Time) {
	a.sessions = pruneFunc(a.sessions, func(s sessionRecord) bool { return s.startedAt.Before(cutoff) })
	a.messages = pruneFunc(a.messages, func(m messageRecord) bool { return m.at.Before(cutoff) })
	a.bookings = pruneFunc(a.bookings, func(b bookingRecord) bool { return b.at.Before(cutoff) })
	a.payouts = pruneFunc(a.payouts, func(at time.Time) bool { return at.Before(cutoff) })
	a.reports = pruneFunc(a.reports, func(r reportRecord) bool { return r.at.Before(cutoff) })
	a.panics = pruneFunc(a.panics, func(at time.Time) bool { return at.Before(cutoff) })
}

func (a *subjectActivity) empty() bool {
	return len(a.sessions) == 0 && len(a.messages) == 0 && len(a.bookings) == 0 &&
		len(a.payouts) == 0 && len(a.reports) == 0 && len(a.panics) == 0
}

func pruneFunc[T any](records []T, stale func(T) bool) []T {
	kept := records[:0]
	for _, r := range records {
		if !stale(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

func inWindow(at, asOf time.Time, window time.Duration) bool {
	return !at.Before(asOf.Add(-window)) && !at.After(asOf)
}

// ShortPaidSessions implements SessionView.
func (t *Tracker) ShortPaidSessions(_ context.Context, subjectID string, maxDuration, window time.Duration, asOf time.Time) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	activity, ok := t.subjects[subjectID]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, s := range activity.sessions {
		if s.paid && !s.endedAt.IsZero() && s.duration < maxDuration && inWindow(s.endedAt, asOf, window) {
			count++
		}
	}
	return count, nil
}

// OpenSessions implements SessionView.
func (t *Tracker) OpenSessions(_ context.Context, subjectID string, window time.Duration, asOf time.Time) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	activity, ok := t.subjects[subjectID]
	if !ok {
		return nil, nil
	}
	var ids []string
	for _, s := range activity.sessions {
		if s.endedAt.IsZero() && inWindow(s.startedAt, asOf, window) {
			ids = append(ids, s.id)
		}
	}
	return ids, nil
}

// ConversationsWithHash implements MessageView.
func (t *Tracker) ConversationsWithHash(_ context.Context, subjectID, hash string, window time.Duration, asOf time.Time) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	activity, ok := t.subjects[subjectID]
	if !ok || hash == "" {
		return nil, nil
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range activity.messages {
		if m.hash != hash || !inWindow(m.at, asOf, window) {
			continue
		}
		if _, dup := seen[m.conversationID]; dup {
			continue
		}
		seen[m.conversationID] = struct{}{}
		ids = append(ids, m.conversationID)
	}
	return ids, nil
}

// BookingStats implements BookingView.
func (t *Tracker) BookingStats(_ context.Context, subjectID string, window time.Duration, asOf time.Time) (int, int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	activity, ok := t.subjects[subjectID]
	if !ok {
		return 0, 0, nil
	}
	bookings, refunds := 0, 0
	for _, b := range activity.bookings {
		if !inWindow(b.at, asOf, window) {
			continue
		}
		switch b.kind {
		case EventBookingCreated:
			bookings++
		case EventBookingRefunded:
			refunds++
		}
	}
	return bookings, refunds, nil
}

// CreatorCancellations implements BookingView.
func (t *Tracker) CreatorCancellations(_ context.Context, subjectID string, window time.Duration, asOf time.Time) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	activity, ok := t.subjects[subjectID]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, b := range activity.bookings {
		if b.kind == EventBookingCancelled && b.byCreator && inWindow(b.at, asOf, window) {
			count++
		}
	}
	return count, nil
}

// PayoutAttempts implements PayoutView.
func (t *Tracker) PayoutAttempts(_ context.Context, subjectID string, window time.Duration, asOf time.Time) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	activity, ok := t.subjects[subjectID]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, at := range activity.payouts {
		if inWindow(at, asOf, window) {
			count++
		}
	}
	return count, nil
}

// DistinctReporters implements IdentityView.
func (t *Tracker) DistinctReporters(_ context.Context, subjectID string, window time.Duration, asOf time.Time) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	activity, ok := t.subjects[subjectID]
	if !ok {
		return nil, nil
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range activity.reports {
		if !inWindow(r.at, asOf, window) {
			continue
		}
		if _, dup := seen[r.reporterID]; dup {
			continue
		}
		seen[r.reporterID] = struct{}{}
		ids = append(ids, r.reporterID)
	}
	return ids, nil
}

// PanicTriggers implements SafetyView.
func (t *Tracker) PanicTriggers(_ context.Context, subjectID string, window time.Duration, asOf time.Time) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	activity, ok := t.subjects[subjectID]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, at := range activity.panics {
		if inWindow(at, asOf, window) {
			count++
		}
	}
	return count, nil
}
