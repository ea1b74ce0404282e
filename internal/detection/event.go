// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package detection

import (
	"errors"
	"time"

	"github.com/avedell/vigil/internal/signal"
)

// EventKind identifies the activity an event describes.
type EventKind string

const (
	EventSessionStarted   EventKind = "session_started"
	EventSessionEnded     EventKind = "session_ended"
	EventMessageSent      EventKind = "message_sent"
	EventBookingCreated   EventKind = "booking_created"
	EventBookingRefunded  EventKind = "booking_refunded"
	EventBookingCancelled EventKind = "booking_cancelled"
	EventPayoutAttempted  EventKind = "payout_attempted"
	EventIdentityReported EventKind = "identity_reported"
	EventPanicTriggered   EventKind = "panic_triggered"

	// Outcome kinds. The detectors ignore these; the KPI accumulator
	// behind the trust subscores consumes them.
	EventBookingCompleted    EventKind = "booking_completed"
	EventPayoutSucceeded     EventKind = "payout_succeeded"
	EventPayoutChargeback    EventKind = "payout_chargeback"
	EventModerationConfirmed EventKind = "moderation_confirmed"
)

// Event is one activity observation published by a business subsystem.
// Only the fields relevant to the kind are populated.
type Event struct {
	Kind       EventKind `json:"kind"`
	SubjectID  string    `json:"subject_id"`
	OccurredAt time.Time `json:"occurred_at"`

	// Session fields (session_started / session_ended). Rating is the
	// post-session rating on session_ended, 0 when unrated.
	SessionID string        `json:"session_id,omitempty"`
	Paid      bool          `json:"paid,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Rating    float64       `json:"rating,omitempty"`

	// Messaging fields (message_sent).
	ConversationID string `json:"conversation_id,omitempty"`
	MessageHash    string `json:"message_hash,omitempty"`

	// Booking fields (booking_*). CancelledBy identifies who cancelled:
	// "creator" cancellations count against the subject.
	BookingID   string `json:"booking_id,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`

	// Identity fields (identity_reported).
	ReporterID string `json:"reporter_id,omitempty"`
}

// CancelledByCreator is the CancelledBy value the self-refunds detector
// counts.
const CancelledByCreator = "creator"

// Source maps the event kind to the business subsystem it came from.
func (e *Event) Source() signal.Source {
	switch e.Kind {
	case EventSessionStarted, EventSessionEnded:
		return signal.SourceCalling
	case EventMessageSent:
		return signal.SourceMessaging
	case EventBookingCreated, EventBookingRefunded, EventBookingCancelled, EventBookingCompleted:
		return signal.SourceBooking
	case EventPayoutAttempted, EventPayoutSucceeded, EventPayoutChargeback:
		return signal.SourcePayout
	case EventIdentityReported:
		return signal.SourceIdentity
	case EventPanicTriggered, EventModerationConfirmed:
		return signal.SourceSafety
	default:
		return ""
	}
}

// Validate checks the structural invariants common to all event kinds.
func (e *Event) Validate() error {
	if e.Kind == "" {
		return errors.New("detection: event kind is required")
	}
	if e.SubjectID == "" {
		return errors.New("detection: event subject_id is required")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("detection: event occurred_at is required")
	}
	return nil
}
