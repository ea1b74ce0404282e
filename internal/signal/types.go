// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package signal defines the immutable behavioral Signal record and its
// append-only store. Signals are the only input to risk aggregation:
// detectors write them, aggregators read them, nothing ever updates them.
package signal

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Source identifies the business subsystem whose activity raised a signal.
type Source string

const (
	SourceMessaging Source = "messaging"
	SourceCalling   Source = "calling"
	SourceBooking   Source = "booking"
	SourcePayout    Source = "payout"
	SourceIdentity  Source = "identity"
	SourceSafety    Source = "safety"
)

// Type identifies the abuse category a signal belongs to.
// The set is closed: adding a category means adding a constant here, a
// metadata variant in metadata.go, and a detector — all compile-visible.
type Type string

const (
	TypeTokenDrain       Type = "token_drain"
	TypeSessionSpam      Type = "session_spam"
	TypeCopyPaste        Type = "copy_paste"
	TypeFakeBookings     Type = "fake_bookings"
	TypeSelfRefunds      Type = "self_refunds"
	TypePayoutAbuse      Type = "payout_abuse"
	TypeIdentityMismatch Type = "identity_mismatch"
	TypePanicSpike       Type = "panic_spike"
)

// AllTypes lists every signal type, in a fixed order.
func AllTypes() []Type {
	return []Type{
		TypeTokenDrain,
		TypeSessionSpam,
		TypeCopyPaste,
		TypeFakeBookings,
		TypeSelfRefunds,
		TypePayoutAbuse,
		TypeIdentityMismatch,
		TypePanicSpike,
	}
}

// Severity bounds. Every signal carries a severity in [MinSeverity, MaxSeverity].
const (
	MinSeverity = 1
	MaxSeverity = 5
)

// Signal is an immutable record of one detected behavioral event.
// Once appended it is never mutated; the retention pruner is the only
// deletion path.
type Signal struct {
	ID         string          `json:"id"`
	SubjectID  string          `json:"subject_id"`
	Source     Source          `json:"source"`
	Type       Type            `json:"type"`
	Severity   int             `json:"severity"` // 1-5
	ContextRef string          `json:"context_ref,omitempty"`
	DetectedAt time.Time       `json:"detected_at"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Validate checks the structural invariants of a signal before append.
func (s *Signal) Validate() error {
	if s.SubjectID == "" {
		return errors.New("signal: subject_id is required")
	}
	if s.Type == "" {
		return errors.New("signal: type is required")
	}
	if s.Severity < MinSeverity || s.Severity > MaxSeverity {
		return errors.New("signal: severity out of range [1,5]")
	}
	if s.DetectedAt.IsZero() {
		return errors.New("signal: detected_at is required")
	}
	return nil
}

// Filter defines filtering options for signal queries.
type Filter struct {
	SubjectID   string     `json:"subject_id,omitempty"`
	Sources     []Source   `json:"sources,omitempty"`
	Types       []Type     `json:"types,omitempty"`
	MinSeverity int        `json:"min_severity,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("signal: not found")

// Store is the append-only signal log.
type Store interface {
	// Append persists a new signal. The signal ID is assigned if empty.
	Append(ctx context.Context, s *Signal) error

	// List retrieves signals matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]Signal, error)

	// Count returns the number of signals matching the filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// History retrieves a subject's full signal history, newest first.
	History(ctx context.Context, subjectID string) ([]Signal, error)

	// CountsByType returns per-type signal counts for a subject.
	CountsByType(ctx context.Context, subjectID string) (map[Type]int, error)

	// ActiveSubjects returns subject IDs with at least one signal at or
	// after since. Used by the sweep jobs to bound their working set.
	ActiveSubjects(ctx context.Context, since time.Time) ([]string, error)

	// PruneOlderThan deletes signals detected before the cutoff and
	// returns the number removed. This is the retention job's entry point.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
