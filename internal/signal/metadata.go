// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package signal

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Metadata is the closed tagged union of signal-type-specific payloads.
// Exactly one variant exists per signal type; DecodeMetadata's switch is
// exhaustive, so a new type cannot be added without the compiler (and the
// default case) surfacing every place that must change.
type Metadata interface {
	// Kind returns the signal type this metadata belongs to.
	Kind() Type
}

// TokenDrainMetadata details a token-drain pattern detection.
type TokenDrainMetadata struct {
	ShortSessionCount int           `json:"short_session_count"`
	MaxDuration       time.Duration `json:"max_duration"`
	WindowStart       time.Time     `json:"window_start"`
	WindowEnd         time.Time     `json:"window_end"`
}

func (TokenDrainMetadata) Kind() Type { return TypeTokenDrain }

// SessionSpamMetadata details a multi-session spam detection.
type SessionSpamMetadata struct {
	ConcurrentCount int       `json:"concurrent_count"`
	SessionIDs      []string  `json:"session_ids"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
}

func (SessionSpamMetadata) Kind() Type { return TypeSessionSpam }

// CopyPasteMetadata details a copy-paste behavior detection.
type CopyPasteMetadata struct {
	MessageHash       string   `json:"message_hash"`
	ConversationCount int      `json:"conversation_count"`
	ConversationIDs   []string `json:"conversation_ids"`
}

func (CopyPasteMetadata) Kind() Type { return TypeCopyPaste }

// FakeBookingsMetadata details a fake-bookings detection.
type FakeBookingsMetadata struct {
	BookingCount int     `json:"booking_count"`
	RefundCount  int     `json:"refund_count"`
	RefundRate   float64 `json:"refund_rate"`
}

func (FakeBookingsMetadata) Kind() Type { return TypeFakeBookings }

// SelfRefundsMetadata details a self-refunds detection.
type SelfRefundsMetadata struct {
	CancellationCount int       `json:"cancellation_count"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
}

func (SelfRefundsMetadata) Kind() Type { return TypeSelfRefunds }

// PayoutAbuseMetadata details a payout-abuse detection.
type PayoutAbuseMetadata struct {
	AttemptCount int       `json:"attempt_count"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

func (PayoutAbuseMetadata) Kind() Type { return TypePayoutAbuse }

// IdentityMismatchMetadata details an identity-mismatch detection.
type IdentityMismatchMetadata struct {
	ReporterCount int      `json:"reporter_count"`
	ReporterIDs   []string `json:"reporter_ids"`
}

func (IdentityMismatchMetadata) Kind() Type { return TypeIdentityMismatch }

// PanicSpikeMetadata details a panic-rate spike detection.
type PanicSpikeMetadata struct {
	TriggerCount int       `json:"trigger_count"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

func (PanicSpikeMetadata) Kind() Type { return TypePanicSpike }

// metadataEnvelope is the wire form: the kind tag selects the payload type.
type metadataEnvelope struct {
	Kind    Type            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeMetadata serializes a metadata variant into its tagged wire form.
func EncodeMetadata(m Metadata) (json.RawMessage, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata payload: %w", err)
	}
	raw, err := json.Marshal(metadataEnvelope{Kind: m.Kind(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode metadata envelope: %w", err)
	}
	return raw, nil
}

// DecodeMetadata deserializes a tagged wire form back into its variant.
func DecodeMetadata(raw json.RawMessage) (Metadata, error) {
	var env metadataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode metadata envelope: %w", err)
	}

	var m Metadata
	switch env.Kind {
	case TypeTokenDrain:
		m = &TokenDrainMetadata{}
	case TypeSessionSpam:
		m = &SessionSpamMetadata{}
	case TypeCopyPaste:
		m = &CopyPasteMetadata{}
	case TypeFakeBookings:
		m = &FakeBookingsMetadata{}
	case TypeSelfRefunds:
		m = &SelfRefundsMetadata{}
	case TypePayoutAbuse:
		m = &PayoutAbuseMetadata{}
	case TypeIdentityMismatch:
		m = &IdentityMismatchMetadata{}
	case TypePanicSpike:
		m = &PanicSpikeMetadata{}
	default:
		return nil, fmt.Errorf("decode metadata: unknown kind %q", env.Kind)
	}

	if err := json.Unmarshal(env.Payload, m); err != nil {
		return nil, fmt.Errorf("decode %s metadata payload: %w", env.Kind, err)
	}
	return m, nil
}
