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

// CopyPasteConfig tunes the copy-paste behavior detector.
type CopyPasteConfig struct {
	// Window is the evaluation window.
	Window time.Duration `koanf:"window"`

	// Threshold is the distinct-conversation count for one message hash
	// that triggers a signal.
	Threshold int `koanf:"threshold"`
}

// DefaultCopyPasteConfig returns the default thresholds.
func DefaultCopyPasteConfig() CopyPasteConfig {
	return CopyPasteConfig{
		Window:    10 * time.Minute,
		Threshold: 3,
	}
}

// CopyPasteDetector flags subjects blasting the same message into many
// conversations. Only content hashes cross the wire; Vigil never sees
// message bodies.
type CopyPasteDetector struct {
	cfg      CopyPasteConfig
	messages MessageView
}

// NewCopyPasteDetector creates the detector.
func NewCopyPasteDetector(cfg CopyPasteConfig, messages MessageView) *CopyPasteDetector {
	return &CopyPasteDetector{cfg: cfg, messages: messages}
}

func (d *CopyPasteDetector) Type() signal.Type {
	return signal.TypeCopyPaste
}

func (d *CopyPasteDetector) Relevant(kind EventKind) bool {
	return kind == EventMessageSent
}

func (d *CopyPasteDetector) Detect(ctx context.Context, ev Event) (*Finding, error) {
	ids, err := d.messages.ConversationsWithHash(ctx, ev.SubjectID, ev.MessageHash, d.cfg.Window, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if len(ids) < d.cfg.Threshold {
		return nil, nil
	}

	return &Finding{
		Severity:   scaleSeverity(len(ids), d.cfg.Threshold, 1),
		Source:     signal.SourceMessaging,
		Window:     d.cfg.Window,
		ContextRef: ev.ConversationID,
		Metadata: &signal.CopyPasteMetadata{
			MessageHash:       ev.MessageHash,
			ConversationCount: len(ids),
			ConversationIDs:   ids,
		},
	}, nil
}
