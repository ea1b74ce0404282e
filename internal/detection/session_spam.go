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

// SessionSpamConfig tunes the multi-session spam detector.
type SessionSpamConfig struct {
	// Window is how far back concurrent session opens count.
	Window time.Duration `koanf:"window"`

	// Threshold is the concurrent open-session count that triggers.
	Threshold int `koanf:"threshold"`
}

// DefaultSessionSpamConfig returns the default thresholds.
func DefaultSessionSpamConfig() SessionSpamConfig {
	return SessionSpamConfig{
		Window:    5 * time.Minute,
		Threshold: 3,
	}
}

// SessionSpamDetector flags subjects opening many sessions at once.
type SessionSpamDetector struct {
	cfg      SessionSpamConfig
	sessions SessionView
}

// NewSessionSpamDetector creates the detector.
func NewSessionSpamDetector(cfg SessionSpamConfig, sessions SessionView) *SessionSpamDetector {
	return &SessionSpamDetector{cfg: cfg, sessions: sessions}
}

func (d *SessionSpamDetector) Type() signal.Type {
	return signal.TypeSessionSpam
}

func (d *SessionSpamDetector) Relevant(kind EventKind) bool {
	return kind == EventSessionStarted
}

func (d *SessionSpamDetector) Detect(ctx context.Context, ev Event) (*Finding, error) {
	ids, err := d.sessions.OpenSessions(ctx, ev.SubjectID, d.cfg.Window, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if len(ids) < d.cfg.Threshold {
		return nil, nil
	}

	return &Finding{
		Severity:   scaleSeverity(len(ids), d.cfg.Threshold, 1),
		Source:     signal.SourceCalling,
		Window:     d.cfg.Window,
		ContextRef: ev.SessionID,
		Metadata: &signal.SessionSpamMetadata{
			ConcurrentCount: len(ids),
			SessionIDs:      ids,
			WindowStart:     ev.OccurredAt.Add(-d.cfg.Window),
			WindowEnd:       ev.OccurredAt,
		},
	}, nil
}
