// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package detection

import (
	"context"
	"testing"
	"time"
)

func TestTrackerSessionPairing(t *testing.T) {
	tracker := NewTracker()
	ctx := context.Background()

	tracker.Record(Event{Kind: EventSessionStarted, SubjectID: "s", SessionID: "a", Paid: true, OccurredAt: testBase})
	tracker.Record(Event{Kind: EventSessionEnded, SubjectID: "s", SessionID: "a", OccurredAt: testBase.Add(15 * time.Second)})

	// End without explicit duration: derived from start/end times.
	count, err := tracker.ShortPaidSessions(ctx, "s", 30*time.Second, time.Hour, testBase.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("short paid sessions = %d, want 1", count)
	}

	// Ending an unknown session id is ignored.
	tracker.Record(Event{Kind: EventSessionEnded, SubjectID: "s", SessionID: "ghost", OccurredAt: testBase})
	open, err := tracker.OpenSessions(ctx, "s", time.Hour, testBase.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Errorf("open sessions = %v, want none", open)
	}
}

func TestTrackerPrune(t *testing.T) {
	tracker := NewTracker()

	tracker.Record(Event{Kind: EventPanicTriggered, SubjectID: "old", OccurredAt: testBase})
	tracker.Record(Event{Kind: EventPanicTriggered, SubjectID: "recent", OccurredAt: testBase.Add(40 * 24 * time.Hour)})

	tracker.Prune(testBase.Add(41 * 24 * time.Hour))

	if tracker.Subjects() != 1 {
		t.Errorf("subjects after prune = %d, want 1", tracker.Subjects())
	}
	count, err := tracker.PanicTriggers(context.Background(), "recent", 48*time.Hour, testBase.Add(41*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("recent subject activity lost: count = %d", count)
	}
}
