// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/avedell/vigil/internal/metrics"
	"github.com/avedell/vigil/internal/signal"
)

// History is the slice of the signal store the aggregator reads.
type History interface {
	History(ctx context.Context, subjectID string) ([]signal.Signal, error)
}

// RecordStore persists risk records under single-writer-per-key
// discipline.
type RecordStore interface {
	Get(ctx context.Context, subjectID string) (*Record, error)
	Put(ctx context.Context, record *Record) error
}

// Aggregator recomputes risk records from signal history.
type Aggregator struct {
	history History
	store   RecordStore
	policy  Policy
	now     func() time.Time
}

// NewAggregator creates a risk aggregator.
func NewAggregator(history History, store RecordStore, policy Policy) *Aggregator {
	return &Aggregator{
		history: history,
		store:   store,
		policy:  policy,
		now:     time.Now,
	}
}

// Recompute replays the subject's signal history through the policy and
// persists the resulting record. Idempotent: the same history always
// produces the same score. On a history read failure the previous record
// is left untouched (stale-but-valid beats missing-or-corrupt) and the
// error is surfaced so the next sweep retries.
func (a *Aggregator) Recompute(ctx context.Context, subjectID string) (*Record, error) {
	start := a.now()
	defer func() {
		metrics.RecomputeDuration.WithLabelValues("risk").Observe(time.Since(start).Seconds())
	}()

	signals, err := a.history.History(ctx, subjectID)
	if err != nil {
		metrics.RecomputeErrors.WithLabelValues("risk").Inc()
		return nil, fmt.Errorf("risk recompute %s: read history: %w", subjectID, err)
	}

	record := a.Score(subjectID, signals, start)
	if err := a.store.Put(ctx, record); err != nil {
		metrics.RecomputeErrors.WithLabelValues("risk").Inc()
		return nil, fmt.Errorf("risk recompute %s: persist: %w", subjectID, err)
	}
	return record, nil
}

// Score is the pure scoring function: signal history in, record out.
// Exposed separately so the idempotence and decay properties are
// testable without a store.
func (a *Aggregator) Score(subjectID string, signals []signal.Signal, asOf time.Time) *Record {
	var raw float64
	counts := make(map[signal.Type]int)
	var lastSignalAt *time.Time

	for i := range signals {
		sig := &signals[i]
		age := asOf.Sub(sig.DetectedAt)
		raw += a.policy.Points(sig.Severity) * a.policy.DecayWeight(age)
		counts[sig.Type]++

		if lastSignalAt == nil || sig.DetectedAt.After(*lastSignalAt) {
			detectedAt := sig.DetectedAt
			lastSignalAt = &detectedAt
		}
	}

	score := clampScore(raw)
	return &Record{
		SubjectID:      subjectID,
		Score:          score,
		Level:          a.policy.LevelFor(score),
		SignalCounts:   counts,
		LastSignalAt:   lastSignalAt,
		PolicyVersion:  a.policy.Version(),
		RecalculatedAt: asOf.UTC(),
	}
}
