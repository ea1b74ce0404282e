// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/avedell/vigil/internal/kv"
	"github.com/avedell/vigil/internal/logging"
	"github.com/avedell/vigil/internal/metrics"
	"github.com/avedell/vigil/internal/ranking"
	"github.com/avedell/vigil/internal/risk"
	"github.com/avedell/vigil/internal/signal"
	"github.com/avedell/vigil/internal/trust"
)

// Job names. The admin recompute surface addresses jobs by these.
const (
	JobRiskSweep      = "risk-sweep"
	JobTrustSweep     = "trust-sweep"
	JobRankingGen     = "ranking-generate"
	JobRetentionPrune = "retention-prune"
)

// SweepConfig is the shared sweep tuning: parallelism and throttle.
type SweepConfig struct {
	Workers           int
	SubjectsPerSecond float64
}

// RiskSweepJob recomputes risk records for subjects with recent signals.
type RiskSweepJob struct {
	signals  signal.Store
	agg      *risk.Aggregator
	cfg      SweepConfig
	lookback time.Duration
	now      func() time.Time
}

// NewRiskSweepJob creates the hourly risk sweep. lookback selects
// subjects with a signal within that window; it should be at least the
// sweep interval so no signal is missed between runs.
func NewRiskSweepJob(signals signal.Store, agg *risk.Aggregator, cfg SweepConfig, lookback time.Duration) *RiskSweepJob {
	return &RiskSweepJob{signals: signals, agg: agg, cfg: cfg, lookback: lookback, now: time.Now}
}

func (j *RiskSweepJob) Name() string { return JobRiskSweep }

func (j *RiskSweepJob) Run(ctx context.Context, prev Checkpoint) (SweepResult, error) {
	subjects, err := j.signals.ActiveSubjects(ctx, j.now().Add(-j.lookback))
	if err != nil {
		return SweepResult{}, fmt.Errorf("risk sweep: list subjects: %w", err)
	}

	return sweep(ctx, JobRiskSweep, subjects, resumeCursor(prev), j.cfg.Workers, j.cfg.SubjectsPerSecond,
		func(ctx context.Context, subjectID string) error {
			_, err := j.agg.Recompute(ctx, subjectID)
			return err
		}), nil
}

// TrustSweepJob recomputes trust records for subjects active in the
// lookback window plus every subject that already has a trust record,
// so idle subjects' scores still refresh as their risk decays.
type TrustSweepJob struct {
	signals  signal.Store
	trusts   *trust.KVStore
	agg      *trust.Aggregator
	cfg      SweepConfig
	lookback time.Duration
	now      func() time.Time
}

// NewTrustSweepJob creates the daily trust sweep.
func NewTrustSweepJob(signals signal.Store, trusts *trust.KVStore, agg *trust.Aggregator, cfg SweepConfig, lookback time.Duration) *TrustSweepJob {
	return &TrustSweepJob{signals: signals, trusts: trusts, agg: agg, cfg: cfg, lookback: lookback, now: time.Now}
}

func (j *TrustSweepJob) Name() string { return JobTrustSweep }

func (j *TrustSweepJob) Run(ctx context.Context, prev Checkpoint) (SweepResult, error) {
	active, err := j.signals.ActiveSubjects(ctx, j.now().Add(-j.lookback))
	if err != nil {
		return SweepResult{}, fmt.Errorf("trust sweep: list subjects: %w", err)
	}

	seen := make(map[string]struct{}, len(active))
	for _, id := range active {
		seen[id] = struct{}{}
	}
	err = j.trusts.All(ctx, func(record trust.Record) error {
		seen[record.SubjectID] = struct{}{}
		return nil
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("trust sweep: list records: %w", err)
	}

	subjects := make([]string, 0, len(seen))
	for id := range seen {
		subjects = append(subjects, id)
	}

	return sweep(ctx, JobTrustSweep, subjects, resumeCursor(prev), j.cfg.Workers, j.cfg.SubjectsPerSecond,
		func(ctx context.Context, subjectID string) error {
			_, err := j.agg.Recompute(ctx, subjectID)
			return err
		}), nil
}

// RankingJob generates the daily ranking snapshot per population.
type RankingJob struct {
	generator   *ranking.Generator
	populations []string
	now         func() time.Time
}

// NewRankingJob creates the daily ranking generation job.
func NewRankingJob(generator *ranking.Generator, populations []string) *RankingJob {
	return &RankingJob{generator: generator, populations: populations, now: time.Now}
}

func (j *RankingJob) Name() string { return JobRankingGen }

func (j *RankingJob) Run(ctx context.Context, _ Checkpoint) (SweepResult, error) {
	date := j.now().UTC().Format(ranking.DateFormat)

	var result SweepResult
	for _, population := range j.populations {
		if ctx.Err() != nil {
			result.Deadline = true
			return result, nil
		}
		if _, err := j.generator.Generate(ctx, date, population); err != nil {
			result.Failed++
			logging.Error().Err(err).
				Str("population", population).
				Str("date", date).
				Msg("ranking generation failed")
			continue
		}
		result.Processed++
	}
	return result, nil
}

// ActivityPruner is the detection tracker's retention surface.
type ActivityPruner interface {
	Prune(now time.Time)
}

// RetentionJob prunes signals past the retention window, expires stale
// in-memory activity, and runs Badger value log GC. Expired dedup keys
// age out on their own TTL.
type RetentionJob struct {
	signals   signal.Store
	activity  ActivityPruner
	db        *kv.DB
	retention time.Duration
	now       func() time.Time
}

// NewRetentionJob creates the daily retention job.
func NewRetentionJob(signals signal.Store, activity ActivityPruner, db *kv.DB, retention time.Duration) *RetentionJob {
	return &RetentionJob{signals: signals, activity: activity, db: db, retention: retention, now: time.Now}
}

func (j *RetentionJob) Name() string { return JobRetentionPrune }

func (j *RetentionJob) Run(ctx context.Context, _ Checkpoint) (SweepResult, error) {
	now := j.now()

	pruned, err := j.signals.PruneOlderThan(ctx, now.Add(-j.retention))
	if err != nil {
		return SweepResult{}, fmt.Errorf("retention: prune signals: %w", err)
	}
	metrics.SignalsPruned.Add(float64(pruned))

	if j.activity != nil {
		j.activity.Prune(now)
	}
	j.db.RunGC()

	return SweepResult{Processed: int(pruned)}, nil
}

// resumeCursor returns the cursor to resume after when the previous run
// was stopped by its deadline.
func resumeCursor(prev Checkpoint) string {
	if prev.LastOutcome == OutcomeDeadline {
		return prev.Cursor
	}
	return ""
}
