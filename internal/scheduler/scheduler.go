// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package scheduler runs the periodic engine jobs: the hourly risk
// sweep, the daily trust sweep, daily ranking generation, and retention
// pruning. Every job run is bounded by a wall-clock deadline and leaves
// a persisted checkpoint.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avedell/vigil/internal/logging"
	"github.com/avedell/vigil/internal/metrics"
)

// Job is one named periodic task. Run executes a single cycle; prev is
// the job's last persisted checkpoint, letting deadline-stopped sweeps
// resume at their cursor.
type Job interface {
	Name() string
	Run(ctx context.Context, prev Checkpoint) (SweepResult, error)
}

type entry struct {
	job      Job
	interval time.Duration
}

// Scheduler owns the job registry and the run loops. It implements
// suture's Service interface via Serve.
type Scheduler struct {
	mu          sync.Mutex
	entries     []entry
	checkpoints *CheckpointStore
	jobDeadline time.Duration
	now         func() time.Time
}

// New creates a scheduler. jobDeadline bounds each job run.
func New(checkpoints *CheckpointStore, jobDeadline time.Duration) *Scheduler {
	return &Scheduler{
		checkpoints: checkpoints,
		jobDeadline: jobDeadline,
		now:         time.Now,
	}
}

// Register adds a job to the registry with its run interval.
func (s *Scheduler) Register(job Job, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{job: job, interval: interval})
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name())
	}
	return names
}

// Serve runs every registered job on its interval until ctx is
// cancelled. Each job also runs once shortly after startup so a
// restarted server does not wait a full interval for fresh scores.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.Lock()
	entries := make([]entry, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			s.loop(ctx, e)
		}(e)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	s.runOnce(ctx, e.job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, e.job)
		}
	}
}

// RunNow triggers one named job outside its schedule (admin surface).
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var found *entry
	for i := range s.entries {
		if s.entries[i].job.Name() == name {
			found = &s.entries[i]
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	s.runOnce(ctx, found.job)
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	name := job.Name()
	start := s.now()

	prev, err := s.checkpoints.Load(name)
	if err != nil {
		logging.Error().Err(err).Str("job", name).Msg("checkpoint load failed, starting clean")
		prev = Checkpoint{Job: name}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.jobDeadline)
	defer cancel()

	result, err := job.Run(runCtx, prev)

	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = OutcomeError
		logging.Error().Err(err).Str("job", name).Msg("job run failed")
	case result.Deadline:
		outcome = OutcomeDeadline
		logging.Warn().
			Str("job", name).
			Str("cursor", result.Cursor).
			Int("processed", result.Processed).
			Msg("job stopped on deadline, will resume")
	default:
		logging.Info().
			Str("job", name).
			Int("processed", result.Processed).
			Int("failed", result.Failed).
			Dur("took", s.now().Sub(start)).
			Msg("job run complete")
	}

	metrics.JobRuns.WithLabelValues(name, string(outcome)).Inc()
	metrics.JobSubjectsProcessed.WithLabelValues(name).Add(float64(result.Processed))

	cp := Checkpoint{
		Job:         name,
		LastRun:     start.UTC(),
		LastOutcome: outcome,
		Processed:   result.Processed,
		Failed:      result.Failed,
	}
	if outcome == OutcomeDeadline {
		cp.Cursor = result.Cursor
	}
	if err := s.checkpoints.Save(cp); err != nil {
		logging.Error().Err(err).Str("job", name).Msg("checkpoint save failed")
	}
}
