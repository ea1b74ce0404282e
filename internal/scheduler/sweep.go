// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package scheduler

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/avedell/vigil/internal/logging"
)

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Processed int
	Failed    int

	// Cursor is the highest subject id completed in order. When the
	// deadline stopped the sweep early, the next run resumes after it.
	Cursor string

	// Deadline reports whether the sweep stopped on its deadline before
	// exhausting the subject list.
	Deadline bool
}

// sweep processes subjects with bounded parallelism and optional rate
// throttling. Subjects are sorted and dispatched in order; resumeAfter
// skips everything up to and including that id. When ctx expires no new
// subjects are launched, in-flight ones finish, and the result carries
// the resume cursor. Per-subject failures are logged and counted, never
// fatal: each subject's write is atomic and independent, so a mid-batch
// failure leaves stale-but-valid records.
func sweep(ctx context.Context, job string, subjects []string, resumeAfter string, workers int, perSecond float64, fn func(ctx context.Context, subjectID string) error) SweepResult {
	sorted := make([]string, len(subjects))
	copy(sorted, subjects)
	sort.Strings(sorted)

	if resumeAfter != "" {
		i := sort.SearchStrings(sorted, resumeAfter)
		if i < len(sorted) && sorted[i] == resumeAfter {
			i++
		}
		sorted = sorted[i:]
	}

	if workers < 1 {
		workers = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result SweepResult
	)
	sem := make(chan struct{}, workers)

	for _, subjectID := range sorted {
		if err := limiter.Wait(ctx); err != nil {
			result.Deadline = true
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			result.Deadline = true
		}
		if result.Deadline {
			break
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			err := fn(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				logging.Warn().Err(err).
					Str("job", job).
					Str("subject_id", id).
					Msg("sweep subject failed, record left stale")
			} else {
				result.Processed++
			}
			if id > result.Cursor {
				result.Cursor = id
			}
		}(subjectID)
	}

	wg.Wait()
	return result
}
