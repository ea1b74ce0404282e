// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package detection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/avedell/vigil/internal/logging"
	"github.com/avedell/vigil/internal/metrics"
	"github.com/avedell/vigil/internal/signal"
)

// Recomputer triggers a best-effort risk recompute after a signal lands.
type Recomputer interface {
	Recompute(ctx context.Context, subjectID string) error
}

// Broadcaster receives every persisted signal (live feed fan-out).
type Broadcaster interface {
	Broadcast(s signal.Signal)
}

// EngineConfig tunes the engine envelope; detector thresholds live with
// the detectors.
type EngineConfig struct {
	// ObserveTimeout bounds one full detection pass. On expiry the pass
	// stops where it is and the remaining detectors are skipped.
	ObserveTimeout time.Duration

	// RecomputeTimeout bounds the async post-append risk recompute.
	RecomputeTimeout time.Duration
}

// DefaultEngineConfig returns the default engine envelope.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ObserveTimeout:   2 * time.Second,
		RecomputeTimeout: 10 * time.Second,
	}
}

// detectorState wraps a registered detector with its runtime state.
type detectorState struct {
	detector Detector
	enabled  atomic.Bool

	evaluated  atomic.Int64
	findings   atomic.Int64
	suppressed atomic.Int64
	errors     atomic.Int64
}

// Engine fans activity events out to the detectors and persists the
// surviving findings as signals.
type Engine struct {
	cfg       EngineConfig
	tracker   *Tracker
	deduper   *Deduper
	store     signal.Store
	detectors []*detectorState

	mu          sync.RWMutex
	recomputer  Recomputer
	broadcaster Broadcaster

	wg sync.WaitGroup
}

// NewEngine creates an engine over the given detectors, all enabled.
func NewEngine(cfg EngineConfig, tracker *Tracker, deduper *Deduper, store signal.Store, detectors ...Detector) *Engine {
	e := &Engine{
		cfg:     cfg,
		tracker: tracker,
		deduper: deduper,
		store:   store,
	}
	for _, d := range detectors {
		state := &detectorState{detector: d}
		state.enabled.Store(true)
		e.detectors = append(e.detectors, state)
	}
	return e
}

// NewDefaultEngine wires the full eight-detector set against the tracker
// with default thresholds.
func NewDefaultEngine(cfg EngineConfig, tracker *Tracker, deduper *Deduper, store signal.Store) *Engine {
	return NewEngine(cfg, tracker, deduper, store,
		NewTokenDrainDetector(DefaultTokenDrainConfig(), tracker),
		NewSessionSpamDetector(DefaultSessionSpamConfig(), tracker),
		NewCopyPasteDetector(DefaultCopyPasteConfig(), tracker),
		NewFakeBookingsDetector(DefaultFakeBookingsConfig(), tracker),
		NewSelfRefundsDetector(DefaultSelfRefundsConfig(), tracker),
		NewPayoutAbuseDetector(DefaultPayoutAbuseConfig(), tracker),
		NewIdentityMismatchDetector(DefaultIdentityMismatchConfig(), tracker),
		NewPanicSpikeDetector(DefaultPanicSpikeConfig(), tracker),
	)
}

// SetRecomputer installs the post-append risk recompute hook.
func (e *Engine) SetRecomputer(r Recomputer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recomputer = r
}

// SetBroadcaster installs the live signal feed hook.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = b
}

// SetEnabled toggles one detector by signal type. Returns false if no
// detector of that type is registered.
func (e *Engine) SetEnabled(typ signal.Type, enabled bool) bool {
	for _, state := range e.detectors {
		if state.detector.Type() == typ {
			state.enabled.Store(enabled)
			return true
		}
	}
	return false
}

// Observe runs a detection pass for one activity event. It never returns
// an error: emission is fire-and-forget for the publishing subsystem, so
// every internal failure is logged, counted, and dropped here.
func (e *Engine) Observe(ctx context.Context, ev Event) {
	start := time.Now()
	defer func() {
		metrics.ObserveDuration.Observe(time.Since(start).Seconds())
	}()

	if err := ev.Validate(); err != nil {
		logging.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("dropping malformed activity event")
		return
	}
	metrics.EventsObserved.WithLabelValues(string(ev.Source())).Inc()

	e.tracker.Record(ev)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ObserveTimeout)
	defer cancel()

	for _, state := range e.detectors {
		if !state.enabled.Load() || !state.detector.Relevant(ev.Kind) {
			continue
		}
		if ctx.Err() != nil {
			logging.Warn().
				Str("subject_id", ev.SubjectID).
				Msg("observe timeout, skipping remaining detectors")
			return
		}
		e.runDetector(ctx, state, ev)
	}
}

func (e *Engine) runDetector(ctx context.Context, state *detectorState, ev Event) {
	typ := state.detector.Type()
	state.evaluated.Add(1)

	finding, err := state.detector.Detect(ctx, ev)
	if err != nil {
		state.errors.Add(1)
		metrics.DetectorErrors.WithLabelValues(string(typ)).Inc()
		logging.Error().Err(err).
			Str("detector", string(typ)).
			Str("subject_id", ev.SubjectID).
			Msg("detector failed, dropping")
		return
	}
	if finding == nil {
		return
	}
	state.findings.Add(1)

	first, err := e.deduper.FirstEmission(ev.SubjectID, typ, ev.OccurredAt, finding.Window)
	if err != nil {
		state.errors.Add(1)
		metrics.DetectorErrors.WithLabelValues(string(typ)).Inc()
		logging.Error().Err(err).
			Str("detector", string(typ)).
			Str("subject_id", ev.SubjectID).
			Msg("dedup check failed, dropping finding")
		return
	}
	if !first {
		state.suppressed.Add(1)
		metrics.SignalsDeduplicated.WithLabelValues(string(typ)).Inc()
		return
	}

	e.emit(ctx, ev, typ, finding)
}

func (e *Engine) emit(ctx context.Context, ev Event, typ signal.Type, finding *Finding) {
	metadata, err := signal.EncodeMetadata(finding.Metadata)
	if err != nil {
		logging.Error().Err(err).Str("detector", string(typ)).Msg("encode metadata failed, dropping signal")
		return
	}

	sig := signal.Signal{
		ID:         uuid.NewString(),
		SubjectID:  ev.SubjectID,
		Source:     finding.Source,
		Type:       typ,
		Severity:   finding.Severity,
		ContextRef: finding.ContextRef,
		DetectedAt: ev.OccurredAt,
		Metadata:   metadata,
	}
	if err := e.store.Append(ctx, &sig); err != nil {
		logging.Error().Err(err).
			Str("detector", string(typ)).
			Str("subject_id", ev.SubjectID).
			Msg("signal append failed, dropping")
		return
	}

	metrics.RecordSignal(string(typ), finding.Severity)
	logging.Info().
		Str("signal_id", sig.ID).
		Str("subject_id", sig.SubjectID).
		Str("type", string(typ)).
		Int("severity", sig.Severity).
		Msg("signal emitted")

	e.mu.RLock()
	recomputer := e.recomputer
	broadcaster := e.broadcaster
	e.mu.RUnlock()

	if broadcaster != nil {
		broadcaster.Broadcast(sig)
	}

	// Best-effort immediate recompute; the hourly sweep is the backstop
	// if this fails or is skipped.
	if recomputer != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			rctx, cancel := context.WithTimeout(context.Background(), e.cfg.RecomputeTimeout)
			defer cancel()
			if err := recomputer.Recompute(rctx, sig.SubjectID); err != nil {
				logging.Warn().Err(err).
					Str("subject_id", sig.SubjectID).
					Msg("post-signal risk recompute failed, sweep will retry")
			}
		}()
	}
}

// Wait blocks until in-flight async recomputes finish. Shutdown path.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// DetectorStatus is one detector's runtime counters.
type DetectorStatus struct {
	Type       signal.Type `json:"type"`
	Enabled    bool        `json:"enabled"`
	Evaluated  int64       `json:"evaluated"`
	Findings   int64       `json:"findings"`
	Suppressed int64       `json:"suppressed"`
	Errors     int64       `json:"errors"`
}

// EngineStatus is the full engine status surface.
type EngineStatus struct {
	Detectors       []DetectorStatus `json:"detectors"`
	TrackedSubjects int              `json:"tracked_subjects"`
	DedupHits       int64            `json:"dedup_hits"`
	DedupMisses     int64            `json:"dedup_misses"`
	DedupSize       int              `json:"dedup_size"`
}

// Status snapshots the engine's runtime counters.
func (e *Engine) Status() EngineStatus {
	status := EngineStatus{TrackedSubjects: e.tracker.Subjects()}
	status.DedupHits, status.DedupMisses, status.DedupSize = e.deduper.Stats()
	for _, state := range e.detectors {
		status.Detectors = append(status.Detectors, DetectorStatus{
			Type:       state.detector.Type(),
			Enabled:    state.enabled.Load(),
			Evaluated:  state.evaluated.Load(),
			Findings:   state.findings.Load(),
			Suppressed: state.suppressed.Load(),
			Errors:     state.errors.Load(),
		})
	}
	return status
}
