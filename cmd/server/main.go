// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/avedell/vigil/internal/api"
	"github.com/avedell/vigil/internal/auth"
	"github.com/avedell/vigil/internal/authz"
	"github.com/avedell/vigil/internal/config"
	"github.com/avedell/vigil/internal/detection"
	"github.com/avedell/vigil/internal/ingest"
	"github.com/avedell/vigil/internal/kpi"
	"github.com/avedell/vigil/internal/kv"
	"github.com/avedell/vigil/internal/logging"
	"github.com/avedell/vigil/internal/ranking"
	"github.com/avedell/vigil/internal/risk"
	"github.com/avedell/vigil/internal/scheduler"
	"github.com/avedell/vigil/internal/signal"
	"github.com/avedell/vigil/internal/supervisor"
	"github.com/avedell/vigil/internal/trust"
	"github.com/avedell/vigil/internal/websocket"
)

// riskRecomputer is the post-append hook. Only the risk score reacts to
// every new signal; trust follows on the daily sweep.
type riskRecomputer struct {
	agg *risk.Aggregator
}

func (r riskRecomputer) Recompute(ctx context.Context, subjectID string) error {
	_, err := r.agg.Recompute(ctx, subjectID)
	return err
}

// scoreRecomputer backs the admin recompute endpoint: risk first, then
// trust, so the trust safety subscore sees the fresh risk score.
type scoreRecomputer struct {
	risks  *risk.Aggregator
	trusts *trust.Aggregator
}

func (r scoreRecomputer) Recompute(ctx context.Context, subjectID string) error {
	if _, err := r.risks.Recompute(ctx, subjectID); err != nil {
		return fmt.Errorf("recompute risk: %w", err)
	}
	if _, err := r.trusts.Recompute(ctx, subjectID); err != nil {
		return fmt.Errorf("recompute trust: %w", err)
	}
	return nil
}

// pruners fans the retention job's prune call out to the in-memory
// activity stores.
type pruners []scheduler.ActivityPruner

func (p pruners) Prune(now time.Time) {
	for _, pr := range p {
		pr.Prune(now)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === STORES ===

	signalStore, err := signal.OpenDuckDB(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open signal store")
	}
	defer func() {
		if err := signalStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close signal store")
		}
	}()

	kvdb, err := kv.Open(cfg.KV.Path, cfg.KV.InMemory)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.KV.Path).Msg("Failed to open KV store")
	}
	defer func() {
		if err := kvdb.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close KV store")
		}
	}()

	// === DETECTION ===

	tracker := detection.NewTracker()
	deduper := detection.NewDeduper(kvdb, cfg.Detection.DedupTTL)

	engineCfg := detection.DefaultEngineConfig()
	if cfg.Detection.ObserveTimeout > 0 {
		engineCfg.ObserveTimeout = cfg.Detection.ObserveTimeout
	}
	engine := detection.NewDefaultEngine(engineCfg, tracker, deduper, signalStore)
	if !cfg.Detection.Enabled {
		for _, typ := range signal.AllTypes() {
			engine.SetEnabled(typ, false)
		}
		logging.Warn().Msg("Detection disabled; all detectors start disabled")
	}

	// === SCORING ===

	riskStore := risk.NewKVStore(kvdb)
	riskAgg := risk.NewAggregator(signalStore, riskStore, risk.NewPolicy(cfg.Policy.Version, cfg.Policy.Risk))

	kpis := kpi.NewAccumulator(0)
	trustStore := trust.NewKVStore(kvdb)
	trustAgg := trust.NewAggregator(kpis.Sources(), riskStore, trustStore, trust.NewPolicy(cfg.Policy.Version, cfg.Policy.Trust))

	engine.SetRecomputer(riskRecomputer{agg: riskAgg})

	hub := websocket.NewHub()
	engine.SetBroadcaster(hub)

	rankingStore := ranking.NewKVStore(kvdb)
	generator := ranking.NewGenerator(trustStore, ranking.AllMembers{}, rankingStore)

	// === SCHEDULER ===

	sched := scheduler.New(scheduler.NewCheckpointStore(kvdb), cfg.Scheduler.JobDeadline)
	sweepCfg := scheduler.SweepConfig{
		Workers:           cfg.Scheduler.Workers,
		SubjectsPerSecond: cfg.Scheduler.SubjectsPerSecond,
	}
	// Risk lookback doubles the interval so a signal landing between two
	// runs is never skipped.
	sched.Register(
		scheduler.NewRiskSweepJob(signalStore, riskAgg, sweepCfg, 2*cfg.Scheduler.RiskSweepInterval),
		cfg.Scheduler.RiskSweepInterval,
	)
	sched.Register(
		scheduler.NewTrustSweepJob(signalStore, trustStore, trustAgg, sweepCfg, cfg.Scheduler.TrustLookback),
		cfg.Scheduler.TrustSweepInterval,
	)
	sched.Register(
		scheduler.NewRankingJob(generator, cfg.Scheduler.Populations),
		cfg.Scheduler.RankingInterval,
	)
	retention := time.Duration(cfg.Scheduler.SignalRetentionDays) * 24 * time.Hour
	sched.Register(
		scheduler.NewRetentionJob(signalStore, pruners{tracker, kpis}, kvdb, retention),
		cfg.Scheduler.RetentionInterval,
	)

	// === INGEST ===

	var bus *ingest.Bus
	var consumer *ingest.Consumer
	if cfg.Ingest.Enabled {
		bus, err = ingest.NewBus(cfg.Ingest)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize event bus")
		}
		consumer, err = ingest.NewConsumer(cfg.Ingest, bus, ingest.MultiObserver(engine, kpis))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize ingest consumer")
		}
		logging.Info().Bool("nats", cfg.Ingest.NATS).Msg("Ingest initialized")
	} else {
		logging.Warn().Msg("Ingest disabled; no activity events will be consumed")
	}

	// === API ===

	var manager *auth.Manager
	if !cfg.Security.AuthDisabled {
		manager, err = auth.NewManager(cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
	} else {
		logging.Warn().Msg("Authentication disabled; all requests run as admin")
	}

	enforcer, err := authz.NewEnforcer(authz.Config{})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization")
	}

	handler := api.NewHandler(cfg.API, signalStore, riskStore, trustStore, rankingStore,
		scoreRecomputer{risks: riskAgg, trusts: trustAgg}, engine)

	router := api.NewRouter(api.RouterDeps{
		Handler:  handler,
		Auth:     auth.NewMiddleware(manager, cfg.Security.AuthDisabled),
		Enforcer: enforcer,
		Security: cfg.Security,
		API:      cfg.API,
		Feed:     hub.ServeWS,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	// === SUPERVISOR TREE ===

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	if cfg.Scheduler.Enabled {
		tree.AddDataService(supervisor.NewNamed("scheduler", sched))
	} else {
		logging.Warn().Msg("Scheduler disabled; sweeps and ranking generation will not run")
	}
	tree.AddIngestService(supervisor.NewNamed("signal-feed", hub))
	if consumer != nil {
		tree.AddIngestService(supervisor.NewNamed("activity-consumer", consumer))
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting vigil")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if bus != nil {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close event bus")
		}
	}

	// Drain the engine's in-flight async recomputes before the stores
	// close underneath them.
	engine.Wait()

	logging.Info().Msg("Stopped gracefully")
}
