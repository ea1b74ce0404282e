// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/avedell/vigil/internal/config"
	"github.com/avedell/vigil/internal/detection"
	"github.com/avedell/vigil/internal/ranking"
	"github.com/avedell/vigil/internal/risk"
	"github.com/avedell/vigil/internal/signal"
	"github.com/avedell/vigil/internal/trust"
)

// RiskReader reads persisted risk records.
type RiskReader interface {
	Get(ctx context.Context, subjectID string) (*risk.Record, error)
	ListAbove(ctx context.Context, minScore int) ([]risk.Record, error)
}

// TrustReader reads persisted trust records.
type TrustReader interface {
	Get(ctx context.Context, subjectID string) (*trust.Record, error)
}

// RankingReader reads persisted ranking snapshots.
type RankingReader interface {
	Get(ctx context.Context, date, population string) (*ranking.Snapshot, error)
}

// Recomputer recomputes one subject's scores on demand. The risk and
// trust aggregators implement the two halves.
type Recomputer interface {
	Recompute(ctx context.Context, subjectID string) error
}

// DetectionStatus is the engine's runtime status surface.
type DetectionStatus interface {
	Status() detection.EngineStatus
	SetEnabled(typ signal.Type, enabled bool) bool
}

// Handler serves the query API.
type Handler struct {
	cfg       config.APIConfig
	signals   signal.Store
	risks     RiskReader
	trusts    TrustReader
	rankings  RankingReader
	recompute Recomputer
	detection DetectionStatus
	startedAt time.Time
}

// NewHandler wires the query surface to the stores and the engine.
func NewHandler(cfg config.APIConfig, signals signal.Store, risks RiskReader, trusts TrustReader, rankings RankingReader, recompute Recomputer, status DetectionStatus) *Handler {
	return &Handler{
		cfg:       cfg,
		signals:   signals,
		risks:     risks,
		trusts:    trusts,
		rankings:  rankings,
		recompute: recompute,
		detection: status,
		startedAt: time.Now(),
	}
}

// healthData is the health endpoint payload.
type healthData struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Health godoc
// @Summary Service health
// @Tags Core
// @Produce json
// @Success 200 {object} Response
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respond(w, r).Success(healthData{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// Signals godoc
// @Summary List signals
// @Description Filterable, paginated view of the append-only signal log. Admin only.
// @Tags Signals
// @Produce json
// @Param subject_id query string false "Filter by subject"
// @Param source query string false "Comma-separated sources"
// @Param type query string false "Comma-separated signal types"
// @Param min_severity query int false "Minimum severity (1-5)"
// @Param start query string false "RFC3339 lower bound on detected_at"
// @Param end query string false "RFC3339 upper bound on detected_at"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Security BearerAuth
// @Router /signals [get]
func (h *Handler) Signals(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	req, err := parseSignalList(r, h.cfg)
	if err != nil {
		rw.ValidationError(validationDetails(err))
		return
	}
	filter := req.filter()

	signals, err := h.signals.List(r.Context(), filter)
	if err != nil {
		rw.InternalError(err)
		return
	}
	total, err := h.signals.Count(r.Context(), filter)
	if err != nil {
		rw.InternalError(err)
		return
	}

	rw.SuccessPage(signals, &Pagination{
		Total:   total,
		Count:   len(signals),
		Offset:  req.Offset,
		Limit:   req.Limit,
		HasMore: req.Offset+len(signals) < total,
	})
}

// Risk godoc
// @Summary Get a subject's risk record
// @Tags Scores
// @Produce json
// @Param subjectID path string true "Subject ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Security BearerAuth
// @Router /risk/{subjectID} [get]
func (h *Handler) Risk(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)
	subjectID := chi.URLParam(r, "subjectID")

	record, err := h.risks.Get(r.Context(), subjectID)
	if errors.Is(err, risk.ErrNotFound) {
		rw.NotFound("no risk record for subject")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(record)
}

// RiskList godoc
// @Summary List risk records above a score
// @Tags Scores
// @Produce json
// @Param min_score query int false "Minimum score (0-100)"
// @Success 200 {object} Response
// @Security BearerAuth
// @Router /risk [get]
func (h *Handler) RiskList(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	req, err := parseRiskList(r)
	if err != nil {
		rw.ValidationError(validationDetails(err))
		return
	}

	records, err := h.risks.ListAbove(r.Context(), req.MinScore)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessPage(records, &Pagination{Total: len(records), Count: len(records)})
}

// Trust godoc
// @Summary Get a subject's trust record
// @Description Admins read any record; subjects read their own.
// @Tags Scores
// @Produce json
// @Param subjectID path string true "Subject ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Security BearerAuth
// @Router /trust/{subjectID} [get]
func (h *Handler) Trust(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)
	subjectID := chi.URLParam(r, "subjectID")

	record, err := h.trusts.Get(r.Context(), subjectID)
	if errors.Is(err, trust.ErrNotFound) {
		rw.NotFound("no trust record for subject")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(record)
}

// Rankings godoc
// @Summary Get a daily ranking snapshot
// @Description Snapshots are immutable once generated; a missing date
// @Description means generation has not run for it.
// @Tags Rankings
// @Produce json
// @Param date path string true "Snapshot date (YYYY-MM-DD)"
// @Param population path string true "Population name"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /rankings/{date}/{population} [get]
func (h *Handler) Rankings(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	req, err := parseRanking(chi.URLParam(r, "date"), chi.URLParam(r, "population"))
	if err != nil {
		rw.ValidationError(validationDetails(err))
		return
	}

	snapshot, err := h.rankings.Get(r.Context(), req.Date, req.Population)
	if errors.Is(err, ranking.ErrNotFound) {
		rw.NotFound("no snapshot for date and population")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(snapshot)
}

// Recompute godoc
// @Summary Recompute a subject's scores now
// @Description Runs the risk and trust aggregation for one subject
// @Description outside the sweep schedule. Admin only.
// @Tags Admin
// @Produce json
// @Param subjectID path string true "Subject ID"
// @Success 200 {object} Response
// @Security BearerAuth
// @Router /recompute/{subjectID} [post]
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)
	subjectID := chi.URLParam(r, "subjectID")
	if subjectID == "" {
		rw.BadRequest("subject ID is required")
		return
	}

	if err := h.recompute.Recompute(r.Context(), subjectID); err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(map[string]string{"subject_id": subjectID, "status": "recomputed"})
}

// DetectionStatus godoc
// @Summary Detection engine status
// @Description Per-detector counters plus dedup cache statistics. Admin only.
// @Tags Admin
// @Produce json
// @Success 200 {object} Response
// @Security BearerAuth
// @Router /detection/status [get]
func (h *Handler) DetectionStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, r).Success(h.detection.Status())
}

// ToggleDetector godoc
// @Summary Enable or disable a detector
// @Tags Admin
// @Accept json
// @Produce json
// @Param type path string true "Signal type"
// @Param body body detectorToggleRequest true "Desired state"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Security BearerAuth
// @Router /detection/detectors/{type} [post]
func (h *Handler) ToggleDetector(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	var req detectorToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	typ := signal.Type(chi.URLParam(r, "type"))
	if !h.detection.SetEnabled(typ, req.Enabled) {
		rw.NotFound("unknown detector type")
		return
	}
	rw.Success(map[string]any{"type": typ, "enabled": req.Enabled})
}
