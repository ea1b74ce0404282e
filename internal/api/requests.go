// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avedell/vigil/internal/config"
	"github.com/avedell/vigil/internal/signal"
)

// validate is the shared validator instance. Struct tags carry the
// request invariants; handlers only surface the violations.
var validate = validator.New(validator.WithRequiredStructEnabled())

// signalListRequest is the parsed query for GET /signals.
type signalListRequest struct {
	SubjectID   string `validate:"omitempty,max=128"`
	Sources     []signal.Source
	Types       []signal.Type
	MinSeverity int `validate:"omitempty,min=1,max=5"`
	Start       *time.Time
	End         *time.Time
	Limit       int `validate:"min=1"`
	Offset      int `validate:"min=0"`
}

func (req *signalListRequest) filter() signal.Filter {
	return signal.Filter{
		SubjectID:   req.SubjectID,
		Sources:     req.Sources,
		Types:       req.Types,
		MinSeverity: req.MinSeverity,
		Start:       req.Start,
		End:         req.End,
		Limit:       req.Limit,
		Offset:      req.Offset,
	}
}

// parseSignalList parses and validates the signal list query.
func parseSignalList(r *http.Request, cfg config.APIConfig) (*signalListRequest, error) {
	q := r.URL.Query()
	req := &signalListRequest{SubjectID: q.Get("subject_id")}

	for _, raw := range splitParam(q.Get("source")) {
		req.Sources = append(req.Sources, signal.Source(raw))
	}
	for _, raw := range splitParam(q.Get("type")) {
		req.Types = append(req.Types, signal.Type(raw))
	}

	var err error
	if req.MinSeverity, err = intParam(q.Get("min_severity"), 0); err != nil {
		return nil, fmt.Errorf("min_severity: %w", err)
	}
	if req.Start, err = timeParam(q.Get("start")); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if req.End, err = timeParam(q.Get("end")); err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	if req.Limit, err = intParam(q.Get("limit"), cfg.DefaultPageSize); err != nil {
		return nil, fmt.Errorf("limit: %w", err)
	}
	if req.Limit > cfg.MaxPageSize {
		req.Limit = cfg.MaxPageSize
	}
	if req.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		return nil, fmt.Errorf("offset: %w", err)
	}

	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	return req, nil
}

// riskListRequest is the parsed query for GET /risk.
type riskListRequest struct {
	MinScore int `validate:"min=0,max=100"`
}

func parseRiskList(r *http.Request) (*riskListRequest, error) {
	minScore, err := intParam(r.URL.Query().Get("min_score"), 0)
	if err != nil {
		return nil, fmt.Errorf("min_score: %w", err)
	}
	req := &riskListRequest{MinScore: minScore}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	return req, nil
}

// rankingRequest is the parsed path for GET /rankings/{date}/{population}.
type rankingRequest struct {
	Date       string `validate:"required,datetime=2006-01-02"`
	Population string `validate:"required,max=64"`
}

func parseRanking(date, population string) (*rankingRequest, error) {
	req := &rankingRequest{Date: date, Population: population}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	return req, nil
}

// detectorToggleRequest is the body for POST /detection/detectors/{type}.
type detectorToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// validationDetails flattens validator errors into response details.
func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return details
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	return v, nil
}

func timeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("not an RFC3339 timestamp: %q", raw)
	}
	return &t, nil
}
