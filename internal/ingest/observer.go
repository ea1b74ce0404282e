// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package ingest

import (
	"context"

	"github.com/avedell/vigil/internal/detection"
)

// multiObserver fans one event out to several observers in order.
type multiObserver []Observer

// MultiObserver combines observers into one. The detection engine and
// the KPI accumulator both consume the same stream.
func MultiObserver(observers ...Observer) Observer {
	return multiObserver(observers)
}

func (m multiObserver) Observe(ctx context.Context, ev detection.Event) {
	for _, o := range m {
		o.Observe(ctx, ev)
	}
}
