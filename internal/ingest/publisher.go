// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package ingest

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/avedell/vigil/internal/detection"
)

// Message metadata keys. Carried alongside the payload so operators can
// filter the stream and the poison queue without decoding bodies.
const (
	metaKind      = "kind"
	metaSubjectID = "subject_id"
)

// Publisher puts activity events on the bus. Business subsystems hold
// one and call Publish at each observable action.
type Publisher struct {
	bus *Bus
}

// NewPublisher creates a publisher over the bus.
func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus}
}

// Publish validates and publishes one activity event.
func (p *Publisher) Publish(ctx context.Context, ev *detection.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ingest: encode event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(metaKind, string(ev.Kind))
	msg.Metadata.Set(metaSubjectID, ev.SubjectID)

	if err := p.bus.publisher.Publish(p.bus.TopicFor(ev), msg); err != nil {
		return fmt.Errorf("ingest: publish %s: %w", ev.Kind, err)
	}
	return nil
}
