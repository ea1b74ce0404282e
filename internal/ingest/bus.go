// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package ingest carries activity events from the business subsystems to
// the detection engine over a Watermill message bus.
//
// Two transports are supported. NATS JetStream gives durable, queue-group
// balanced delivery for multi-instance deployments; the in-process
// gochannel Pub/Sub serves standalone and test deployments with no
// external broker. The transport is selected by config, everything above
// the bus is transport-agnostic.
package ingest

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsserver "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/avedell/vigil/internal/config"
	"github.com/avedell/vigil/internal/detection"
)

// Topic layout. NATS mode publishes per-source subjects under the
// activity stream and subscribes the wildcard; gochannel has no wildcard
// support, so it collapses to a single exact topic.
const (
	topicPrefix   = "activity"
	topicWildcard = "activity.>"
)

// Bus is the activity event transport: one publisher and one subscriber
// over the configured backend, plus the embedded NATS server when one is
// requested.
type Bus struct {
	cfg        config.IngestConfig
	publisher  message.Publisher
	subscriber message.Subscriber
	shared     bool // gochannel: one Pub/Sub serves both roles
	embedded   *natsserver.Server
	nc         *natsgo.Conn
}

// NewBus creates the event bus for the configured transport.
func NewBus(cfg config.IngestConfig) (*Bus, error) {
	if !cfg.NATS {
		pubsub := gochannel.NewGoChannel(gochannel.Config{}, newWatermillLogger())
		return &Bus{cfg: cfg, publisher: pubsub, subscriber: pubsub, shared: true}, nil
	}
	return newNATSBus(cfg)
}

// Publisher returns the bus publisher. Shared with the consumer's poison
// queue so dead letters travel the same transport as live events.
func (b *Bus) Publisher() message.Publisher { return b.publisher }

// Subscriber returns the bus subscriber.
func (b *Bus) Subscriber() message.Subscriber { return b.subscriber }

// TopicFor returns the publish topic for an event.
func (b *Bus) TopicFor(ev *detection.Event) string {
	if b.cfg.NATS {
		return topicPrefix + "." + string(ev.Source())
	}
	return topicPrefix
}

// SubscribeTopic returns the topic the consumer reads from.
func (b *Bus) SubscribeTopic() string {
	if b.cfg.NATS {
		return topicWildcard
	}
	return topicPrefix
}

// Close shuts the bus down: subscriber first so in-flight handlers
// drain, then publisher, connection, and the embedded server last.
func (b *Bus) Close() error {
	var errs []error
	if b.subscriber != nil {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	if !b.shared && b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if b.nc != nil {
		b.nc.Close()
	}
	if b.embedded != nil {
		b.embedded.Shutdown()
		b.embedded.WaitForShutdown()
	}
	if len(errs) > 0 {
		return fmt.Errorf("ingest: close bus: %v", errs)
	}
	return nil
}
