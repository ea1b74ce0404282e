// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/avedell/vigil/internal/config"
	"github.com/avedell/vigil/internal/detection"
)

const (
	handlerName      = "activity-ingest"
	maxRetryInterval = time.Minute
)

// Observer receives decoded activity events. The detection engine is the
// production implementation; Observe is fire-and-forget, so a handled
// message is always acked.
type Observer interface {
	Observe(ctx context.Context, ev detection.Event)
}

// Consumer reads activity events off the bus and feeds the observer.
// Malformed payloads error through the retry middleware and land on the
// poison topic, keeping the live stream clean.
type Consumer struct {
	router *message.Router
}

// NewConsumer builds the consumer router over the bus.
func NewConsumer(cfg config.IngestConfig, bus *Bus, observer Observer) (*Consumer, error) {
	logger := newWatermillLogger()

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("ingest: create router: %w", err)
	}

	// Middleware outer to inner: recover panics, retry transient
	// failures, then dead-letter what still fails.
	router.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryCount,
		InitialInterval: cfg.RetryInterval,
		MaxInterval:     maxRetryInterval,
		Multiplier:      2.0,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)

	if cfg.PoisonTopic != "" {
		poison, err := middleware.PoisonQueue(bus.Publisher(), cfg.PoisonTopic)
		if err != nil {
			return nil, fmt.Errorf("ingest: create poison queue: %w", err)
		}
		router.AddMiddleware(poison)
	}

	router.AddConsumerHandler(handlerName, bus.SubscribeTopic(), bus.Subscriber(), handleEvent(observer))

	return &Consumer{router: router}, nil
}

// handleEvent decodes one message and hands it to the observer. Decode
// and validation failures are returned so the middleware chain can
// retry and ultimately poison the message.
func handleEvent(observer Observer) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var ev detection.Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("ingest: decode event: %w", err)
		}
		if err := ev.Validate(); err != nil {
			return err
		}
		observer.Observe(msg.Context(), ev)
		return nil
	}
}

// Serve runs the consumer until the context is cancelled. It satisfies
// the supervisor's service contract.
func (c *Consumer) Serve(ctx context.Context) error {
	return c.router.Run(ctx)
}

// Running returns a channel that closes once the router is consuming.
func (c *Consumer) Running() <-chan struct{} {
	return c.router.Running()
}

// Close stops the router, waiting up to the configured close timeout
// for in-flight handlers.
func (c *Consumer) Close() error {
	return c.router.Close()
}
