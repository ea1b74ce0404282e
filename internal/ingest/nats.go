// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsserver "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/avedell/vigil/internal/config"
	"github.com/avedell/vigil/internal/logging"
)

// JetStream tuning. Delivery retries within a consumer instance are
// handled by the router's retry middleware; MaxDeliver bounds broker
// redelivery after a crash mid-message.
const (
	defaultStreamName = "VIGIL_ACTIVITY"
	defaultQueueGroup = "vigil-ingest"

	serverReadyTimeout = 10 * time.Second
	streamMaxAge       = 48 * time.Hour
	ackWaitTimeout     = 30 * time.Second
	maxDeliver         = 5
	maxAckPending      = 256
	maxReconnects      = 60
	reconnectWait      = 2 * time.Second
)

// newNATSBus connects to NATS (starting an embedded server first when
// configured), provisions the activity stream, and builds the Watermill
// publisher and subscriber over it.
func newNATSBus(cfg config.IngestConfig) (*Bus, error) {
	if cfg.StreamName == "" {
		cfg.StreamName = defaultStreamName
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = defaultQueueGroup
	}

	bus := &Bus{cfg: cfg}
	url := cfg.URL

	if cfg.EmbeddedServer {
		srv, err := startEmbeddedServer(cfg.StoreDir)
		if err != nil {
			return nil, err
		}
		bus.embedded = srv
		url = srv.ClientURL()
	}
	if url == "" {
		url = natsgo.DefaultURL
	}

	logger := newWatermillLogger()
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.ReconnectWait(reconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	nc, err := natsgo.Connect(url, natsOpts...)
	if err != nil {
		bus.shutdownEmbedded()
		return nil, fmt.Errorf("ingest: connect nats: %w", err)
	}
	bus.nc = nc

	if err := ensureStream(nc, cfg.StreamName); err != nil {
		bus.Close()
		return nil, err
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false, // stream is provisioned above
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("ingest: create publisher: %w", err)
	}
	bus.publisher = pub

	// Bind to the pre-created stream: the subscribe topic is a wildcard,
	// and stream names cannot contain wildcards, so AutoProvision would
	// fail trying to derive one.
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		AckWaitTimeout:   ackWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			AckAsync:      false,
			DurablePrefix: cfg.QueueGroup,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(cfg.StreamName),
				natsgo.MaxDeliver(maxDeliver),
				natsgo.MaxAckPending(maxAckPending),
				natsgo.AckWait(ackWaitTimeout),
				natsgo.DeliverNew(),
			},
		},
	}, logger)
	if err != nil {
		pub.Close()
		bus.Close()
		return nil, fmt.Errorf("ingest: create subscriber: %w", err)
	}
	bus.subscriber = sub

	return bus, nil
}

// startEmbeddedServer runs a JetStream-enabled NATS server in-process,
// for standalone deployments that still want durable ingest.
func startEmbeddedServer(storeDir string) (*natsserver.Server, error) {
	opts := &natsserver.Options{
		Port:      natsserver.RANDOM_PORT,
		JetStream: true,
		StoreDir:  storeDir,
		NoSigs:    true,
	}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("ingest: create embedded nats server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(serverReadyTimeout) {
		srv.Shutdown()
		return nil, errors.New("ingest: embedded nats server not ready")
	}
	logging.Info().Str("url", srv.ClientURL()).Msg("embedded nats server started")
	return srv, nil
}

// ensureStream creates or updates the activity stream. Idempotent, so
// every instance can run it at startup.
func ensureStream(nc *natsgo.Conn, name string) error {
	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("ingest: jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), serverReadyTimeout)
	defer cancel()

	streamCfg := jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{topicWildcard},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    streamMaxAge,
		Storage:   jetstream.FileStorage,
		Discard:   jetstream.DiscardOld,
	}

	if _, err := js.Stream(ctx, name); err == nil {
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("ingest: update stream %s: %w", name, err)
		}
		return nil
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("ingest: check stream %s: %w", name, err)
	}

	if _, err := js.CreateStream(ctx, streamCfg); err != nil {
		return fmt.Errorf("ingest: create stream %s: %w", name, err)
	}
	return nil
}

func (b *Bus) shutdownEmbedded() {
	if b.embedded != nil {
		b.embedded.Shutdown()
		b.embedded.WaitForShutdown()
	}
}
