// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/avedell/vigil/internal/config"
	"github.com/avedell/vigil/internal/detection"
)

// recordingObserver collects observed events and signals arrival.
type recordingObserver struct {
	mu     sync.Mutex
	events []detection.Event
	ch     chan detection.Event
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{ch: make(chan detection.Event, 16)}
}

func (o *recordingObserver) Observe(_ context.Context, ev detection.Event) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
	o.ch <- ev
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		Enabled:       true,
		RetryCount:    1,
		RetryInterval: time.Millisecond,
		PoisonTopic:   "dlq.activity",
		CloseTimeout:  time.Second,
	}
}

// startConsumer runs the consumer and blocks until it is subscribed, so
// the in-process Pub/Sub does not drop messages published too early.
func startConsumer(t *testing.T, cfg config.IngestConfig, bus *Bus, observer Observer) {
	t.Helper()
	consumer, err := NewConsumer(cfg, bus, observer)
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("consumer did not stop")
		}
	})

	select {
	case <-consumer.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not start")
	}
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	cfg := testIngestConfig()
	bus, err := NewBus(cfg)
	if err != nil {
		t.Fatalf("create bus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })

	observer := newRecordingObserver()
	startConsumer(t, cfg, bus, observer)

	sent := detection.Event{
		Kind:       detection.EventPanicTriggered,
		SubjectID:  "subject-1",
		OccurredAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
	if err := NewPublisher(bus).Publish(context.Background(), &sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-observer.ch:
		if got.Kind != sent.Kind || got.SubjectID != sent.SubjectID {
			t.Errorf("observed %+v, want %+v", got, sent)
		}
		if !got.OccurredAt.Equal(sent.OccurredAt) {
			t.Errorf("occurred_at = %v, want %v", got.OccurredAt, sent.OccurredAt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event never reached the observer")
	}
}

func TestMalformedPayloadGoesToPoison(t *testing.T) {
	cfg := testIngestConfig()
	bus, err := NewBus(cfg)
	if err != nil {
		t.Fatalf("create bus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	poisoned, err := bus.Subscriber().Subscribe(ctx, cfg.PoisonTopic)
	if err != nil {
		t.Fatalf("subscribe poison topic: %v", err)
	}

	observer := newRecordingObserver()
	startConsumer(t, cfg, bus, observer)

	raw := message.NewMessage(uuid.NewString(), []byte("not json"))
	if err := bus.Publisher().Publish(bus.SubscribeTopic(), raw); err != nil {
		t.Fatalf("publish raw: %v", err)
	}

	select {
	case msg := <-poisoned:
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("malformed message never reached the poison topic")
	}
	if observer.count() != 0 {
		t.Errorf("observer saw %d events, want 0", observer.count())
	}
}

func TestInvalidEventRejectedByValidation(t *testing.T) {
	cfg := testIngestConfig()
	cfg.PoisonTopic = ""
	bus, err := NewBus(cfg)
	if err != nil {
		t.Fatalf("create bus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })

	// Missing subject_id: rejected before it touches the bus.
	ev := detection.Event{Kind: detection.EventMessageSent, OccurredAt: time.Now()}
	if err := NewPublisher(bus).Publish(context.Background(), &ev); err == nil {
		t.Error("expected validation error for event without subject_id")
	}
}

func TestTopicRouting(t *testing.T) {
	natsBus := &Bus{cfg: config.IngestConfig{NATS: true}}
	localBus := &Bus{cfg: config.IngestConfig{}}

	cases := []struct {
		kind detection.EventKind
		want string
	}{
		{detection.EventSessionStarted, "activity.calling"},
		{detection.EventMessageSent, "activity.messaging"},
		{detection.EventBookingRefunded, "activity.booking"},
		{detection.EventPayoutAttempted, "activity.payout"},
		{detection.EventIdentityReported, "activity.identity"},
		{detection.EventPanicTriggered, "activity.safety"},
	}
	for _, tc := range cases {
		ev := &detection.Event{Kind: tc.kind}
		if got := natsBus.TopicFor(ev); got != tc.want {
			t.Errorf("nats TopicFor(%s) = %q, want %q", tc.kind, got, tc.want)
		}
		if got := localBus.TopicFor(ev); got != "activity" {
			t.Errorf("local TopicFor(%s) = %q, want activity", tc.kind, got)
		}
	}

	if got := natsBus.SubscribeTopic(); got != "activity.>" {
		t.Errorf("nats SubscribeTopic = %q, want activity.>", got)
	}
	if got := localBus.SubscribeTopic(); got != "activity" {
		t.Errorf("local SubscribeTopic = %q, want activity", got)
	}
}
