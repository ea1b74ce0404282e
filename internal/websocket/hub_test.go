// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avedell/vigil/internal/signal"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("hub did not stop")
		}
	})
	return hub
}

// fakeClient registers a bare client so broadcasts can be observed
// without a real connection.
func fakeClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, 256)}
	hub.register <- client

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return client
}

func TestBroadcastReachesClients(t *testing.T) {
	hub := runHub(t)
	client := fakeClient(t, hub)

	sig := signal.Signal{SubjectID: "sub-1", Type: signal.TypePanicSpike, Severity: 4}
	hub.Broadcast(sig)

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeSignal {
			t.Errorf("message type = %q, want signal", msg.Type)
		}
		got, ok := msg.Data.(signal.Signal)
		if !ok || got.SubjectID != "sub-1" {
			t.Errorf("data = %#v", msg.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast never delivered")
	}
}

func TestSlowClientDropped(t *testing.T) {
	hub := runHub(t)
	client := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message)} // no buffer, never read
	hub.register <- client

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	hub.Broadcast(signal.Signal{SubjectID: "sub-1", Type: signal.TypeCopyPaste, Severity: 1})

	deadline = time.Now().Add(time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Error("slow client should have been dropped")
	}
}

func TestServeWSEndToEnd(t *testing.T) {
	hub := runHub(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", hub.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/feed"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	hub.Broadcast(signal.Signal{SubjectID: "sub-2", Type: signal.TypeTokenDrain, Severity: 2})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != MessageTypeSignal {
		t.Errorf("message type = %q, want signal", msg.Type)
	}
}
