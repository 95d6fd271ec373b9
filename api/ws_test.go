package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blanzp/protest-tracker/broadcast"
)

func dialWS(t *testing.T, svc *Service) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_ReceivesBroadcasts(t *testing.T) {
	// WHAT: A connected client receives published messages as JSON envelopes.
	// WHY: The WebSocket bridge is the only transport subscribers see.
	svc, _, b := setupTestService(t)
	conn := dialWS(t, svc)

	// Subscription registration races the dial; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for b.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if b.Count() != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Count())
	}

	b.Publish(broadcast.Message{Type: broadcast.TypeNewEvent, Data: map[string]any{"id": "e1"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg broadcast.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != broadcast.TypeNewEvent {
		t.Errorf("type = %q", msg.Type)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok || data["id"] != "e1" {
		t.Errorf("data = %+v", msg.Data)
	}
}

func TestWebSocket_DisconnectUnsubscribes(t *testing.T) {
	// WHAT: Closing the client connection removes its subscription.
	// WHY: Leaked subscriptions would accumulate forever on a public endpoint.
	svc, _, b := setupTestService(t)
	conn := dialWS(t, svc)

	deadline := time.Now().Add(2 * time.Second)
	for b.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for b.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if b.Count() != 0 {
		t.Errorf("subscribers = %d after disconnect, want 0", b.Count())
	}
}
