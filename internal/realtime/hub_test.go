package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmynk/splitledger/internal/middleware"
)

// newTestServer exposes the WebSocket handler with the subject taken from a
// "user" query parameter, standing in for the auth middleware.
func newTestServer(t *testing.T, registry *Registry) *httptest.Server {
	t.Helper()
	handler := NewHandler(registry, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(middleware.WithUser(r.Context(), r.URL.Query().Get("user")))
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID, channelID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	if channelID != "" {
		url += "&channel=" + channelID
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed for %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("Failed to decode frame %q: %v", payload, err)
	}
	return msg
}

func writeMessage(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	msg, err := NewMessage(msgType, data, "")
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	payload, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
}

func TestChannelLifecycle(t *testing.T) {
	registry := NewRegistry(nil)
	srv := newTestServer(t, registry)

	alice := dial(t, srv, "alice", "trip")
	msg := readMessage(t, alice)
	if msg.Type != TypeConnected {
		t.Fatalf("first frame type = %s, want connected", msg.Type)
	}
	var roster rosterPayload
	if err := json.Unmarshal(msg.Data, &roster); err != nil {
		t.Fatalf("Failed to decode roster: %v", err)
	}
	if roster.Channel != "trip" || len(roster.Users) != 1 || roster.Users[0] != "alice" {
		t.Errorf("unexpected roster: %+v", roster)
	}

	bob := dial(t, srv, "bob", "trip")
	msg = readMessage(t, bob)
	if msg.Type != TypeConnected {
		t.Fatalf("bob's first frame type = %s, want connected", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, &roster); err != nil {
		t.Fatalf("Failed to decode roster: %v", err)
	}
	if len(roster.Users) != 2 {
		t.Errorf("bob's roster = %v, want both users", roster.Users)
	}

	// Alice hears of bob's arrival; bob gets no echo of his own.
	msg = readMessage(t, alice)
	if msg.Type != TypeUserConnected || msg.Sender != "bob" {
		t.Fatalf("alice got %s from %s, want user_connected from bob", msg.Type, msg.Sender)
	}

	writeMessage(t, bob, TypePing, nil)
	msg = readMessage(t, bob)
	if msg.Type != TypePong {
		t.Fatalf("bob got %s after ping, want pong (no echoed arrival)", msg.Type)
	}

	bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	bob.Close()

	msg = readMessage(t, alice)
	if msg.Type != TypeUserDisconnected || msg.Sender != "bob" {
		t.Fatalf("alice got %s from %s, want user_disconnected from bob", msg.Type, msg.Sender)
	}
}

func TestBroadcastExcludesActor(t *testing.T) {
	registry := NewRegistry(nil)
	srv := newTestServer(t, registry)

	alice := dial(t, srv, "alice", "trip")
	readMessage(t, alice) // connected
	bob := dial(t, srv, "bob", "trip")
	readMessage(t, bob)   // connected
	readMessage(t, alice) // bob's arrival

	msg, err := NewMessage(TypeExpenseAdded, map[string]string{"id": "exp-1"}, "bob")
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	registry.Broadcast("trip", msg, "bob")

	got := readMessage(t, alice)
	if got.Type != TypeExpenseAdded || got.Sender != "bob" {
		t.Fatalf("alice got %s from %s, want expense_added from bob", got.Type, got.Sender)
	}

	// Bob, the actor, hears nothing; his next frame is the pong to his ping.
	writeMessage(t, bob, TypePing, nil)
	if got := readMessage(t, bob); got.Type != TypePong {
		t.Fatalf("bob got %s, want pong (no self-broadcast)", got.Type)
	}
}

func TestPersonalChannelDelivery(t *testing.T) {
	registry := NewRegistry(nil)
	srv := newTestServer(t, registry)

	// No channel parameter: the session lands on the personal stream.
	alice := dial(t, srv, "alice", "")
	readMessage(t, alice) // connected

	msg, err := NewMessage(TypeSettlementAdded, map[string]string{"id": "set-1"}, "bob")
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	registry.NotifyUsers([]string{"alice", "bob"}, msg, "bob")

	got := readMessage(t, alice)
	if got.Type != TypeSettlementAdded {
		t.Fatalf("alice got %s, want settlement_added", got.Type)
	}
}

func TestRequestSync(t *testing.T) {
	registry := NewRegistry(func(ctx context.Context, channelID, userID string) (any, error) {
		return map[string]string{"channel": channelID, "user": userID}, nil
	})
	srv := newTestServer(t, registry)

	alice := dial(t, srv, "alice", "trip")
	readMessage(t, alice) // connected

	writeMessage(t, alice, TypeRequestSync, nil)
	msg := readMessage(t, alice)
	if msg.Type != TypeSyncResponse {
		t.Fatalf("got %s, want sync_response", msg.Type)
	}
	var state map[string]string
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		t.Fatalf("Failed to decode sync data: %v", err)
	}
	if state["channel"] != "trip" || state["user"] != "alice" {
		t.Errorf("unexpected sync state: %v", state)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	registry := NewRegistry(nil)
	srv := newTestServer(t, registry)

	alice := dial(t, srv, "alice", "trip")
	readMessage(t, alice) // connected

	alice.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := alice.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	// The connection survives: a ping still draws a pong.
	writeMessage(t, alice, TypePing, nil)
	if msg := readMessage(t, alice); msg.Type != TypePong {
		t.Fatalf("got %s after malformed frame, want pong", msg.Type)
	}
}

func TestReconnectReplacesSession(t *testing.T) {
	registry := NewRegistry(nil)
	srv := newTestServer(t, registry)

	first := dial(t, srv, "alice", "trip")
	readMessage(t, first) // connected

	second := dial(t, srv, "alice", "trip")
	msg := readMessage(t, second)
	if msg.Type != TypeConnected {
		t.Fatalf("got %s, want connected", msg.Type)
	}
	var roster rosterPayload
	if err := json.Unmarshal(msg.Data, &roster); err != nil {
		t.Fatalf("Failed to decode roster: %v", err)
	}
	if len(roster.Users) != 1 {
		t.Errorf("roster = %v, want alice alone after reconnect", roster.Users)
	}

	// The replacement keeps receiving; the stale session is gone.
	writeMessage(t, second, TypePing, nil)
	if msg := readMessage(t, second); msg.Type != TypePong {
		t.Fatalf("got %s, want pong on the new session", msg.Type)
	}
}

func TestParseUserChannel(t *testing.T) {
	if user, ok := ParseUserChannel(UserChannel("alice")); !ok || user != "alice" {
		t.Errorf("ParseUserChannel(user:alice) = %q, %v", user, ok)
	}
	if _, ok := ParseUserChannel("trip"); ok {
		t.Error("ParseUserChannel accepted a group channel")
	}
}
