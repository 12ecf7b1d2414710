package router

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shipanion/gateway/auth"
	"github.com/shipanion/gateway/config"
	"github.com/shipanion/gateway/dispatch"
	"github.com/shipanion/gateway/handlers"
	"github.com/shipanion/gateway/shipvox"
	"github.com/shipanion/gateway/store"
)

const testToken = "shipanion-test-token"

func setupGateway(t *testing.T) (*httptest.Server, store.Store, *auth.Service) {
	t.Helper()
	s := store.NewMemory()

	authSvc := auth.NewService(s, config.AuthConfig{
		JWTSecret: "test-secret-at-least-32-chars-long",
		JWTExpiry: config.Duration{Duration: time.Hour},
		TestToken: testToken,
	})

	client := shipvox.NewClient(config.ShipVoxConfig{
		Timeout: config.Duration{Duration: 10 * time.Second},
		Mock:    true,
	}, slog.Default())

	d := dispatch.New(slog.Default())
	handlers.Register(d, client)

	rt := New(s, authSvc, d, NewRegistry(slog.Default()), slog.Default(), Options{})

	srv := httptest.NewServer(http.HandlerFunc(rt.HandleWS))
	t.Cleanup(srv.Close)
	return srv, s, authSvc
}

// dialWS opens a WebSocket connection to the test server with an optional
// token and session id.
func dialWS(t *testing.T, srv *httptest.Server, token, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	sep := "?"
	if token != "" {
		url += sep + "token=" + token
		sep = "&"
	}
	if sessionID != "" {
		url += sep + "session_id=" + sessionID
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var v map[string]any
	if err := conn.ReadJSON(&v); err != nil {
		t.Fatalf("read: %v", err)
	}
	return v
}

func expectPolicyViolation(t *testing.T, conn *websocket.Conn, wantReason string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected close, got a message")
	}
	ce, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected CloseError, got %v", err)
	}
	if ce.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code: got %d, want %d", ce.Code, websocket.ClosePolicyViolation)
	}
	if ce.Text != wantReason {
		t.Errorf("close reason: got %q, want %q", ce.Text, wantReason)
	}
}

func TestWSMissingToken(t *testing.T) {
	srv, _, _ := setupGateway(t)
	conn := dialWS(t, srv, "", "")
	expectPolicyViolation(t, conn, "Missing authentication token")
}

func TestWSInvalidToken(t *testing.T) {
	srv, _, _ := setupGateway(t)
	conn := dialWS(t, srv, "not-a-real-token", "")
	expectPolicyViolation(t, conn, "Invalid or expired token")
}

func TestWSAuthorizationHeader(t *testing.T) {
	srv, _, _ := setupGateway(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Authorization": {"Bearer " + testToken}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial with header: %v", err)
	}
	defer func() { _ = conn.Close() }()

	sendJSON(t, conn, map[string]any{"type": "bogus"})
	resp := readJSON(t, conn)
	if resp["type"] != "error" {
		t.Errorf("expected error response, got %v", resp)
	}
}

func TestWSGetRatesRoundTrip(t *testing.T) {
	srv, _, _ := setupGateway(t)
	conn := dialWS(t, srv, testToken, "")

	sendJSON(t, conn, map[string]any{
		"type":      "get_rates",
		"requestId": "req-100",
		"payload": map[string]any{
			"origin_zip":      "90210",
			"destination_zip": "10001",
			"weight":          5,
		},
	})

	resp := readJSON(t, conn)
	if resp["type"] != "quote_ready" {
		t.Fatalf("type: got %v, want quote_ready (resp %v)", resp["type"], resp)
	}
	if resp["requestId"] != "req-100" {
		t.Errorf("requestId not echoed: got %v", resp["requestId"])
	}
	if resp["user"] != "user" {
		t.Errorf("user: got %v, want user", resp["user"])
	}
	if sessionID, _ := resp["session_id"].(string); sessionID == "" {
		t.Error("session_id missing from response")
	}
}

func TestWSErrorKeepsConnectionOpen(t *testing.T) {
	srv, _, _ := setupGateway(t)
	conn := dialWS(t, srv, testToken, "")

	sendJSON(t, conn, map[string]any{"type": "warp_drive", "requestId": "req-1"})
	resp := readJSON(t, conn)
	if resp["type"] != "error" || resp["is_error"] != true {
		t.Fatalf("expected error response, got %v", resp)
	}
	payload := resp["payload"].(map[string]any)
	if payload["message"] != "Unsupported message type: warp_drive" {
		t.Errorf("message: got %v", payload["message"])
	}

	// The connection survives handler failures.
	sendJSON(t, conn, map[string]any{
		"type":    "get_rates",
		"payload": map[string]any{"origin_zip": "90210", "destination_zip": "10001", "weight": 5},
	})
	resp = readJSON(t, conn)
	if resp["type"] != "quote_ready" {
		t.Errorf("connection unusable after error: %v", resp)
	}
}

func TestWSMalformedJSON(t *testing.T) {
	srv, _, _ := setupGateway(t)
	conn := dialWS(t, srv, testToken, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	resp := readJSON(t, conn)
	if resp["type"] != "error" {
		t.Fatalf("expected error response, got %v", resp)
	}
}

func TestWSSessionResume(t *testing.T) {
	srv, s, _ := setupGateway(t)

	// First connection creates a session.
	conn := dialWS(t, srv, testToken, "")
	sendJSON(t, conn, map[string]any{"type": "bogus"})
	resp := readJSON(t, conn)
	sessionID, _ := resp["session_id"].(string)
	if sessionID == "" {
		t.Fatal("no session_id in first response")
	}
	_ = conn.Close()

	// Reconnecting with the same session id as the same principal resumes it.
	conn2 := dialWS(t, srv, testToken, sessionID)
	sendJSON(t, conn2, map[string]any{"type": "bogus"})
	resp2 := readJSON(t, conn2)
	if resp2["session_id"] != sessionID {
		t.Errorf("resume: got session %v, want %v", resp2["session_id"], sessionID)
	}

	// The session survives disconnects in the store too.
	sess, err := s.GetSession(context.Background(), sessionID)
	if err != nil || sess == nil {
		t.Fatalf("session lost after disconnect: %v %v", sess, err)
	}
}

func TestWSForeignSessionGetsFresh(t *testing.T) {
	srv, _, authSvc := setupGateway(t)
	ctx := context.Background()

	if _, err := authSvc.Register(ctx, "bob", "password123"); err != nil {
		t.Fatal(err)
	}
	bobToken, err := authSvc.Login(ctx, "bob", "password123")
	if err != nil {
		t.Fatal(err)
	}

	// The test-token principal creates a session.
	conn := dialWS(t, srv, testToken, "")
	sendJSON(t, conn, map[string]any{"type": "bogus"})
	sessionID, _ := readJSON(t, conn)["session_id"].(string)
	_ = conn.Close()

	// Bob asks for it and silently gets a fresh one instead.
	conn2 := dialWS(t, srv, bobToken, sessionID)
	sendJSON(t, conn2, map[string]any{"type": "bogus"})
	resp := readJSON(t, conn2)
	if resp["session_id"] == sessionID {
		t.Error("foreign session id was resumed")
	}
	if resp["session_id"] == "" {
		t.Error("no fresh session created")
	}
	if resp["user"] != "bob" {
		t.Errorf("user: got %v, want bob", resp["user"])
	}
}

func TestWSUpdateBroadcastToSession(t *testing.T) {
	srv, _, _ := setupGateway(t)

	// Voice connection creates the session.
	voice := dialWS(t, srv, testToken, "")
	sendJSON(t, voice, map[string]any{"type": "bogus"})
	sessionID, _ := readJSON(t, voice)["session_id"].(string)

	// UI connection joins the same session.
	ui := dialWS(t, srv, testToken, sessionID)

	sendJSON(t, voice, map[string]any{
		"type":      "client_tool_call",
		"requestId": "req-7",
		"client_tool_call": map[string]any{
			"tool_call_id": "tc-1",
			"tool_name":    "get_shipping_quotes",
			"parameters": map[string]any{
				"from_zip": "90210",
				"to_zip":   "10001",
				"weight":   5,
			},
		},
	})

	// The voice connection gets the tool result and the update.
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		resp := readJSON(t, voice)
		got[resp["type"].(string)] = true
	}
	if !got["client_tool_result"] || !got["contextual_update"] {
		t.Errorf("voice connection received %v", got)
	}

	// The UI connection gets only the contextual update.
	update := readJSON(t, ui)
	if update["type"] != "contextual_update" {
		t.Fatalf("ui expected contextual_update, got %v", update)
	}
	if update["text"] != "quote_ready" {
		t.Errorf("update kind: got %v", update["text"])
	}
	if update["session_id"] != sessionID {
		t.Errorf("update session: got %v, want %v", update["session_id"], sessionID)
	}
	if update["requestId"] != "req-7" {
		t.Errorf("update requestId: got %v", update["requestId"])
	}
}

func TestWSBroadcastFlag(t *testing.T) {
	srv, _, _ := setupGateway(t)

	a := dialWS(t, srv, testToken, "")
	sendJSON(t, a, map[string]any{"type": "bogus"})
	sessionID, _ := readJSON(t, a)["session_id"].(string)

	b := dialWS(t, srv, testToken, sessionID)

	sendJSON(t, a, map[string]any{
		"type":      "get_rates",
		"broadcast": true,
		"payload":   map[string]any{"origin_zip": "90210", "destination_zip": "10001", "weight": 5},
	})

	respA := readJSON(t, a)
	if respA["type"] != "quote_ready" {
		t.Fatalf("sender: got %v", respA)
	}
	respB := readJSON(t, b)
	if respB["type"] != "quote_ready" {
		t.Fatalf("peer did not receive broadcast response: %v", respB)
	}
	if respB["requestId"] != respA["requestId"] {
		t.Errorf("broadcast copy differs: %v vs %v", respB["requestId"], respA["requestId"])
	}
}

func TestWSUpdateNeverCrossesSessions(t *testing.T) {
	srv, _, _ := setupGateway(t)

	a := dialWS(t, srv, testToken, "")
	sendJSON(t, a, map[string]any{"type": "bogus"})
	sessionA, _ := readJSON(t, a)["session_id"].(string)

	// A connection in its own, unrelated session.
	other := dialWS(t, srv, testToken, "")
	sendJSON(t, other, map[string]any{"type": "bogus"})
	sessionOther, _ := readJSON(t, other)["session_id"].(string)
	if sessionOther == "" || sessionOther == sessionA {
		t.Fatalf("expected a distinct session, got %q and %q", sessionA, sessionOther)
	}

	// A emits a contextual update and then a broadcast-flagged response.
	sendJSON(t, a, map[string]any{
		"type": "client_tool_call",
		"client_tool_call": map[string]any{
			"tool_call_id": "tc-9",
			"tool_name":    "get_shipping_quotes",
			"parameters": map[string]any{
				"from_zip": "90210",
				"to_zip":   "10001",
				"weight":   5,
			},
		},
	})
	readJSON(t, a) // tool result
	readJSON(t, a) // contextual update

	sendJSON(t, a, map[string]any{
		"type":      "get_rates",
		"broadcast": true,
		"payload":   map[string]any{"origin_zip": "90210", "destination_zip": "10001", "weight": 5},
	})
	readJSON(t, a)

	// Neither the update nor the broadcast copy may reach the foreign
	// session. Send a fenced message on the other connection: its next read
	// must be that message's own response, not any of A's traffic.
	sendJSON(t, other, map[string]any{"type": "bogus", "requestId": "fence-1"})
	resp := readJSON(t, other)
	if resp["requestId"] != "fence-1" {
		t.Fatalf("foreign session received cross-session traffic: %v", resp)
	}
	if resp["session_id"] != sessionOther {
		t.Errorf("session_id: got %v, want %v", resp["session_id"], sessionOther)
	}
}

func TestWSSessionStampOverridesClient(t *testing.T) {
	srv, _, _ := setupGateway(t)
	conn := dialWS(t, srv, testToken, "")

	sendJSON(t, conn, map[string]any{"type": "bogus", "session_id": "forged-session"})
	resp := readJSON(t, conn)
	if resp["session_id"] == "forged-session" {
		t.Error("client-supplied session_id was trusted")
	}
}

func TestStartSweeper(t *testing.T) {
	s := store.NewMemory()
	rt := New(s, auth.NewService(s, config.AuthConfig{JWTSecret: "test-secret-at-least-32-chars-long"}),
		dispatch.New(slog.Default()), NewRegistry(slog.Default()), slog.Default(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := s.CreateSession(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}

	rt.StartSweeper(ctx, 10*time.Millisecond, 20*time.Millisecond)

	// Leave the session untouched long enough for several sweep cycles.
	// GetSession refreshes activity, so only look once at the end.
	time.Sleep(300 * time.Millisecond)

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sess != nil {
		t.Error("idle session was never swept")
	}
}
