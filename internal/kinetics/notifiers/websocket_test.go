package notifiers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daniacca/stochkin/internal/kinetics"
	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, n *WebSocketNotifier, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for n.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, n.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) kinetics.RunEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev kinetics.RunEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return ev
}

func TestWebSocketNotifierBroadcast(t *testing.T) {
	notifier := NewWebSocketNotifier("ws", WebSocketOptions{})
	defer notifier.Close()
	if notifier.Type() != TypeWebSocket {
		t.Errorf("expected type %q, got %q", TypeWebSocket, notifier.Type())
	}

	srv := httptest.NewServer(notifier)
	defer srv.Close()

	all := dial(t, srv, "")
	defer all.Close()
	filtered := dial(t, srv, "?run_id=run-2")
	defer filtered.Close()
	waitForClients(t, notifier, 2)

	ctx := context.Background()
	if err := notifier.Notify(ctx, kinetics.RunEvent{Type: kinetics.EventRunStarted, RunID: "run-1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := notifier.Notify(ctx, kinetics.RunEvent{Type: kinetics.EventRunStarted, RunID: "run-2"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if ev := readEvent(t, all); ev.RunID != "run-1" {
		t.Errorf("expected run-1 first, got %s", ev.RunID)
	}
	if ev := readEvent(t, all); ev.RunID != "run-2" {
		t.Errorf("expected run-2 second, got %s", ev.RunID)
	}
	if ev := readEvent(t, filtered); ev.RunID != "run-2" {
		t.Errorf("filtered client should only see run-2, got %s", ev.RunID)
	}
}

func TestWebSocketNotifierUnregistersOnDisconnect(t *testing.T) {
	notifier := NewWebSocketNotifier("ws", WebSocketOptions{})
	defer notifier.Close()
	srv := httptest.NewServer(notifier)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitForClients(t, notifier, 1)
	conn.Close()
	waitForClients(t, notifier, 0)
}

func TestWebSocketNotifierClose(t *testing.T) {
	notifier := NewWebSocketNotifier("ws", WebSocketOptions{})
	if err := notifier.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := notifier.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := notifier.Notify(context.Background(), kinetics.RunEvent{}); err == nil {
		t.Fatal("expected error notifying a closed notifier")
	}
}

func dialWithOrigin(srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{origin}})
}

func TestWebSocketNotifierOriginCheck(t *testing.T) {
	sameOrigin := NewWebSocketNotifier("ws", WebSocketOptions{})
	defer sameOrigin.Close()
	srv := httptest.NewServer(sameOrigin)
	defer srv.Close()

	if _, resp, err := dialWithOrigin(srv, "http://evil.example"); err == nil {
		t.Fatal("expected cross-origin upgrade to be refused")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}
	conn, _, err := dialWithOrigin(srv, srv.URL)
	if err != nil {
		t.Fatalf("same-origin upgrade: %v", err)
	}
	conn.Close()

	allowed := NewWebSocketNotifier("ws", WebSocketOptions{AllowedOrigins: []string{"https://dashboard.example"}})
	defer allowed.Close()
	srv2 := httptest.NewServer(allowed)
	defer srv2.Close()

	conn, _, err = dialWithOrigin(srv2, "https://dashboard.example")
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	conn.Close()
	if _, _, err := dialWithOrigin(srv2, "https://other.example"); err == nil {
		t.Error("expected unlisted origin to be refused")
	}
}

func TestWebSocketNotifierEventFilter(t *testing.T) {
	notifier := NewWebSocketNotifier("ws", WebSocketOptions{
		Filter: EventFilter{Events: []string{kinetics.EventRunFinished}},
	})
	defer notifier.Close()
	srv := httptest.NewServer(notifier)
	defer srv.Close()

	conn := dial(t, srv, "")
	defer conn.Close()
	waitForClients(t, notifier, 1)

	ctx := context.Background()
	for _, typ := range []string{kinetics.EventRunStarted, kinetics.EventRunProgress, kinetics.EventRunFinished} {
		if err := notifier.Notify(ctx, kinetics.RunEvent{Type: typ, RunID: "run-1"}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	if ev := readEvent(t, conn); ev.Type != kinetics.EventRunFinished {
		t.Errorf("expected only %s, got %s", kinetics.EventRunFinished, ev.Type)
	}
}
