package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newConnPair upgrades a real websocket session and returns the server side
// wrapped as a Conn alongside the raw client side.
func newConnPair(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()
	connCh := make(chan *Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- newConn(ws, "test-room", "anonymous")
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-connCh:
		t.Cleanup(func() { server.Close() })
		return server, client
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
		return nil, nil
	}
}

// relayHarness runs a started relay behind a live HTTP server.
type relayHarness struct {
	relay *Relay
	ts    *httptest.Server
}

func newRelayHarness(t *testing.T, cfg RegistryConfig) *relayHarness {
	t.Helper()
	rl := newRelay(cfg)
	if err := rl.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ts := httptest.NewServer(newRouter(rl))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		rl.stop(ctx)
		ts.Close()
	})
	return &relayHarness{relay: rl, ts: ts}
}

func (h *relayHarness) dial(t *testing.T, room, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws/" + room
	if token != "" {
		url += "?token=" + token
	}
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", room, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func readFrame(t *testing.T, client *websocket.Conn) []byte {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got type %d", kind)
	}
	return data
}

// expectNoFrame asserts nothing arrives on client within the grace window.
func expectNoFrame(t *testing.T, client *websocket.Conn) {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, data, err := client.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected frame %v", data)
	}
}
