package main

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
)

func TestRelayForwardsBetweenClients(t *testing.T) {
	h := newRelayHarness(t, RegistryConfig{})
	c1 := h.dial(t, "board-42", "")
	c2 := h.dial(t, "board-42", "")
	waitFor(t, "both clients joined", func() bool {
		return len(h.relay.registry.members("board-42")) == 2
	})

	payload := []byte{0x01, 0x02}
	if err := c1.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := readFrame(t, c2); string(got) != string(payload) {
		t.Fatalf("expected %v, got %v", payload, got)
	}
	// The sender must not hear its own message.
	expectNoFrame(t, c1)
}

func TestRelayScopesTrafficToRoom(t *testing.T) {
	h := newRelayHarness(t, RegistryConfig{})
	c1 := h.dial(t, "board-1", "")
	c2 := h.dial(t, "board-1", "")
	other := h.dial(t, "board-2", "")
	waitFor(t, "all clients joined", func() bool {
		rooms, conns := h.relay.registry.stats()
		return rooms == 2 && conns == 3
	})

	if err := c1.WriteMessage(websocket.BinaryMessage, []byte{0xEE}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFrame(t, c2); got[0] != 0xEE {
		t.Fatalf("room member missed frame: %v", got)
	}
	expectNoFrame(t, other)
}

func TestRelayPreservesSenderOrder(t *testing.T) {
	h := newRelayHarness(t, RegistryConfig{})
	c1 := h.dial(t, "board-42", "")
	c2 := h.dial(t, "board-42", "")
	waitFor(t, "both clients joined", func() bool {
		return len(h.relay.registry.members("board-42")) == 2
	})

	const n = 30
	for i := byte(0); i < n; i++ {
		if err := c1.WriteMessage(websocket.BinaryMessage, []byte{i}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	for i := byte(0); i < n; i++ {
		got := readFrame(t, c2)
		if len(got) != 1 || got[0] != i {
			t.Fatalf("frame %d out of order: got %v", i, got)
		}
	}
}

func TestRelayRoomTeardownOnDisconnect(t *testing.T) {
	h := newRelayHarness(t, RegistryConfig{})
	c1 := h.dial(t, "board-7", "")
	waitFor(t, "first client joined", func() bool {
		return len(h.relay.registry.members("board-7")) == 1
	})

	c1.Close()
	waitFor(t, "room destroyed", func() bool {
		rooms, _ := h.relay.registry.stats()
		return rooms == 0
	})

	// A later join gets a fresh room with no residual membership.
	h.dial(t, "board-7", "")
	waitFor(t, "fresh room", func() bool {
		return len(h.relay.registry.members("board-7")) == 1
	})
}

func TestRelayRejectsInvalidToken(t *testing.T) {
	tokenSecret = []byte("test-secret")
	h := newRelayHarness(t, RegistryConfig{})

	client := h.dial(t, "board-42", "not-a-token")
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}

	if _, conns := h.relay.registry.stats(); conns != 0 {
		t.Fatalf("rejected connection reached a room")
	}
}

func TestRelayRejectsExpiredToken(t *testing.T) {
	tokenSecret = []byte("test-secret")
	h := newRelayHarness(t, RegistryConfig{})

	uid := uuid.Must(uuid.NewV4())
	expired := issueToken(uid, tokenTypeAccess, -time.Minute)

	client := h.dial(t, "board-42", expired)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if _, conns := h.relay.registry.stats(); conns != 0 {
		t.Fatalf("rejected connection reached a room")
	}
}

func TestRelayAdmitsValidToken(t *testing.T) {
	tokenSecret = []byte("test-secret")
	h := newRelayHarness(t, RegistryConfig{})

	uid := uuid.Must(uuid.NewV4())
	token := issueToken(uid, tokenTypeAccess, accessTokenTTL)

	h.dial(t, "board-42", token)
	waitFor(t, "authenticated client joined", func() bool {
		members := h.relay.registry.members("board-42")
		return len(members) == 1 && members[0].User() == uid.String()
	})
}

func TestRelayStopClosesConnections(t *testing.T) {
	h := newRelayHarness(t, RegistryConfig{})
	client := h.dial(t, "board-42", "")
	waitFor(t, "client joined", func() bool {
		_, conns := h.relay.registry.stats()
		return conns == 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.relay.stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed by stop")
	}
	if _, conns := h.relay.registry.stats(); conns != 0 {
		t.Fatal("connections survived stop")
	}

	// Admissions after stop are turned away immediately.
	late := h.dial(t, "board-42", "")
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Fatal("expected late connection to be refused")
	}
	if _, conns := h.relay.registry.stats(); conns != 0 {
		t.Fatal("late connection reached the registry")
	}
}

func TestRelayDoubleStart(t *testing.T) {
	rl := newRelay(RegistryConfig{})
	if err := rl.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rl.start(); err == nil {
		t.Fatal("expected second start to fail")
	}
}
