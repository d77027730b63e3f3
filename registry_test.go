package main

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
)

// bareConn builds a Conn that is never sent to or closed; enough for
// membership bookkeeping, which touches neither the socket nor the queue.
func bareConn() *Conn {
	return &Conn{id: uuid.Must(uuid.NewV4()), user: "anonymous"}
}

func TestRegistryJoinLeave(t *testing.T) {
	r := newRegistry(RegistryConfig{})
	c := bareConn()

	r.join("board-1", c)
	if got := r.members("board-1"); len(got) != 1 || got[0] != c {
		t.Fatalf("expected sole member after join, got %v", got)
	}

	r.leave("board-1", c)
	if rooms, conns := r.stats(); rooms != 0 || conns != 0 {
		t.Fatalf("expected empty registry after last leave, got %d rooms %d conns", rooms, conns)
	}
}

func TestRegistryRetainEmptyRooms(t *testing.T) {
	r := newRegistry(RegistryConfig{RetainEmptyRooms: true})
	c := bareConn()

	r.join("board-1", c)
	r.leave("board-1", c)

	rooms, conns := r.stats()
	if rooms != 1 {
		t.Fatalf("expected room retained, got %d rooms", rooms)
	}
	if conns != 0 {
		t.Fatalf("expected no members, got %d", conns)
	}
}

func TestRegistryRejoinMovesConnection(t *testing.T) {
	r := newRegistry(RegistryConfig{})
	c := bareConn()

	r.join("board-1", c)
	r.join("board-2", c)

	if got := r.members("board-1"); len(got) != 0 {
		t.Fatalf("connection still in previous room: %v", got)
	}
	if got := r.members("board-2"); len(got) != 1 {
		t.Fatalf("connection missing from new room: %v", got)
	}
	rooms, conns := r.stats()
	if rooms != 1 || conns != 1 {
		t.Fatalf("expected 1 room 1 conn, got %d/%d", rooms, conns)
	}
}

func TestRegistryLeaveUnknownConnection(t *testing.T) {
	r := newRegistry(RegistryConfig{})
	member := bareConn()
	r.join("board-1", member)

	// Must be a no-op, not a panic or a membership change.
	r.leave("board-1", bareConn())
	r.leave("other-room", member)

	if got := r.members("board-1"); len(got) != 1 {
		t.Fatalf("membership changed by bogus leave: %v", got)
	}
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	r := newRegistry(RegistryConfig{})

	const perRoom = 20
	rooms := []string{"a", "b", "c"}
	var wg sync.WaitGroup
	for _, room := range rooms {
		for i := 0; i < perRoom; i++ {
			wg.Add(1)
			go func(room string, stay bool) {
				defer wg.Done()
				c := bareConn()
				r.join(room, c)
				if !stay {
					r.leave(room, c)
				}
			}(room, i%2 == 0)
		}
	}
	wg.Wait()

	for _, room := range rooms {
		if got := len(r.members(room)); got != perRoom/2 {
			t.Fatalf("room %s: expected %d members after settle, got %d", room, perRoom/2, got)
		}
	}
	if roomCount, conns := r.stats(); roomCount != len(rooms) || conns != len(rooms)*perRoom/2 {
		t.Fatalf("unexpected totals: %d rooms %d conns", roomCount, conns)
	}
}

func TestRegistryBroadcastExcludesSender(t *testing.T) {
	r := newRegistry(RegistryConfig{})
	sender, senderClient := newConnPair(t)
	receiver, receiverClient := newConnPair(t)
	go sender.writePump()
	go receiver.writePump()

	r.join("board-42", sender)
	r.join("board-42", receiver)

	payload := []byte{0x01, 0x02}
	r.broadcast("board-42", sender, payload)

	if got := readFrame(t, receiverClient); string(got) != string(payload) {
		t.Fatalf("expected %v, got %v", payload, got)
	}
	expectNoFrame(t, senderClient)
}

func TestRegistryBroadcastIsolatesSlowConsumer(t *testing.T) {
	r := newRegistry(RegistryConfig{})
	sender, _ := newConnPair(t)
	healthy, healthyClient := newConnPair(t)
	stalled, _ := newConnPair(t)
	go sender.writePump()
	go healthy.writePump()
	// No writePump for stalled: its queue never drains.

	r.join("board-42", sender)
	r.join("board-42", healthy)
	r.join("board-42", stalled)

	for i := 0; i < sendQueueSize; i++ {
		stalled.Send([]byte("backlog"))
	}

	payload := []byte{0xAB}
	r.broadcast("board-42", sender, payload)

	if got := readFrame(t, healthyClient); string(got) != string(payload) {
		t.Fatalf("healthy member missed broadcast, got %v", got)
	}
	for _, m := range r.members("board-42") {
		if m == stalled {
			t.Fatal("stalled member not evicted")
		}
	}
	if got := len(r.members("board-42")); got != 2 {
		t.Fatalf("expected 2 remaining members, got %d", got)
	}
}

func TestRegistryBroadcastScopedToRoom(t *testing.T) {
	r := newRegistry(RegistryConfig{})
	sender, _ := newConnPair(t)
	other, otherClient := newConnPair(t)
	go sender.writePump()
	go other.writePump()

	r.join("board-1", sender)
	r.join("board-2", other)

	r.broadcast("board-1", sender, []byte{0xFF})
	expectNoFrame(t, otherClient)
}

func TestRegistryManyRoomNames(t *testing.T) {
	r := newRegistry(RegistryConfig{})
	for i := 0; i < 10; i++ {
		r.join(fmt.Sprintf("room-%d", i), bareConn())
	}
	if rooms, _ := r.stats(); rooms != 10 {
		t.Fatalf("expected 10 rooms, got %d", rooms)
	}
}
