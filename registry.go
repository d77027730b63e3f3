package main

import (
	"log/slog"
	"sync"
)

// RegistryConfig controls room lifecycle policy.
type RegistryConfig struct {
	// RetainEmptyRooms keeps a room in the registry after its last member
	// leaves. The default is to destroy empty rooms.
	RetainEmptyRooms bool
}

// Registry maps room names to their member connections. It is the only
// place room membership is mutated; a single mutex covers the whole map,
// which keeps create-vs-destroy decisions atomic per room.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]map[Connection]bool
	member map[Connection]string
	retain bool
}

func newRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		rooms:  make(map[string]map[Connection]bool),
		member: make(map[Connection]string),
		retain: cfg.RetainEmptyRooms,
	}
}

// join adds c to room, creating the room if absent. A connection belongs to
// at most one room; joining a different room leaves the previous one first.
func (r *Registry) join(room string, c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.member[c]; ok && prev != room {
		r.removeLocked(prev, c)
	}
	set, ok := r.rooms[room]
	if !ok {
		set = make(map[Connection]bool)
		r.rooms[room] = set
		slog.Info("room created", "room", room)
	}
	set[c] = true
	r.member[c] = room
	slog.Info("joined room", "room", room, "conn", c.ID(), "user", c.User(), "members", len(set))
}

// leave removes c from room. Removing the last member destroys the room in
// the same critical section, so a concurrent join either sees the old room
// with members or creates a fresh one, never an empty leftover.
func (r *Registry) leave(room string, c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.member[c]
	if !ok {
		// Already removed, e.g. evicted by a broadcast failure before
		// the serve loop's own cleanup ran. Membership is decremented
		// at most once, so this is a quiet no-op.
		slog.Debug("leave for already-removed connection", "room", room, "conn", c.ID())
		return
	}
	if cur != room {
		// Should be unreachable: every leave is paired with the join
		// that named this room. Degrade to a logged no-op rather than
		// corrupting another room's membership.
		slog.Warn("leave for connection in different room", "room", room, "joined", cur, "conn", c.ID())
		return
	}
	r.removeLocked(room, c)
}

func (r *Registry) removeLocked(room string, c Connection) {
	set := r.rooms[room]
	delete(set, c)
	delete(r.member, c)
	slog.Info("left room", "room", room, "conn", c.ID(), "members", len(set))
	if len(set) == 0 && !r.retain {
		delete(r.rooms, room)
		slog.Info("room destroyed", "room", room)
	}
}

// broadcast delivers payload to every member of room except sender. The
// member set is snapshotted under the lock and sends happen outside it, so
// a slow recipient cannot stall joins or other rooms. A recipient that
// fails to accept the frame is dropped and closed on its own; delivery to
// the rest continues.
func (r *Registry) broadcast(room string, sender Connection, payload []byte) {
	r.mu.Lock()
	recipients := make([]Connection, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		if c != sender {
			recipients = append(recipients, c)
		}
	}
	r.mu.Unlock()

	for _, c := range recipients {
		if err := c.Send(payload); err != nil {
			slog.Warn("dropping recipient", "room", room, "conn", c.ID(), "err", err)
			r.leave(room, c)
			go c.Close()
		}
	}
}

// members returns a snapshot of room's member set, for diagnostics.
func (r *Registry) members(room string) []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Connection, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		out = append(out, c)
	}
	return out
}

// stats reports current room and connection counts.
func (r *Registry) stats() (rooms, conns int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms), len(r.member)
}
