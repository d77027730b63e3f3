package main

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Connection is the capability surface the relay needs from a transport
// session. *Conn binds it to gorilla websockets; nothing below this line
// knows which transport is in play.
type Connection interface {
	ID() uuid.UUID
	User() string
	Messages() iter.Seq[[]byte]
	Send(msg []byte) error
	Close() error
}

// Relay owns the room registry and the per-connection serve loops. It is
// constructed once at process startup, started before the listener admits
// any connection, and stopped once during shutdown.
type Relay struct {
	registry *Registry

	mu      sync.Mutex
	started bool
	stopped bool
	conns   map[Connection]bool
	wg      sync.WaitGroup
}

func newRelay(cfg RegistryConfig) *Relay {
	return &Relay{
		registry: newRegistry(cfg),
		conns:    make(map[Connection]bool),
	}
}

// start marks the relay ready to admit connections.
func (rl *Relay) start() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.started || rl.stopped {
		return errors.New("relay already started")
	}
	rl.started = true
	slog.Info("relay started")
	return nil
}

func (rl *Relay) admit(c Connection) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if !rl.started || rl.stopped {
		return false
	}
	rl.conns[c] = true
	rl.wg.Add(1)
	return true
}

func (rl *Relay) release(c Connection) {
	rl.mu.Lock()
	delete(rl.conns, c)
	rl.mu.Unlock()
	rl.wg.Done()
}

// serve runs one connection's receive loop to completion: join the room,
// forward every inbound frame to the other members, and on any exit —
// clean closure, transport failure, or a panic mid-loop — leave the room
// and close the connection exactly once.
func (rl *Relay) serve(room string, c Connection) {
	if !rl.admit(c) {
		c.Close()
		return
	}
	defer rl.release(c)

	rl.registry.join(room, c)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("relay loop panic, treating as abnormal disconnect",
				"room", room, "conn", c.ID(), "panic", p)
		}
		rl.registry.leave(room, c)
		c.Close()
	}()

	for msg := range c.Messages() {
		rl.registry.broadcast(room, c, msg)
	}
}

// stop refuses further admissions, closes every in-flight connection, and
// waits for their serve loops to drain or ctx to expire.
func (rl *Relay) stop(ctx context.Context) error {
	rl.mu.Lock()
	if rl.stopped {
		rl.mu.Unlock()
		return nil
	}
	rl.stopped = true
	conns := make([]Connection, 0, len(rl.conns))
	for c := range rl.conns {
		conns = append(conns, c)
	}
	rl.mu.Unlock()

	slog.Info("relay stopping", "conns", len(conns))
	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		rl.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("relay stopped")
		return nil
	case <-ctx.Done():
		slog.Warn("relay stop timed out with connections still draining")
		return ctx.Err()
	}
}
