package main

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer. Sync frames can carry a full
	// document snapshot, not just incremental updates.
	maxFrameSize = 16 << 20

	// Outbound queue depth per connection.
	sendQueueSize = 256
)

var (
	// errConnClosed is the expected terminal condition of a connection:
	// the peer closed cleanly, or we closed our side.
	errConnClosed = errors.New("connection closed")

	// errTransport marks abnormal I/O failures, kept distinct from clean
	// closure for logging. Cleanup treats both the same.
	errTransport = errors.New("transport fault")

	// errSlowConsumer is returned when a recipient's outbound queue is
	// full. The caller decides whether to drop the recipient.
	errSlowConsumer = errors.New("send queue full")
)

type connState int

const (
	connOpen connState = iota
	connClosing
	connClosed
)

// Conn wraps one websocket session behind the send/receive/close surface the
// relay works against. Payloads are opaque binary frames; nothing here reads
// or rewrites them.
type Conn struct {
	id   uuid.UUID
	room string
	user string // verified user id, or "anonymous"

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	mu    sync.Mutex
	state connState

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, room, user string) *Conn {
	c := &Conn{
		id:   uuid.Must(uuid.NewV4()),
		room: room,
		user: user,
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	return c
}

func (c *Conn) ID() uuid.UUID { return c.id }
func (c *Conn) User() string  { return c.user }

func (c *Conn) currentState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// receive blocks until the next inbound frame arrives. A frame is returned
// whole or not at all. Clean peer closure (and our own Close unblocking the
// read) surfaces as errConnClosed; anything else wraps errTransport.
func (c *Conn) receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, errConnClosed
		}
		if c.currentState() != connOpen {
			return nil, errConnClosed
		}
		return nil, fmt.Errorf("%w: %v", errTransport, err)
	}
	return data, nil
}

// Send queues one frame for delivery. It never blocks: a full queue fails
// fast with errSlowConsumer so one stalled peer cannot hold up a broadcast.
// Sends during the close handshake are dropped; sends after close fail.
func (c *Conn) Send(msg []byte) error {
	switch c.currentState() {
	case connClosing:
		return nil
	case connClosed:
		return errConnClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errSlowConsumer
	}
}

// Close tears the connection down. Safe to call repeatedly and from
// concurrent goroutines; the underlying socket is not used again after the
// first call completes. Closing also unblocks an in-flight receive.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.setState(connClosing)
		deadline := time.Now().Add(writeWait)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		close(c.done)
		c.ws.Close()
		c.setState(connClosed)
	})
	return nil
}

// Messages yields inbound frames until the connection ends. The sequence
// stops on clean closure and on failure alike; abnormal failures are logged
// here so the caller doesn't have to care which it was.
func (c *Conn) Messages() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			msg, err := c.receive()
			if err != nil {
				if errors.Is(err, errTransport) {
					slog.Warn("abnormal disconnect", "conn", c.id, "room", c.room, "err", err)
				}
				return
			}
			if !yield(msg) {
				return
			}
		}
	}
}

// writePump owns all writes on the socket: queued frames and ping keepalives.
// It runs in its own goroutine, one per connection. Frames are written one
// per websocket message; sync payloads must never be coalesced.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
