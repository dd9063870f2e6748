package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"team_portal_service/internal/chat/domain"
	errprocess "team_portal_service/pkg/err"
	"team_portal_service/pkg/logger"

	"go.uber.org/zap"
)

// Notifier best effort fan-out of a persisted change
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// Connection one realtime connection of the broadcast group
// outbound frames are queued, a single writer goroutine drains Outbound()
type Connection struct {
	Handle string

	mu       sync.Mutex
	identity int64
	send     chan []byte
	closed   bool
}

func newConnection(handle string, buffer int) *Connection {
	return &Connection{Handle: handle, send: make(chan []byte, buffer)}
}

// Outbound frames to write, closed when connection unregister
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// Identity member bound by join, 0 before join
func (c *Connection) Identity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Connection) setIdentity(id int64) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

// enqueue non-blocking, false when buffer full or closed
func (c *Connection) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub single "team-chat" broadcast group
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]*Connection
	subscribed map[string]struct{}
	buffer     int
	metrics    *Metrics
}

// NewHub create hub, buffer is per connection outbound queue size
func NewHub(buffer int, metrics *Metrics) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		conns:      make(map[string]*Connection),
		subscribed: make(map[string]struct{}),
		buffer:     buffer,
		metrics:    metrics,
	}
}

// Register add a connection, it receives direct frames only until Subscribe
func (h *Hub) Register(handle string) *Connection {
	c := newConnection(handle, h.buffer)
	h.mu.Lock()
	h.conns[handle] = c
	h.mu.Unlock()
	h.metrics.connOpened()
	return c
}

// Subscribe join connection into the broadcast group
func (h *Hub) Subscribe(handle string, identity int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[handle]
	if !ok {
		return errprocess.NotFound(fmt.Sprintf("connection %s not registered", handle))
	}
	c.setIdentity(identity)
	h.subscribed[handle] = struct{}{}
	return nil
}

// Unregister remove connection and close its outbound queue
func (h *Hub) Unregister(handle string) {
	h.mu.Lock()
	c, ok := h.conns[handle]
	delete(h.conns, handle)
	delete(h.subscribed, handle)
	h.mu.Unlock()

	if ok {
		c.close()
		h.metrics.connClosed()
	}
}

// Subscribers number of joined connections
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribed)
}

// Broadcast offer event to every subscribed connection except exclude
// never blocks, slow subscribers lose the frame
func (h *Hub) Broadcast(event domain.Event, exclude string) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return errprocess.Transport(err, "marshal event")
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.subscribed))
	for handle := range h.subscribed {
		if handle == exclude {
			continue
		}
		targets = append(targets, h.conns[handle])
	}
	h.mu.RUnlock()

	var dropped []string
	for _, c := range targets {
		if !c.enqueue(frame) {
			dropped = append(dropped, c.Handle)
		}
	}
	if len(dropped) == 0 {
		return nil
	}

	h.metrics.recordDropped(len(dropped))
	err = errprocess.Transport(fmt.Errorf("%d subscriber(s) not reachable", len(dropped)), string(event.Type))
	logger.Log.Warn("broadcast frame dropped",
		zap.String("event", string(event.Type)),
		zap.Strings("handles", dropped),
		zap.Error(err))
	return err
}

// Send direct frame to one connection
func (h *Hub) Send(handle string, v interface{}) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return errprocess.Transport(err, "marshal frame")
	}

	h.mu.RLock()
	c, ok := h.conns[handle]
	h.mu.RUnlock()
	if !ok {
		return errprocess.Transport(fmt.Errorf("connection %s gone", handle), "send")
	}
	if !c.enqueue(frame) {
		h.metrics.recordDropped(1)
		return errprocess.Transport(fmt.Errorf("connection %s buffer full", handle), "send")
	}
	return nil
}

// Notify Notifier implementation, broadcast to the whole group
func (h *Hub) Notify(_ context.Context, event domain.Event) error {
	return h.Broadcast(event, "")
}
