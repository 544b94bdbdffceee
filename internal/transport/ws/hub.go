package ws

import (
	"log/slog"
	"sync"

	"github.com/cwrk-planet/race-service/internal/metrics"
	"github.com/cwrk-planet/race-service/internal/tracking"
)

// client is the hub's view of one socket: an id and a bounded outbox
// drained by the connection's write loop.
type client struct {
	id     string
	userID string // verified token subject, empty when auth is off
	send   chan []byte
}

func newClient(id, userID string, buffer int) *client {
	if buffer <= 0 {
		buffer = 1
	}
	return &client{id: id, userID: userID, send: make(chan []byte, buffer)}
}

// Hub tracks live sockets and race subscriptions. It implements
// tracking.Fanout; no method blocks on a slow socket.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{} // raceID -> connIDs
}

var _ tracking.Fanout = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
}

// Remove forgets the connection, drops its subscriptions and closes its
// outbox so the write loop can exit.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	delete(h.clients, connID)
	for raceID, subs := range h.rooms {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.rooms, raceID)
		}
	}
	close(c.send)
}

func (h *Hub) Subscribe(raceID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return
	}
	subs, ok := h.rooms[raceID]
	if !ok {
		subs = make(map[string]struct{})
		h.rooms[raceID] = subs
	}
	subs[connID] = struct{}{}
}

func (h *Hub) Unsubscribe(raceID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[raceID]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.rooms, raceID)
		}
	}
}

func (h *Hub) Publish(raceID string, ev tracking.Event) {
	data, err := encode(ev)
	if err != nil {
		slog.Error("ws.Publish: encode", slog.String("type", ev.Type), slog.Any("err", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID := range h.rooms[raceID] {
		if c, ok := h.clients[connID]; ok {
			h.enqueue(c, data)
		}
	}
}

func (h *Hub) Send(connID string, ev tracking.Event) {
	data, err := encode(ev)
	if err != nil {
		slog.Error("ws.Send: encode", slog.String("type", ev.Type), slog.Any("err", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if c, ok := h.clients[connID]; ok {
		h.enqueue(c, data)
	}
}

// Subscribers returns how many connections follow raceID.
func (h *Hub) Subscribers(raceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[raceID])
}

// enqueue must run under h.mu so Remove cannot close the outbox mid-send.
func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		metrics.WSMessagesDropped.Inc()
		slog.Debug("ws outbox full, message dropped", "conn_id", c.id)
	}
}
