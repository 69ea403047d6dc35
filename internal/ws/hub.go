// Package ws streams subscription changes to connected users over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gigmarket/backend/internal/domain"
)

// sendBuffer is how many undelivered messages a client may queue before it is dropped.
const sendBuffer = 16

// Message is one frame pushed to a client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Frame types.
const (
	TypeStatus       = "status"
	TypeSubscription = "subscription"
)

type client struct {
	userID string
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans subscription changes out to the owning user's connections.
// It implements service.Notifier.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*client]struct{})}
}

func (h *Hub) subscribe(userID string) *client {
	c := &client{userID: userID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	return c
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	c.close()
}

// Connections reports how many clients userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Publish queues sub for every connection of its owner. Clients whose
// buffer is full are disconnected.
func (h *Hub) Publish(ctx context.Context, sub *domain.Subscription) {
	payload, err := json.Marshal(Message{Type: TypeSubscription, Data: sub})
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode subscription frame", "subscription_id", sub.ID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[sub.UserID] {
		h.deliverLocked(ctx, c, payload)
	}
}

// deliver queues payload for a single client if it is still connected.
func (h *Hub) deliver(ctx context.Context, c *client, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.userID][c]; ok {
		h.deliverLocked(ctx, c, payload)
	}
}

func (h *Hub) deliverLocked(ctx context.Context, c *client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		slog.WarnContext(ctx, "dropping slow websocket client", "user_id", c.userID)
		h.removeLocked(c)
	}
}
