package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gigmarket/backend/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	readLimit  = 512
)

// TokenVerifier validates the ?token= query parameter.
type TokenVerifier interface {
	VerifyToken(token string) (*domain.JWTClaims, error)
}

// StatusSource supplies the snapshot sent when a client connects.
type StatusSource interface {
	CheckSubscriptionStatus(ctx context.Context, userID string) (*domain.StatusResponse, error)
}

// StreamHandler upgrades /ws/subscription requests.
type StreamHandler struct {
	hub      *Hub
	auth     TokenVerifier
	status   StatusSource
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a StreamHandler. An empty origins list or "*" accepts any origin.
func NewStreamHandler(hub *Hub, auth TokenVerifier, status StatusSource, origins []string) *StreamHandler {
	h := &StreamHandler{hub: hub, auth: auth, status: status}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(origins) == 0 || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
	return h
}

// Handle serves GET /ws/subscription?token=JWT_TOKEN.
func (h *StreamHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	claims, err := h.auth.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := h.hub.subscribe(claims.Sub)
	slog.Info("subscription stream connected", "user_id", claims.Sub)

	// Snapshot first so the client does not wait for the next change.
	if status, err := h.status.CheckSubscriptionStatus(r.Context(), claims.Sub); err != nil {
		slog.Warn("failed to load subscription snapshot", "user_id", claims.Sub, "error", err)
	} else if payload, err := json.Marshal(Message{Type: TypeStatus, Data: status}); err == nil {
		h.hub.deliver(r.Context(), c, payload)
	}

	go writePump(conn, c)
	readPump(conn)

	h.hub.unsubscribe(c)
	slog.Info("subscription stream closed", "user_id", claims.Sub)
}

// readPump discards client frames and returns when the connection dies.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump owns all writes to conn. It closes conn when c.send is closed.
func writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
