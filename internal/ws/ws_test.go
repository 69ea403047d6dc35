package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/domain"
)

type stubAuth struct{}

func (stubAuth) VerifyToken(token string) (*domain.JWTClaims, error) {
	if token == "good" {
		return &domain.JWTClaims{Sub: "u1", Role: "freelancer"}, nil
	}
	return nil, errors.New("invalid")
}

type stubStatus struct{}

func (stubStatus) CheckSubscriptionStatus(ctx context.Context, userID string) (*domain.StatusResponse, error) {
	return &domain.StatusResponse{HasActiveSubscription: false}, nil
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub()
	c := hub.subscribe("u1")
	sub := &domain.Subscription{ID: "s1", UserID: "u1"}

	for i := 0; i < sendBuffer; i++ {
		hub.Publish(context.Background(), sub)
	}
	assert.Equal(t, 1, hub.Connections("u1"))

	hub.Publish(context.Background(), sub)
	assert.Equal(t, 0, hub.Connections("u1"))

	drained := 0
	for range c.send {
		drained++
	}
	assert.Equal(t, sendBuffer, drained, "send channel is closed after the drop")
}

func TestHub_PublishOnlyToOwner(t *testing.T) {
	hub := NewHub()
	mine := hub.subscribe("u1")
	other := hub.subscribe("u2")

	hub.Publish(context.Background(), &domain.Subscription{ID: "s1", UserID: "u1"})

	assert.Len(t, mine.send, 1)
	assert.Len(t, other.send, 0)

	hub.unsubscribe(mine)
	hub.unsubscribe(mine)
	assert.Equal(t, 0, hub.Connections("u1"))
}

func TestStreamHandler(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(NewStreamHandler(hub, stubAuth{}, stubStatus{}, nil).Handle))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	t.Run("rejects missing and bad tokens", func(t *testing.T) {
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=bad", nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("streams snapshot then updates", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=good", nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		var first Message
		require.NoError(t, conn.ReadJSON(&first))
		assert.Equal(t, TypeStatus, first.Type)

		require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 10*time.Millisecond)
		hub.Publish(context.Background(), &domain.Subscription{ID: "s1", UserID: "u1", Status: domain.StatusActive})

		var update struct {
			Type string              `json:"type"`
			Data domain.Subscription `json:"data"`
		}
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &update))
		assert.Equal(t, TypeSubscription, update.Type)
		assert.Equal(t, "s1", update.Data.ID)
		assert.Equal(t, domain.StatusActive, update.Data.Status)
	})
}
