// Package display pushes token rotations to connected display clients over
// WebSocket, so token screens update without polling.
package display

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/presenza-app/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60

	// EventTokenRotated is pushed on every mint.
	EventTokenRotated = "token.rotated"
)

// RotationEvent is the payload pushed to displays on each rotation.
type RotationEvent struct {
	SessionID   string    `json:"session_id"`
	Token       string    `json:"token"`
	Image       string    `json:"image,omitempty"`
	SessionName string    `json:"session_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Publisher publishes rotation events for cross-instance fanout.
type Publisher interface {
	PublishRotation(payload []byte) error
}

// Subscriber subscribes to rotation events published by other instances.
type Subscriber interface {
	SubscribeRotations(handler func(payload []byte)) (cancel func(), err error)
}

// Hub maintains the set of connected display clients and broadcasts rotation
// events to them. With Redis pub/sub wired in, rotations minted on one
// instance reach displays connected to another.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
	pub     Publisher
	cancel  func()
}

// NewHub creates a display hub. pub and sub may be nil for single-instance
// deployments.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		pub:     pub,
	}
	if sub != nil {
		cancel, err := sub.SubscribeRotations(func(payload []byte) {
			h.broadcastLocal(json.RawMessage(payload))
		})
		if err != nil {
			logger.Warn("rotation subscription failed, cross-instance fanout disabled", zap.Error(err))
		} else {
			h.cancel = cancel
		}
	}
	return h
}

// Register adds a display client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("display connected", zap.String("client_id", c.ID), zap.Int("displays", count))
}

// Unregister removes a display client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("display disconnected", zap.String("client_id", c.ID), zap.Int("displays", count))
}

// BroadcastRotation pushes a freshly minted session to local displays and
// publishes it for displays on other instances. Failures are logged only;
// rotation never depends on displays.
func (h *Hub) BroadcastRotation(s *models.TokenSession, image string) {
	payload, err := json.Marshal(RotationEvent{
		SessionID:   s.ID.String(),
		Token:       s.Token,
		Image:       image,
		SessionName: s.Label,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	})
	if err != nil {
		return
	}
	// With Redis wired, publish only: our own subscription delivers the local
	// broadcast exactly once, same as on every other instance.
	if h.pub != nil && h.cancel != nil {
		if err := h.pub.PublishRotation(payload); err == nil {
			return
		} else {
			h.logger.Warn("rotation publish failed, falling back to local broadcast", zap.Error(err))
		}
	}
	h.broadcastLocal(json.RawMessage(payload))
}

// DisplayCount returns the number of connected displays.
func (h *Hub) DisplayCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close cancels the Redis subscription, if any.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Hub) broadcastLocal(data json.RawMessage) {
	msg := WSMessage{Event: EventTokenRotated, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow display; drop rather than block the rotation path.
		}
	}
}
