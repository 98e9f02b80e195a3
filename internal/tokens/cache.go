package tokens

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/presenza-app/backend/internal/models"
)

const currentTokenKey = "presence:current_token"

// CachedToken is the Redis representation of the current token, including the
// rendered image so reads avoid both the database and the renderer.
type CachedToken struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	Label     string    `json:"label"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Cache keeps the most recently minted token in Redis with a TTL bound to its
// validity window. The store remains authoritative; a cache miss falls back to
// a store read.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCache creates a current-token cache.
func NewCache(client *redis.Client, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, logger: logger}
}

// SetCurrent stores the session as the current token. Best effort: failures
// are logged, never propagated.
func (c *Cache) SetCurrent(ctx context.Context, s *models.TokenSession, image string) {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return
	}
	body, err := json.Marshal(CachedToken{
		SessionID: s.ID.String(),
		Token:     s.Token,
		Label:     s.Label,
		Image:     image,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, currentTokenKey, body, ttl).Err(); err != nil {
		c.logger.Warn("current token cache write failed", zap.Error(err))
	}
}

// GetCurrent returns the cached current token, or nil on miss or error.
func (c *Cache) GetCurrent(ctx context.Context) *CachedToken {
	raw, err := c.client.Get(ctx, currentTokenKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("current token cache read failed", zap.Error(err))
		}
		return nil
	}
	var ct CachedToken
	if err := json.Unmarshal(raw, &ct); err != nil {
		return nil
	}
	if !time.Now().Before(ct.ExpiresAt) {
		return nil
	}
	return &ct
}
