package cache

import (
	"context"
	"time"

	"github.com/retroden/netplay-service/internal/domain"
)

type SessionCacheResult struct {
	Session domain.Session `json:"session"`
}

// SessionCache is a read-through cache for session lookups by ID. Mutations
// invalidate rather than update so the store stays the source of truth.
type SessionCache interface {
	Get(ctx context.Context, key string) (*SessionCacheResult, error)
	Set(ctx context.Context, key string, result *SessionCacheResult, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKeyByID(sessionID string) string
	Close() error
}
