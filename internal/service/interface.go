package service

import (
	"context"

	"github.com/retroden/netplay-service/internal/domain"
)

// NetplayService coordinates session lifecycle, membership, and expiry. All
// failures surface as apperr-tagged errors; handlers map codes to HTTP status.
type NetplayService interface {
	// CreateSession creates a PENDING session hosted by the user, with a
	// fresh join code and a clamped TTL.
	CreateSession(ctx context.Context, userID, nickname string, req *domain.CreateSessionRequest) (*domain.SessionResponse, error)

	// JoinSession adds the user to the live session holding the join code.
	// The first guest activates the session.
	JoinSession(ctx context.Context, userID, nickname string, req *domain.JoinSessionRequest) (*domain.SessionResponse, error)

	// GetSession retrieves a session the user can see (hosts or members only).
	GetSession(ctx context.Context, userID, sessionID string) (*domain.SessionResponse, error)

	// ListMySessions lists the user's sessions, most-recent-first.
	ListMySessions(ctx context.Context, userID string) ([]domain.SessionResponse, error)

	// DeleteSession closes and removes a session. Host only.
	DeleteSession(ctx context.Context, userID, sessionID string) error

	// ExpireSessions cancels live sessions past their expiry time and
	// reports how many were cancelled. Called by the sweeper.
	ExpireSessions(ctx context.Context) (int, error)
}
