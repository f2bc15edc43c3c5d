package repository

import (
	"context"
	"errors"
	"time"

	"github.com/retroden/netplay-service/internal/domain"
)

// Store-level signals. DuplicateJoinCode and StaleTransition are recovered
// by the caller (generation retry, sweeper skip) and never reach the API.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionClosed     = errors.New("session closed")
	ErrSessionFull       = errors.New("session full")
	ErrAlreadyJoined     = errors.New("user already joined session")
	ErrDuplicateJoinCode = errors.New("join code already in use")
	ErrStaleTransition   = errors.New("stale status transition")
)

// SessionRepository defines the store adapter the coordinator runs on. Each
// mutating operation is atomic with its own invariant checks; the coordinator
// holds no locks across calls, so these conditional operations are the only
// place concurrent writers are serialized.
type SessionRepository interface {
	// Create persists a new PENDING session together with its host
	// participant. Fails with ErrDuplicateJoinCode when the code collides
	// with a live session.
	Create(ctx context.Context, session *domain.Session, host *domain.Participant) error

	// GetByID returns a session with participants ordered by join time.
	GetByID(ctx context.Context, id string) (*domain.Session, error)

	// GetByJoinCode returns the live (PENDING or ACTIVE) session holding the
	// code. Terminal sessions never match.
	GetByJoinCode(ctx context.Context, code string) (*domain.Session, error)

	// AddParticipant atomically checks liveness, membership, and capacity,
	// inserts the participant, and flips PENDING→ACTIVE on the first guest.
	// Returns the updated session.
	AddParticipant(ctx context.Context, sessionID string, p *domain.Participant, maxParticipants int) (*domain.Session, error)

	// UpdateStatus performs the conditional from→to transition. A racing
	// writer that already moved the session away from `from` surfaces as
	// ErrStaleTransition.
	UpdateStatus(ctx context.Context, sessionID string, from, to domain.Status) (*domain.Session, error)

	// SetExternalSession records the relay handle. Set once; a second call
	// fails with ErrStaleTransition.
	SetExternalSession(ctx context.Context, sessionID, externalID string) error

	// ListForUser returns sessions the user hosts or participates in,
	// most-recent-first.
	ListForUser(ctx context.Context, userID string) ([]domain.Session, error)

	// CountLiveHostedByUser counts the user's non-terminal hosted sessions.
	CountLiveHostedByUser(ctx context.Context, userID string) (int, error)

	// ListExpired returns live sessions whose expiry time has passed.
	ListExpired(ctx context.Context, now time.Time) ([]domain.Session, error)

	// Delete removes the session and its participants.
	Delete(ctx context.Context, sessionID string) error
}
