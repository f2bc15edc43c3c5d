package domain

import (
	"time"
)

// ParticipantRole distinguishes the session creator from joined players.
type ParticipantRole string

const (
	RoleHost  ParticipantRole = "HOST"
	RoleGuest ParticipantRole = "GUEST"
)

// Session is a netplay session's coordinator-side metadata. The actual game
// traffic flows through the external relay; this record only tracks who is
// in the session and where it is in its lifecycle.
type Session struct {
	ID                string        `json:"id"`
	HostUserID        string        `json:"host_user_id"`
	RomID             *string       `json:"rom_id,omitempty"`
	JoinCode          string        `json:"join_code"`
	Status            Status        `json:"status"`
	ExternalSessionID *string       `json:"external_session_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	ExpiresAt         time.Time     `json:"expires_at"`
	Participants      []Participant `json:"participants"`
}

// Participant is a user's membership in one session, snapshotted at join
// time. It lives and dies with its session.
type Participant struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Role      ParticipantRole `json:"role"`
	Nickname  string          `json:"nickname"`
	JoinedAt  time.Time       `json:"joined_at"`
}

// Expired reports whether the session's expiry time has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// HasParticipant reports whether userID is already in the session.
func (s *Session) HasParticipant(userID string) bool {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// IsHost reports whether userID created the session.
func (s *Session) IsHost(userID string) bool {
	return s.HostUserID == userID
}

// CreateSessionRequest represents a create session request.
type CreateSessionRequest struct {
	RomID      *string `json:"rom_id"`
	TTLMinutes int     `json:"ttl_minutes"`
}

// JoinSessionRequest represents a join session request.
type JoinSessionRequest struct {
	JoinCode string `json:"join_code" binding:"required"`
}

// ParticipantResponse represents a participant in API responses.
type ParticipantResponse struct {
	UserID   string          `json:"user_id"`
	Role     ParticipantRole `json:"role"`
	Nickname string          `json:"nickname"`
	JoinedAt time.Time       `json:"joined_at"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID                string                `json:"id"`
	HostUserID        string                `json:"host_user_id"`
	RomID             *string               `json:"rom_id,omitempty"`
	JoinCode          string                `json:"join_code"`
	Status            Status                `json:"status"`
	ExternalSessionID *string               `json:"external_session_id,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	ExpiresAt         time.Time             `json:"expires_at"`
	Participants      []ParticipantResponse `json:"participants"`
}

// ToResponse converts a Session to its API representation.
func (s *Session) ToResponse() SessionResponse {
	parts := make([]ParticipantResponse, len(s.Participants))
	for i, p := range s.Participants {
		parts[i] = ParticipantResponse{
			UserID:   p.UserID,
			Role:     p.Role,
			Nickname: p.Nickname,
			JoinedAt: p.JoinedAt,
		}
	}
	return SessionResponse{
		ID:                s.ID,
		HostUserID:        s.HostUserID,
		RomID:             s.RomID,
		JoinCode:          s.JoinCode,
		Status:            s.Status,
		ExternalSessionID: s.ExternalSessionID,
		CreatedAt:         s.CreatedAt,
		ExpiresAt:         s.ExpiresAt,
		Participants:      parts,
	}
}
