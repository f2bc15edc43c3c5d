package events

import (
	"fmt"
	"time"
)

// Event types published on a session's channel.
const (
	TypeSessionCreated    = "session_created"
	TypeSessionActivated  = "session_activated"
	TypeParticipantJoined = "participant_joined"
	TypeSessionEnded      = "session_ended"
	TypeSessionCancelled  = "session_cancelled"
)

// Channel returns the pubsub channel for one session's lifecycle events.
func Channel(sessionID string) string {
	return fmt.Sprintf("netplay:session:%s:events", sessionID)
}

// SessionPayload accompanies lifecycle transitions.
type SessionPayload struct {
	SessionID  string    `json:"session_id"`
	HostUserID string    `json:"host_user_id"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ParticipantPayload accompanies participant_joined events.
type ParticipantPayload struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Nickname  string    `json:"nickname"`
	JoinedAt  time.Time `json:"joined_at"`
}
