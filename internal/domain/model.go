package domain

import (
	"time"
)

// SessionModel is the GORM model for the netplay_sessions table. Only live
// sessions hold a join code; terminal transitions clear the column, so the
// unique index is exactly the live-uniqueness invariant and two concurrent
// creates drawing the same code cannot both commit.
type SessionModel struct {
	ID                string             `gorm:"type:varchar(36);primaryKey"`
	HostUserID        string             `gorm:"type:varchar(36);index;not null"`
	RomID             *string            `gorm:"type:varchar(36)"`
	JoinCode          *string            `gorm:"type:varchar(16);uniqueIndex"`
	Status            string             `gorm:"type:varchar(20);index;not null;default:'PENDING'"`
	ExternalSessionID *string            `gorm:"type:varchar(128)"`
	CreatedAt         time.Time          `gorm:"autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"autoUpdateTime"`
	ExpiresAt         time.Time          `gorm:"index;not null"`
	Participants      []ParticipantModel `gorm:"foreignKey:SessionID"`
}

// TableName specifies the table name for SessionModel.
func (SessionModel) TableName() string {
	return "netplay_sessions"
}

// ParticipantModel is the GORM model for the netplay_participants table.
// The (session_id, user_id) unique index is the membership invariant: a user
// appears at most once per session, enforced by the store even when two
// joins race.
type ParticipantModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	SessionID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_netplay_session_user"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_netplay_session_user"`
	Role      string    `gorm:"type:varchar(10);not null"`
	Nickname  string    `gorm:"type:varchar(50)"`
	JoinedAt  time.Time `gorm:"index;not null"`
}

// TableName specifies the table name for ParticipantModel.
func (ParticipantModel) TableName() string {
	return "netplay_participants"
}

// ToDomain converts SessionModel to a domain Session.
func (m *SessionModel) ToDomain() *Session {
	parts := make([]Participant, len(m.Participants))
	for i := range m.Participants {
		parts[i] = *m.Participants[i].ToDomain()
	}
	joinCode := ""
	if m.JoinCode != nil {
		joinCode = *m.JoinCode
	}
	return &Session{
		ID:                m.ID,
		HostUserID:        m.HostUserID,
		RomID:             m.RomID,
		JoinCode:          joinCode,
		Status:            Status(m.Status),
		ExternalSessionID: m.ExternalSessionID,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		ExpiresAt:         m.ExpiresAt,
		Participants:      parts,
	}
}

// SessionToModel converts a domain Session to SessionModel. Participants are
// stored through their own model and not carried along.
func SessionToModel(s *Session) *SessionModel {
	var joinCode *string
	if s.JoinCode != "" {
		joinCode = &s.JoinCode
	}
	return &SessionModel{
		ID:                s.ID,
		HostUserID:        s.HostUserID,
		RomID:             s.RomID,
		JoinCode:          joinCode,
		Status:            string(s.Status),
		ExternalSessionID: s.ExternalSessionID,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		ExpiresAt:         s.ExpiresAt,
	}
}

// ToDomain converts ParticipantModel to a domain Participant.
func (m *ParticipantModel) ToDomain() *Participant {
	return &Participant{
		ID:        m.ID,
		SessionID: m.SessionID,
		UserID:    m.UserID,
		Role:      ParticipantRole(m.Role),
		Nickname:  m.Nickname,
		JoinedAt:  m.JoinedAt,
	}
}

// ParticipantToModel converts a domain Participant to ParticipantModel.
func ParticipantToModel(p *Participant) *ParticipantModel {
	return &ParticipantModel{
		ID:        p.ID,
		SessionID: p.SessionID,
		UserID:    p.UserID,
		Role:      string(p.Role),
		Nickname:  p.Nickname,
		JoinedAt:  p.JoinedAt,
	}
}
