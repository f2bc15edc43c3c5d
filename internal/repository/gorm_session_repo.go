package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/retroden/netplay-service/internal/domain"
	"github.com/retroden/netplay-service/pkg/log"
)

// GormSessionRepository implements SessionRepository using GORM.
type GormSessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSessionRepository creates a new GORM-based session repository.
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db, now: time.Now}
}

func liveStatusStrings() []string {
	out := make([]string, len(domain.LiveStatuses))
	for i, s := range domain.LiveStatuses {
		out[i] = string(s)
	}
	return out
}

// Create persists a new session and its host participant in one transaction.
// Live-code uniqueness rests on the join_code unique index: only live
// sessions hold a code, so a colliding insert fails at the store regardless
// of isolation level instead of relying on a racy pre-check.
func (r *GormSessionRepository) Create(ctx context.Context, session *domain.Session, host *domain.Participant) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(domain.SessionToModel(session)).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateJoinCode
			}
			return err
		}
		return tx.Create(domain.ParticipantToModel(host)).Error
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateJoinCode) {
			l.Error().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to create session in db")
		}
		return err
	}

	l.Debug().Str(log.FieldSessionID, session.ID).Str(log.FieldJoinCode, session.JoinCode).Msg("session created in db")
	return nil
}

// GetByID retrieves a session by ID with participants ordered by join time.
func (r *GormSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.getByID(r.db.WithContext(ctx), id)
}

func (r *GormSessionRepository) getByID(db *gorm.DB, id string) (*domain.Session, error) {
	var model domain.SessionModel
	result := db.
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// GetByJoinCode retrieves the live session holding the given code.
func (r *GormSessionRepository) GetByJoinCode(ctx context.Context, code string) (*domain.Session, error) {
	var model domain.SessionModel
	result := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		Where("join_code = ? AND status IN ?", code, liveStatusStrings()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// AddParticipant inserts a participant under the session's row lock: the
// opening touch-update serializes joins per session, then the INSERT..SELECT
// only produces a row while the session is live and below capacity. The
// (session_id, user_id) unique index closes the duplicate-join race, and the
// first-guest activation happens inside the same transaction so no reader
// ever sees a guest in a PENDING session.
func (r *GormSessionRepository) AddParticipant(ctx context.Context, sessionID string, p *domain.Participant, maxParticipants int) (*domain.Session, error) {
	l := log.Ctx(ctx)

	var out *domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The touch takes the session's row lock, so joins to one session
		// serialize across connections. A racing joiner blocks here until
		// this transaction commits and then counts the committed rows;
		// without the lock, two READ COMMITTED writers could both pass the
		// capacity subquery on the same stale count.
		touch := tx.Model(&domain.SessionModel{}).
			Where("id = ? AND status IN ?", sessionID, liveStatusStrings()).
			Update("updated_at", p.JoinedAt)
		if touch.Error != nil {
			return touch.Error
		}
		if touch.RowsAffected == 0 {
			var current domain.SessionModel
			if err := tx.First(&current, "id = ?", sessionID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrSessionNotFound
				}
				return err
			}
			return ErrSessionClosed
		}

		var before domain.SessionModel
		if err := tx.First(&before, "id = ?", sessionID).Error; err != nil {
			return err
		}

		var member int64
		if err := tx.Model(&domain.ParticipantModel{}).
			Where("session_id = ? AND user_id = ?", sessionID, p.UserID).
			Count(&member).Error; err != nil {
			return err
		}
		if member > 0 {
			return ErrAlreadyJoined
		}

		res := tx.Exec(`
			INSERT INTO netplay_participants (id, session_id, user_id, role, nickname, joined_at)
			SELECT ?, s.id, ?, ?, ?, ?
			FROM netplay_sessions s
			WHERE s.id = ? AND s.status IN ?
			  AND (SELECT COUNT(*) FROM netplay_participants p WHERE p.session_id = s.id) < ?`,
			p.ID, p.UserID, string(p.Role), p.Nickname, p.JoinedAt,
			sessionID, liveStatusStrings(), maxParticipants,
		)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return ErrAlreadyJoined
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			// The guard rejected the insert: either a racing transition
			// closed the session or the last slot went to someone else.
			var after domain.SessionModel
			if err := tx.First(&after, "id = ?", sessionID).Error; err != nil {
				return err
			}
			if !domain.Status(after.Status).Live() {
				return ErrSessionClosed
			}
			return ErrSessionFull
		}

		if domain.Status(before.Status) == domain.StatusPending {
			flip := tx.Model(&domain.SessionModel{}).
				Where("id = ? AND status = ?", sessionID, string(domain.StatusPending)).
				Updates(map[string]interface{}{
					"status":     string(domain.StatusActive),
					"updated_at": p.JoinedAt,
				})
			if flip.Error != nil {
				return flip.Error
			}
			if flip.RowsAffected == 0 {
				var after domain.SessionModel
				if err := tx.First(&after, "id = ?", sessionID).Error; err != nil {
					return err
				}
				// Another joiner activating first is fine; a terminal
				// transition winning the race rolls this join back.
				if !domain.Status(after.Status).Live() {
					return ErrSessionClosed
				}
			}
		}

		s, err := r.getByID(tx, sessionID)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Debug().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldUserID, p.UserID).
		Int("participants", len(out.Participants)).
		Msg("participant added in db")
	return out, nil
}

// UpdateStatus performs the conditional from→to transition and returns the
// updated session.
func (r *GormSessionRepository) UpdateStatus(ctx context.Context, sessionID string, from, to domain.Status) (*domain.Session, error) {
	l := log.Ctx(ctx)

	if !domain.CanTransition(from, to) {
		return nil, ErrStaleTransition
	}

	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": r.now().UTC(),
	}
	if to.Terminal() {
		// A terminal session frees its join code for reuse.
		updates["join_code"] = nil
	}

	result := r.db.WithContext(ctx).Model(&domain.SessionModel{}).
		Where("id = ? AND status = ?", sessionID, string(from)).
		Updates(updates)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldSessionID, sessionID).Msg("failed to update session status in db")
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		var model domain.SessionModel
		if err := r.db.WithContext(ctx).First(&model, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, err
		}
		return nil, ErrStaleTransition
	}

	l.Debug().
		Str(log.FieldSessionID, sessionID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("session status updated in db")
	return r.GetByID(ctx, sessionID)
}

// SetExternalSession records the relay handle, once.
func (r *GormSessionRepository) SetExternalSession(ctx context.Context, sessionID, externalID string) error {
	result := r.db.WithContext(ctx).Model(&domain.SessionModel{}).
		Where("id = ? AND external_session_id IS NULL", sessionID).
		Update("external_session_id", externalID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var model domain.SessionModel
		if err := r.db.WithContext(ctx).First(&model, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		return ErrStaleTransition
	}
	return nil
}

// ListForUser retrieves sessions the user hosts or participates in.
func (r *GormSessionRepository) ListForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	l := log.Ctx(ctx)

	memberOf := r.db.Model(&domain.ParticipantModel{}).
		Select("session_id").
		Where("user_id = ?", userID)

	var models []domain.SessionModel
	result := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		Where("host_user_id = ? OR id IN (?)", userID, memberOf).
		Order("created_at DESC").
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to list user sessions from db")
		return nil, result.Error
	}

	sessions := make([]domain.Session, len(models))
	for i := range models {
		sessions[i] = *models[i].ToDomain()
	}
	return sessions, nil
}

// CountLiveHostedByUser counts non-terminal sessions hosted by a user.
func (r *GormSessionRepository) CountLiveHostedByUser(ctx context.Context, userID string) (int, error) {
	l := log.Ctx(ctx)

	var count int64
	result := r.db.WithContext(ctx).Model(&domain.SessionModel{}).
		Where("host_user_id = ? AND status IN ?", userID, liveStatusStrings()).
		Count(&count)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to count hosted sessions")
	}
	return int(count), result.Error
}

// ListExpired retrieves live sessions whose expiry time has passed.
func (r *GormSessionRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.Session, error) {
	var models []domain.SessionModel
	result := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?", liveStatusStrings(), now).
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	sessions := make([]domain.Session, len(models))
	for i := range models {
		sessions[i] = *models[i].ToDomain()
	}
	return sessions, nil
}

// Delete removes a session and its participants.
func (r *GormSessionRepository) Delete(ctx context.Context, sessionID string) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&domain.ParticipantModel{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.SessionModel{}, "id = ?", sessionID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to delete session in db")
		}
		return err
	}

	l.Debug().Str(log.FieldSessionID, sessionID).Msg("session deleted in db")
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// any of the supported drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") || // postgres
		strings.Contains(msg, "Duplicate entry") // mysql
}
