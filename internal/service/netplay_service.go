package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/retroden/netplay-service/internal/apperr"
	"github.com/retroden/netplay-service/internal/audit"
	"github.com/retroden/netplay-service/internal/cache"
	"github.com/retroden/netplay-service/internal/domain"
	"github.com/retroden/netplay-service/internal/events"
	"github.com/retroden/netplay-service/internal/joincode"
	"github.com/retroden/netplay-service/internal/repository"
	"github.com/retroden/netplay-service/pkg/log"
	"github.com/retroden/netplay-service/pkg/pubsub"
)

// SignalingClient allocates and releases relay sessions. Both directions are
// best-effort from the coordinator's point of view.
type SignalingClient interface {
	Allocate(ctx context.Context, sessionID string, romID *string) (string, error)
	Release(ctx context.Context, externalID string) error
}

// Options bundle the coordinator's tunables and optional collaborators. The
// cache, publisher, and signaling client may each be nil.
type Options struct {
	DefaultTTL      time.Duration
	MinTTL          time.Duration
	MaxTTL          time.Duration
	MaxParticipants int
	MaxPerHost      int
	CodeAttempts    int
	CacheTTL        time.Duration
}

// netplayServiceImpl implements NetplayService.
type netplayServiceImpl struct {
	repo      repository.SessionRepository
	codes     *joincode.Generator
	cache     cache.SessionCache
	publisher pubsub.Publisher
	signal    SignalingClient
	opts      Options
	now       func() time.Time
}

// NewNetplayService creates a new netplay coordinator service.
func NewNetplayService(
	repo repository.SessionRepository,
	codes *joincode.Generator,
	sessionCache cache.SessionCache,
	publisher pubsub.Publisher,
	signal SignalingClient,
	opts Options,
) NetplayService {
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = 5
	}
	if opts.MaxParticipants <= 0 {
		opts.MaxParticipants = 4
	}
	return &netplayServiceImpl{
		repo:      repo,
		codes:     codes,
		cache:     sessionCache,
		publisher: publisher,
		signal:    signal,
		opts:      opts,
		now:       time.Now,
	}
}

// clampTTL folds a requested TTL into the configured window. Zero or negative
// requests get the default.
func (s *netplayServiceImpl) clampTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		requested = s.opts.DefaultTTL
	}
	if s.opts.MinTTL > 0 && requested < s.opts.MinTTL {
		requested = s.opts.MinTTL
	}
	if s.opts.MaxTTL > 0 && requested > s.opts.MaxTTL {
		requested = s.opts.MaxTTL
	}
	return requested
}

// CreateSession creates a PENDING session with a fresh join code.
func (s *netplayServiceImpl) CreateSession(ctx context.Context, userID, nickname string, req *domain.CreateSessionRequest) (*domain.SessionResponse, error) {
	l := log.Ctx(ctx)

	hosted, err := s.repo.CountLiveHostedByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "failed to count hosted sessions", err)
	}
	if s.opts.MaxPerHost > 0 && hosted >= s.opts.MaxPerHost {
		return nil, apperr.New(apperr.CodeMaxActiveSessions, "maximum active sessions limit reached")
	}

	now := s.now().UTC()
	ttl := s.clampTTL(time.Duration(req.TTLMinutes) * time.Minute)

	session := &domain.Session{
		ID:         uuid.New().String(),
		HostUserID: userID,
		RomID:      req.RomID,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	host := &domain.Participant{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		UserID:    userID,
		Role:      domain.RoleHost,
		Nickname:  nickname,
		JoinedAt:  now,
	}

	// A colliding code only happens while another live session holds it, so
	// a handful of retries is plenty for a 32^6 space.
	created := false
	for attempt := 0; attempt < s.opts.CodeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeUnknown, "failed to generate join code", err)
		}
		session.JoinCode = code

		err = s.repo.Create(ctx, session, host)
		if err == nil {
			created = true
			break
		}
		if errors.Is(err, repository.ErrDuplicateJoinCode) {
			continue
		}
		return nil, apperr.Wrap(apperr.CodeUnknown, "failed to create session", err)
	}
	if !created {
		return nil, apperr.New(apperr.CodeUnknown, "could not allocate a unique join code")
	}

	if s.signal != nil {
		externalID, err := s.signal.Allocate(ctx, session.ID, session.RomID)
		if err != nil {
			l.Warn().Err(err).Str(log.FieldSessionID, session.ID).Msg("relay allocation failed, session continues without relay")
		} else if err := s.repo.SetExternalSession(ctx, session.ID, externalID); err != nil {
			l.Warn().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to record relay session")
		} else {
			session.ExternalSessionID = &externalID
		}
	}

	session.Participants = []domain.Participant{*host}

	s.publishSession(ctx, events.TypeSessionCreated, session)
	audit.LogWithDetail(ctx, audit.ActionCreateSession, userID, session.ID, session.JoinCode, "netplay session created")

	resp := session.ToResponse()
	return &resp, nil
}

// JoinSession adds the user to the live session holding the join code.
func (s *netplayServiceImpl) JoinSession(ctx context.Context, userID, nickname string, req *domain.JoinSessionRequest) (*domain.SessionResponse, error) {
	l := log.Ctx(ctx)

	code := joincode.Normalize(req.JoinCode)
	if !s.codes.Valid(code) {
		return nil, apperr.New(apperr.CodeInvalidJoinCode, "join code is malformed")
	}

	session, err := s.repo.GetByJoinCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, apperr.New(apperr.CodeSessionNotFound, "no session holds this join code")
		}
		return nil, apperr.Wrap(apperr.CodeUnknown, "failed to look up join code", err)
	}

	now := s.now().UTC()
	if session.Expired(now) {
		// The sweeper has not caught up yet. Cancel opportunistically and
		// reject the join; only the winning writer announces the transition.
		_, err := s.repo.UpdateStatus(ctx, session.ID, session.Status, domain.StatusCancelled)
		switch {
		case err == nil:
			session.Status = domain.StatusCancelled
			s.invalidate(ctx, session.ID)
			s.publishSession(ctx, events.TypeSessionCancelled, session)
		case errors.Is(err, repository.ErrStaleTransition):
			// A racing sweep or delete already closed it.
		default:
			l.Warn().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to cancel expired session on join")
		}
		return nil, apperr.New(apperr.CodeSessionClosed, "session has expired")
	}

	p := &domain.Participant{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		UserID:    userID,
		Role:      domain.RoleGuest,
		Nickname:  nickname,
		JoinedAt:  now,
	}

	wasPending := session.Status == domain.StatusPending

	updated, err := s.repo.AddParticipant(ctx, session.ID, p, s.opts.MaxParticipants)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionNotFound):
			return nil, apperr.New(apperr.CodeSessionNotFound, "session no longer exists")
		case errors.Is(err, repository.ErrSessionClosed):
			return nil, apperr.New(apperr.CodeSessionClosed, "session is closed")
		case errors.Is(err, repository.ErrSessionFull):
			return nil, apperr.New(apperr.CodeSessionFull, "session is full")
		case errors.Is(err, repository.ErrAlreadyJoined):
			return nil, apperr.New(apperr.CodeAlreadyJoined, "user already joined this session")
		default:
			return nil, apperr.Wrap(apperr.CodeUnknown, "failed to join session", err)
		}
	}

	s.invalidate(ctx, updated.ID)
	s.publishParticipant(ctx, updated.ID, p)
	if wasPending && updated.Status == domain.StatusActive {
		s.publishSession(ctx, events.TypeSessionActivated, updated)
	}
	audit.Log(ctx, audit.ActionJoinSession, userID, updated.ID, "netplay session joined")

	resp := updated.ToResponse()
	return &resp, nil
}

// GetSession retrieves a session visible to the user. Non-members get the
// same answer as a missing session so codes cannot be probed.
func (s *netplayServiceImpl) GetSession(ctx context.Context, userID, sessionID string) (*domain.SessionResponse, error) {
	session, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !session.IsHost(userID) && !session.HasParticipant(userID) {
		return nil, apperr.New(apperr.CodeSessionNotFound, "session not found")
	}

	resp := session.ToResponse()
	return &resp, nil
}

func (s *netplayServiceImpl) lookup(ctx context.Context, sessionID string) (*domain.Session, error) {
	l := log.Ctx(ctx)

	if s.cache != nil {
		key := s.cache.BuildKeyByID(sessionID)
		if cached, err := s.cache.Get(ctx, key); err == nil {
			return &cached.Session, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("session cache read failed")
		}
	}

	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, apperr.New(apperr.CodeSessionNotFound, "session not found")
		}
		return nil, apperr.Wrap(apperr.CodeUnknown, "failed to load session", err)
	}

	if s.cache != nil {
		key := s.cache.BuildKeyByID(sessionID)
		if err := s.cache.Set(ctx, key, &cache.SessionCacheResult{Session: *session}, s.opts.CacheTTL); err != nil {
			l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("session cache write failed")
		}
	}
	return session, nil
}

// ListMySessions lists the user's sessions, most-recent-first.
func (s *netplayServiceImpl) ListMySessions(ctx context.Context, userID string) ([]domain.SessionResponse, error) {
	sessions, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "failed to list sessions", err)
	}

	out := make([]domain.SessionResponse, len(sessions))
	for i := range sessions {
		out[i] = sessions[i].ToResponse()
	}
	return out, nil
}

// DeleteSession closes and removes a session. Host only. The session is moved
// to its terminal status before the row goes away so subscribers see a clean
// lifecycle end.
func (s *netplayServiceImpl) DeleteSession(ctx context.Context, userID, sessionID string) error {
	l := log.Ctx(ctx)

	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return apperr.New(apperr.CodeSessionNotFound, "session not found")
		}
		return apperr.Wrap(apperr.CodeUnknown, "failed to load session", err)
	}

	if !session.IsHost(userID) {
		return apperr.New(apperr.CodeUnauthorized, "only the host can delete a session")
	}

	if session.Status.Live() {
		// An active session ended; a pending one never started.
		to := domain.StatusCancelled
		eventType := events.TypeSessionCancelled
		if session.Status == domain.StatusActive {
			to = domain.StatusEnded
			eventType = events.TypeSessionEnded
		}
		updated, err := s.repo.UpdateStatus(ctx, sessionID, session.Status, to)
		switch {
		case err == nil:
			session = updated
			s.publishSession(ctx, eventType, session)
		case errors.Is(err, repository.ErrStaleTransition):
			// Someone else closed it first; deletion proceeds.
		case errors.Is(err, repository.ErrSessionNotFound):
			return apperr.New(apperr.CodeSessionNotFound, "session not found")
		default:
			return apperr.Wrap(apperr.CodeUnknown, "failed to close session", err)
		}
	}

	if s.signal != nil && session.ExternalSessionID != nil {
		if err := s.signal.Release(ctx, *session.ExternalSessionID); err != nil {
			l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("relay release failed")
		}
	}

	s.invalidate(ctx, sessionID)

	if err := s.repo.Delete(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return apperr.Wrap(apperr.CodeUnknown, "failed to delete session", err)
	}

	audit.Log(ctx, audit.ActionDeleteSession, userID, sessionID, "netplay session deleted")
	return nil
}

// ExpireSessions cancels live sessions past their expiry time.
func (s *netplayServiceImpl) ExpireSessions(ctx context.Context) (int, error) {
	l := log.Ctx(ctx)

	now := s.now().UTC()
	expired, err := s.repo.ListExpired(ctx, now)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeUnknown, "failed to list expired sessions", err)
	}

	cancelled := 0
	for i := range expired {
		session := &expired[i]
		if _, err := s.repo.UpdateStatus(ctx, session.ID, session.Status, domain.StatusCancelled); err != nil {
			// A join or delete moved the session between the list and the
			// update. The next sweep picks it up if it is still live.
			if !errors.Is(err, repository.ErrStaleTransition) && !errors.Is(err, repository.ErrSessionNotFound) {
				l.Error().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to cancel expired session")
			}
			continue
		}

		cancelled++
		session.Status = domain.StatusCancelled
		s.invalidate(ctx, session.ID)
		s.publishSession(ctx, events.TypeSessionCancelled, session)
		if s.signal != nil && session.ExternalSessionID != nil {
			if err := s.signal.Release(ctx, *session.ExternalSessionID); err != nil {
				l.Warn().Err(err).Str(log.FieldSessionID, session.ID).Msg("relay release failed")
			}
		}
		audit.Log(ctx, audit.ActionExpireSession, session.HostUserID, session.ID, "netplay session expired")
	}

	return cancelled, nil
}

func (s *netplayServiceImpl) invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cache.BuildKeyByID(sessionID)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("session cache invalidation failed")
	}
}

func (s *netplayServiceImpl) publishSession(ctx context.Context, eventType string, session *domain.Session) {
	if s.publisher == nil {
		return
	}
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, session.ID, events.SessionPayload{
		SessionID:  session.ID,
		HostUserID: session.HostUserID,
		Status:     string(session.Status),
		ExpiresAt:  session.ExpiresAt,
	})
	if err != nil {
		l.Warn().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to build session event")
		return
	}
	if err := s.publisher.Publish(ctx, events.Channel(session.ID), event); err != nil {
		l.Warn().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to publish session event")
	}
}

func (s *netplayServiceImpl) publishParticipant(ctx context.Context, sessionID string, p *domain.Participant) {
	if s.publisher == nil {
		return
	}
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(events.TypeParticipantJoined, sessionID, events.ParticipantPayload{
		SessionID: sessionID,
		UserID:    p.UserID,
		Role:      string(p.Role),
		Nickname:  p.Nickname,
		JoinedAt:  p.JoinedAt,
	})
	if err != nil {
		l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to build participant event")
		return
	}
	if err := s.publisher.Publish(ctx, events.Channel(sessionID), event); err != nil {
		l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to publish participant event")
	}
}
