package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/retroden/netplay-service/internal/domain"
)

func newTestRepo(t *testing.T) *GormSessionRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	// A shared in-memory database needs a single connection, otherwise each
	// pooled connection sees its own empty schema.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&domain.SessionModel{}, &domain.ParticipantModel{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}

	// cache=shared keeps the database alive across tests in the same
	// process; wipe it so each test starts clean.
	db.Exec("DELETE FROM netplay_participants")
	db.Exec("DELETE FROM netplay_sessions")

	return NewGormSessionRepository(db)
}

func newSession(hostUserID, code string, status domain.Status, createdAt, expiresAt time.Time) (*domain.Session, *domain.Participant) {
	id := uuid.New().String()
	s := &domain.Session{
		ID:         id,
		HostUserID: hostUserID,
		JoinCode:   code,
		Status:     status,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
		ExpiresAt:  expiresAt,
	}
	host := &domain.Participant{
		ID:        uuid.New().String(),
		SessionID: id,
		UserID:    hostUserID,
		Role:      domain.RoleHost,
		Nickname:  "host",
		JoinedAt:  createdAt,
	}
	return s, host
}

func guest(sessionID, userID string, joinedAt time.Time) *domain.Participant {
	return &domain.Participant{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      domain.RoleGuest,
		Nickname:  "guest-" + userID,
		JoinedAt:  joinedAt,
	}
}

func TestCreateAndGetByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	s, host := newSession("user-1", "AB3CD4", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, host); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.JoinCode != "AB3CD4" || got.Status != domain.StatusPending {
		t.Errorf("got session %+v", got)
	}
	if len(got.Participants) != 1 || got.Participants[0].Role != domain.RoleHost {
		t.Errorf("expected sole host participant, got %+v", got.Participants)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetByID missing = %v, want ErrSessionNotFound", err)
	}
}

func TestCreateDuplicateJoinCode(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s1, h1 := newSession("user-1", "AB3CD4", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s1, h1); err != nil {
		t.Fatalf("Create: %v", err)
	}

	s2, h2 := newSession("user-2", "AB3CD4", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s2, h2); !errors.Is(err, ErrDuplicateJoinCode) {
		t.Fatalf("Create duplicate = %v, want ErrDuplicateJoinCode", err)
	}

	// A terminal session frees its code.
	if _, err := repo.UpdateStatus(ctx, s1.ID, domain.StatusPending, domain.StatusCancelled); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	s3, h3 := newSession("user-2", "AB3CD4", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s3, h3); err != nil {
		t.Fatalf("Create after cancel: %v", err)
	}
}

func TestGetByJoinCodeOnlyLive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, h := newSession("user-1", "XYZ234", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := repo.GetByJoinCode(ctx, "XYZ234"); err != nil {
		t.Fatalf("GetByJoinCode live: %v", err)
	}

	if _, err := repo.UpdateStatus(ctx, s.ID, domain.StatusPending, domain.StatusCancelled); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := repo.GetByJoinCode(ctx, "XYZ234"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetByJoinCode terminal = %v, want ErrSessionNotFound", err)
	}
}

func TestAddParticipantActivatesOnFirstGuest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, h := newSession("host-1", "AAAAAA", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.AddParticipant(ctx, s.ID, guest(s.ID, "guest-1", now.Add(time.Second)), 4)
	if err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("status after first guest = %s, want ACTIVE", got.Status)
	}
	if len(got.Participants) != 2 {
		t.Errorf("participants = %d, want 2", len(got.Participants))
	}
	if got.Participants[0].Role != domain.RoleHost {
		t.Errorf("participants not ordered by join time: %+v", got.Participants)
	}

	// Second guest: no status change.
	got, err = repo.AddParticipant(ctx, s.ID, guest(s.ID, "guest-2", now.Add(2*time.Second)), 4)
	if err != nil {
		t.Fatalf("AddParticipant second guest: %v", err)
	}
	if got.Status != domain.StatusActive || len(got.Participants) != 3 {
		t.Errorf("after second guest: status=%s participants=%d", got.Status, len(got.Participants))
	}
}

func TestAddParticipantCapacity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, h := newSession("host-1", "BBBBBB", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := repo.AddParticipant(ctx, s.ID, guest(s.ID, "guest-1", now), 2); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if _, err := repo.AddParticipant(ctx, s.ID, guest(s.ID, "guest-2", now), 2); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("AddParticipant over capacity = %v, want ErrSessionFull", err)
	}

	got, err := repo.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Participants) != 2 {
		t.Errorf("failed join mutated participants: %d, want 2", len(got.Participants))
	}
}

func TestAddParticipantAlreadyJoined(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, h := newSession("host-1", "CCCCCC", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := repo.AddParticipant(ctx, s.ID, guest(s.ID, "guest-1", now), 4); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if _, err := repo.AddParticipant(ctx, s.ID, guest(s.ID, "guest-1", now), 4); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("second join = %v, want ErrAlreadyJoined", err)
	}

	// The host re-joining their own session is also a duplicate.
	if _, err := repo.AddParticipant(ctx, s.ID, guest(s.ID, "host-1", now), 4); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("host re-join = %v, want ErrAlreadyJoined", err)
	}
}

func TestAddParticipantClosedSession(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, h := newSession("host-1", "DDDDDD", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, s.ID, domain.StatusPending, domain.StatusCancelled); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if _, err := repo.AddParticipant(ctx, s.ID, guest(s.ID, "guest-1", now), 4); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("join closed = %v, want ErrSessionClosed", err)
	}
	if _, err := repo.AddParticipant(ctx, "missing", guest("missing", "guest-1", now), 4); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("join missing = %v, want ErrSessionNotFound", err)
	}
}

func TestAddParticipantConcurrentLastSlot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, h := newSession("host-1", "EEEEEE", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Capacity 2: host plus exactly one guest slot.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.AddParticipant(ctx, s.ID, guest(s.ID, fmt.Sprintf("guest-%d", i), now), 2)
		}(i)
	}
	wg.Wait()

	var won, full int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSessionFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || full != 1 {
		t.Fatalf("concurrent joins: %d winners, %d full (want 1/1)", won, full)
	}

	got, err := repo.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Participants) != 2 {
		t.Errorf("participants = %d, want capacity bound 2", len(got.Participants))
	}
}

func TestAddParticipantLocksSessionRow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	joined := time.Now().UTC().Truncate(time.Second)

	s, h := newSession("host-1", "HHHHHH", domain.StatusPending, created, joined.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The serializing touch stamps the session row with the join time.
	got, err := repo.AddParticipant(ctx, s.ID, guest(s.ID, "guest-1", joined), 4)
	if err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if got.UpdatedAt.Before(joined) {
		t.Errorf("updated_at = %v, want advanced to join time %v", got.UpdatedAt, joined)
	}
}

func TestTerminalTransitionFreesJoinCode(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, h := newSession("host-1", "JJJJJJ", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.UpdateStatus(ctx, s.ID, domain.StatusPending, domain.StatusCancelled)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got.JoinCode != "" {
		t.Errorf("join code after cancel = %q, want cleared", got.JoinCode)
	}

	// The unique index no longer holds the code, so a new live session can
	// take it immediately.
	s2, h2 := newSession("host-2", "JJJJJJ", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s2, h2); err != nil {
		t.Fatalf("Create with freed code: %v", err)
	}
}

func TestUpdateStatusUsesInjectedClock(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	s, h := newSession("host-1", "KKKKKK", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.UpdateStatus(ctx, s.ID, domain.StatusPending, domain.StatusActive)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if !got.UpdatedAt.Equal(fixed) {
		t.Errorf("updated_at = %v, want clock value %v", got.UpdatedAt, fixed)
	}
}

func TestUpdateStatusConditional(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, h := newSession("host-1", "FFFFFF", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.UpdateStatus(ctx, s.ID, domain.StatusPending, domain.StatusEnded)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got.Status != domain.StatusEnded {
		t.Errorf("status = %s, want ENDED", got.Status)
	}

	// The session already moved; the losing writer sees a stale transition.
	if _, err := repo.UpdateStatus(ctx, s.ID, domain.StatusPending, domain.StatusCancelled); !errors.Is(err, ErrStaleTransition) {
		t.Errorf("stale update = %v, want ErrStaleTransition", err)
	}

	// Terminal resurrection is rejected before touching the store.
	if _, err := repo.UpdateStatus(ctx, s.ID, domain.StatusEnded, domain.StatusActive); !errors.Is(err, ErrStaleTransition) {
		t.Errorf("resurrect = %v, want ErrStaleTransition", err)
	}

	if _, err := repo.UpdateStatus(ctx, "missing", domain.StatusPending, domain.StatusCancelled); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing = %v, want ErrSessionNotFound", err)
	}
}

func TestSetExternalSessionOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, h := newSession("host-1", "GGGGGG", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.SetExternalSession(ctx, s.ID, "relay-1"); err != nil {
		t.Fatalf("SetExternalSession: %v", err)
	}
	if err := repo.SetExternalSession(ctx, s.ID, "relay-2"); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("second set = %v, want ErrStaleTransition", err)
	}

	got, err := repo.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ExternalSessionID == nil || *got.ExternalSessionID != "relay-1" {
		t.Errorf("external session id = %v, want relay-1", got.ExternalSessionID)
	}
}

func TestListForUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	s1, h1 := newSession("alice", "AAAA22", domain.StatusPending, base, base.Add(10*time.Minute))
	s2, h2 := newSession("bob", "BBBB22", domain.StatusPending, base.Add(time.Minute), base.Add(11*time.Minute))
	s3, h3 := newSession("carol", "CCCC22", domain.StatusPending, base.Add(2*time.Minute), base.Add(12*time.Minute))
	for _, pair := range []struct {
		s *domain.Session
		h *domain.Participant
	}{{s1, h1}, {s2, h2}, {s3, h3}} {
		if err := repo.Create(ctx, pair.s, pair.h); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	// alice joins bob's session as a guest.
	if _, err := repo.AddParticipant(ctx, s2.ID, guest(s2.ID, "alice", base.Add(3*time.Minute)), 4); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	got, err := repo.ListForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("sessions = %d, want 2", len(got))
	}
	// Most-recent-first: bob's session was created after alice's.
	if got[0].ID != s2.ID || got[1].ID != s1.ID {
		t.Errorf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestCountLiveHostedByUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s1, h1 := newSession("alice", "AAAA33", domain.StatusPending, now, now.Add(10*time.Minute))
	s2, h2 := newSession("alice", "BBBB33", domain.StatusPending, now, now.Add(10*time.Minute))
	for _, pair := range []struct {
		s *domain.Session
		h *domain.Participant
	}{{s1, h1}, {s2, h2}} {
		if err := repo.Create(ctx, pair.s, pair.h); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := repo.CountLiveHostedByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CountLiveHostedByUser: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	if _, err := repo.UpdateStatus(ctx, s1.ID, domain.StatusPending, domain.StatusCancelled); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	n, err = repo.CountLiveHostedByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CountLiveHostedByUser: %v", err)
	}
	if n != 1 {
		t.Errorf("count after cancel = %d, want 1", n)
	}
}

func TestListExpired(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired, eh := newSession("alice", "AAAA44", domain.StatusPending, now.Add(-20*time.Minute), now.Add(-10*time.Minute))
	fresh, fh := newSession("bob", "BBBB44", domain.StatusPending, now, now.Add(10*time.Minute))
	for _, pair := range []struct {
		s *domain.Session
		h *domain.Participant
	}{{expired, eh}, {fresh, fh}} {
		if err := repo.Create(ctx, pair.s, pair.h); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := repo.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(got) != 1 || got[0].ID != expired.ID {
		t.Fatalf("expired sessions = %+v, want only %s", got, expired.ID)
	}

	// Terminal sessions are never swept again.
	if _, err := repo.UpdateStatus(ctx, expired.ID, domain.StatusPending, domain.StatusCancelled); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, err = repo.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expired sessions after cancel = %d, want 0", len(got))
	}
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, h := newSession("alice", "AAAA55", domain.StatusPending, now, now.Add(10*time.Minute))
	if err := repo.Create(ctx, s, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetByID after delete = %v, want ErrSessionNotFound", err)
	}
	if err := repo.Delete(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second delete = %v, want ErrSessionNotFound", err)
	}
}
