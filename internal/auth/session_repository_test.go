package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE refresh_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			user_agent TEXT,
			ip TEXT,
			expires_at TEXT NOT NULL,
			revoked_at TEXT,
			replaced_by TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX ix_refresh_sessions_user ON refresh_sessions(user_id);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	return db
}

func seedSession(t *testing.T, repo *SQLiteSessionRepository, userID, rawToken string, ttl time.Duration) *Session {
	t.Helper()

	s := &Session{
		UserID:    userID,
		TokenHash: HashToken(rawToken),
		UserAgent: "VoltHome/1.0 (Android)",
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	return s
}

func TestSessionRepository_CreateAndGetByTokenHash(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()

	s := seedSession(t, repo, "user-1", "raw-refresh", 24*time.Hour)
	if s.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	got, err := repo.GetByTokenHash(ctx, HashToken("raw-refresh"))
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}

	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user-1")
	}
	if got.UserAgent != "VoltHome/1.0 (Android)" {
		t.Errorf("UserAgent = %q", got.UserAgent)
	}
	if got.RevokedAt != nil {
		t.Error("new session should not be revoked")
	}
	if !got.Active(time.Now()) {
		t.Error("new session should be active")
	}
}

func TestSessionRepository_GetByTokenHash_Unknown(t *testing.T) {
	repo := NewSessionRepository(testDB(t))

	if _, err := repo.GetByTokenHash(context.Background(), HashToken("nope")); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("GetByTokenHash() error = %v, want ErrTokenInvalid", err)
	}
}

func TestSessionRepository_Revoke(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()

	s := seedSession(t, repo, "user-1", "revoke-me", 24*time.Hour)

	if err := repo.Revoke(ctx, s.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	got, err := repo.GetByTokenHash(ctx, HashToken("revoke-me"))
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if got.RevokedAt == nil {
		t.Fatal("session should be revoked after Revoke()")
	}
	if got.Active(time.Now()) {
		t.Error("revoked session should not be active")
	}

	// A second revoke keeps the original timestamp.
	first := *got.RevokedAt
	if err := repo.Revoke(ctx, s.ID); err != nil {
		t.Fatalf("Revoke() second call error = %v", err)
	}
	again, _ := repo.GetByTokenHash(ctx, HashToken("revoke-me"))
	if !again.RevokedAt.Equal(first) {
		t.Errorf("RevokedAt changed on second revoke: %v != %v", again.RevokedAt, first)
	}
}

func TestSessionRepository_Rotate(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()

	old := seedSession(t, repo, "user-1", "old-token", 24*time.Hour)

	next := &Session{
		UserID:    "user-1",
		TokenHash: HashToken("new-token"),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if err := repo.Rotate(ctx, old.ID, next); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	rotated, err := repo.GetByTokenHash(ctx, HashToken("old-token"))
	if err != nil {
		t.Fatalf("GetByTokenHash(old) error = %v", err)
	}
	if rotated.RevokedAt == nil {
		t.Error("rotated session should be revoked")
	}
	if rotated.ReplacedBy != next.ID {
		t.Errorf("ReplacedBy = %q, want %q", rotated.ReplacedBy, next.ID)
	}

	fresh, err := repo.GetByTokenHash(ctx, HashToken("new-token"))
	if err != nil {
		t.Fatalf("GetByTokenHash(new) error = %v", err)
	}
	if !fresh.Active(time.Now()) {
		t.Error("replacement session should be active")
	}
}

func TestSessionRepository_RevokeAllForUser(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()

	seedSession(t, repo, "user-1", "phone", 24*time.Hour)
	seedSession(t, repo, "user-1", "tablet", 24*time.Hour)
	other := seedSession(t, repo, "user-2", "other", 24*time.Hour)

	if err := repo.RevokeAllForUser(ctx, "user-1"); err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}

	active, err := repo.ListActiveByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListActiveByUser() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("user-1 active sessions = %d, want 0", len(active))
	}

	untouched, err := repo.GetByTokenHash(ctx, other.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash(other) error = %v", err)
	}
	if untouched.RevokedAt != nil {
		t.Error("other user's session should be untouched")
	}
}

func TestSessionRepository_ListActiveByUser(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()

	seedSession(t, repo, "user-1", "live", 24*time.Hour)
	seedSession(t, repo, "user-1", "dead", -time.Hour)
	revoked := seedSession(t, repo, "user-1", "gone", 24*time.Hour)
	if err := repo.Revoke(ctx, revoked.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	active, err := repo.ListActiveByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListActiveByUser() error = %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active sessions = %d, want 1", len(active))
	}
	if active[0].TokenHash != HashToken("live") {
		t.Error("wrong session survived the filter")
	}
}

func TestSessionRepository_PruneExpired(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()

	seedSession(t, repo, "user-1", "live", 24*time.Hour)
	seedSession(t, repo, "user-1", "expired", -time.Hour)
	revoked := seedSession(t, repo, "user-1", "revoked", 24*time.Hour)
	if err := repo.Revoke(ctx, revoked.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	pruned, err := repo.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("PruneExpired() error = %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}

	if _, err := repo.GetByTokenHash(ctx, HashToken("live")); err != nil {
		t.Errorf("live session should survive pruning: %v", err)
	}
}
