package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionRepository defines the interface for refresh session persistence.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	Rotate(ctx context.Context, oldID string, next *Session) error
	ListActiveByUser(ctx context.Context, userID string) ([]Session, error)
	PruneExpired(ctx context.Context) (int64, error)
}

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite-backed session repository.
func NewSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

const sessionColumns = `id, user_id, token_hash, user_agent, ip, expires_at, revoked_at, replaced_by, created_at`

// Create inserts a new refresh session. The ID is generated if empty.
func (r *SQLiteSessionRepository) Create(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}

	now := time.Now().UTC().Truncate(time.Second)
	session.CreatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_sessions (id, user_id, token_hash, user_agent, ip, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.TokenHash,
		nullString(session.UserAgent), nullString(session.IP),
		session.ExpiresAt.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating refresh session: %w", err)
	}

	return nil
}

// GetByTokenHash retrieves a session by the SHA-256 hash of its refresh token.
// Used during refresh/logout when the client sends the raw token.
func (r *SQLiteSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM refresh_sessions WHERE token_hash = ?`, tokenHash)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("getting refresh session by hash: %w", err)
	}
	return s, nil
}

// Revoke marks a single session as revoked. Already-revoked sessions keep
// their original revocation time.
func (r *SQLiteSessionRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// RevokeAllForUser marks all active sessions for a user as revoked.
// Used for logout-everywhere.
func (r *SQLiteSessionRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339), userID)
	if err != nil {
		return fmt.Errorf("revoking all sessions for user: %w", err)
	}
	return nil
}

// Rotate atomically revokes the old session and creates its replacement,
// linking the two through replaced_by. This prevents TOCTOU races during
// token refresh.
func (r *SQLiteSessionRepository) Rotate(ctx context.Context, oldID string, next *Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if next.ID == "" {
		next.ID = uuid.NewString()
	}

	now := time.Now().UTC().Truncate(time.Second)
	next.CreatedAt = now

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_sessions (id, user_id, token_hash, user_agent, ip, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		next.ID, next.UserID, next.TokenHash,
		nullString(next.UserAgent), nullString(next.IP),
		next.ExpiresAt.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("creating replacement session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = ?, replaced_by = ? WHERE id = ?`,
		now.Format(time.RFC3339), next.ID, oldID); err != nil {
		return fmt.Errorf("revoking rotated session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}

// ListActiveByUser returns all non-revoked, non-expired sessions for a user.
func (r *SQLiteSessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]Session, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM refresh_sessions
		 WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

// PruneExpired removes sessions that expired or were revoked, freeing
// storage. Returns the number of deleted rows.
func (r *SQLiteSessionRepository) PruneExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_sessions WHERE expires_at <= ? OR revoked_at IS NOT NULL`, now)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var userAgent, ip, revokedAt, replacedBy sql.NullString
	var expiresAt, createdAt string

	if err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &userAgent, &ip,
		&expiresAt, &revokedAt, &replacedBy, &createdAt); err != nil {
		return nil, err
	}

	s.UserAgent = userAgent.String
	s.IP = ip.String
	s.ReplacedBy = replacedBy.String
	s.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	if revokedAt.Valid {
		t, _ := time.Parse(time.RFC3339, revokedAt.String) //nolint:errcheck // format is controlled
		s.RevokedAt = &t
	}

	return &s, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
