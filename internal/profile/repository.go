package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultDisplayName is used for users who have never set a display name.
const DefaultDisplayName = "Volt User"

// Profile is a user's public profile.
type Profile struct {
	UserID      string    `json:"uid"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// Update carries a partial profile change. Nil fields are left untouched.
type Update struct {
	DisplayName *string `json:"displayName"`
	Email       *string `json:"email"`
	AvatarURL   *string `json:"avatarUrl"`
}

// Repository defines the interface for profile persistence.
type Repository interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Upsert(ctx context.Context, userID string, update Update) (*Profile, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed profile repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns a user's profile. A user with no stored row gets the
// default profile, never an error.
func (r *SQLiteRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT id, display_name, email, avatar_url, created_at, updated_at
		 FROM users WHERE id = ?`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Profile{UserID: userID, DisplayName: DefaultDisplayName}, nil
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// Upsert merges a partial update into the user's profile, inserting the
// row on first write. Nil fields keep their stored values.
func (r *SQLiteRepository) Upsert(ctx context.Context, userID string, update Update) (*Profile, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, display_name, email, avatar_url, created_at, updated_at)
		 VALUES (?, COALESCE(?, ?), ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     display_name = COALESCE(?, users.display_name),
		     email        = COALESCE(?, users.email),
		     avatar_url   = COALESCE(?, users.avatar_url),
		     updated_at   = excluded.updated_at
		 RETURNING id, display_name, email, avatar_url, created_at, updated_at`,
		userID, nullStr(update.DisplayName), DefaultDisplayName,
		nullStr(update.Email), nullStr(update.AvatarURL), now, now,
		nullStr(update.DisplayName), nullStr(update.Email), nullStr(update.AvatarURL)))
	if err != nil {
		return nil, fmt.Errorf("upserting profile: %w", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var email, avatarURL sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&p.UserID, &p.DisplayName, &email, &avatarURL, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	p.Email = email.String
	p.AvatarURL = avatarURL.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &p, nil
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
