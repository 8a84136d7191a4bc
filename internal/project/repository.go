package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for project persistence operations.
//
// All methods are keyed on (userID, projectID): a project that exists but
// belongs to another user behaves exactly like a missing one.
type Repository interface {
	Create(ctx context.Context, userID, name, note string) (*Project, error)
	List(ctx context.Context, userID string) ([]Project, error)
	GetMeta(ctx context.Context, userID, projectID string) (*Project, error)
	UpdateMeta(ctx context.Context, userID, projectID string, name, note *string) (*Project, error)
	SoftDelete(ctx context.Context, userID, projectID string) (*Project, error)
	Tree(ctx context.Context, userID, projectID string) (*Tree, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed project repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new project with a minted id and version 1.
func (r *SQLiteRepository) Create(ctx context.Context, userID, name, note string) (*Project, error) {
	if err := ValidateProjectName(name); err != nil {
		return nil, err
	}
	if err := ValidateProjectNote(note); err != nil {
		return nil, err
	}

	p := &Project{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Note:      note,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}

	const query = `INSERT INTO projects (id, user_id, name, note, version, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, 1, ?, 0)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.Name, nullIfEmpty(p.Note), FormatTime(p.UpdatedAt))
	if err != nil {
		return nil, classifyStoreError(fmt.Sprintf("inserting project %s", p.ID), err)
	}
	return p, nil
}

// List returns all live projects owned by a user, most recently updated first.
func (r *SQLiteRepository) List(ctx context.Context, userID string) ([]Project, error) {
	const query = `SELECT id, user_id, name, note, version, updated_at, is_deleted
		FROM projects WHERE user_id = ? AND is_deleted = 0
		ORDER BY updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classifyStoreError("querying projects", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError("iterating project rows", err)
	}
	return projects, nil
}

// GetMeta returns a single live project by (user, id).
func (r *SQLiteRepository) GetMeta(ctx context.Context, userID, projectID string) (*Project, error) {
	const query = `SELECT id, user_id, name, note, version, updated_at, is_deleted
		FROM projects WHERE id = ? AND user_id = ? AND is_deleted = 0`
	row := r.db.QueryRowContext(ctx, query, projectID, userID)
	return scanProject(row)
}

// UpdateMeta updates name and/or note; nil fields are left unchanged.
func (r *SQLiteRepository) UpdateMeta(ctx context.Context, userID, projectID string, name, note *string) (*Project, error) {
	if name != nil {
		if err := ValidateProjectName(*name); err != nil {
			return nil, err
		}
	}
	if note != nil {
		if err := ValidateProjectNote(*note); err != nil {
			return nil, err
		}
	}

	const query = `UPDATE projects
		SET name = COALESCE(?, name), note = COALESCE(?, note), updated_at = ?
		WHERE id = ? AND user_id = ? AND is_deleted = 0`
	result, err := r.db.ExecContext(ctx, query,
		nullStr(name), nullStr(note), FormatTime(time.Now()), projectID, userID)
	if err != nil {
		return nil, classifyStoreError(fmt.Sprintf("updating project %s", projectID), err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return nil, ErrNotFound
	}
	return r.GetMeta(ctx, userID, projectID)
}

// SoftDelete tombstones a project. Child rows are left untouched; the
// project tombstone alone hides the whole hierarchy from list and sync.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, userID, projectID string) (*Project, error) {
	const query = `UPDATE projects SET is_deleted = 1, updated_at = ?
		WHERE id = ? AND user_id = ? AND is_deleted = 0`
	result, err := r.db.ExecContext(ctx, query, FormatTime(time.Now()), projectID, userID)
	if err != nil {
		return nil, classifyStoreError(fmt.Sprintf("deleting project %s", projectID), err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return nil, ErrNotFound
	}

	const sel = `SELECT id, user_id, name, note, version, updated_at, is_deleted
		FROM projects WHERE id = ? AND user_id = ?`
	row := r.db.QueryRowContext(ctx, sel, projectID, userID)
	return scanProject(row)
}

// Tree returns the live hierarchy of a project: rooms, groups, and
// devices with tombstones excluded.
func (r *SQLiteRepository) Tree(ctx context.Context, userID, projectID string) (*Tree, error) {
	p, err := r.GetMeta(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	tree := &Tree{
		Project: *p,
		Rooms:   []Room{},
		Groups:  []Group{},
		Devices: []Device{},
	}

	rooms, _, err := queryRooms(ctx, r.db, projectID, "", false)
	if err != nil {
		return nil, err
	}
	tree.Rooms = rooms

	groups, _, err := queryGroups(ctx, r.db, projectID, "", false)
	if err != nil {
		return nil, err
	}
	tree.Groups = groups

	devices, _, err := queryDevices(ctx, r.db, projectID, "", false)
	if err != nil {
		return nil, err
	}
	tree.Devices = devices

	return tree, nil
}

// bumpVersion atomically increments a project's version inside a batch
// transaction and returns the post-increment value.
//
// The increment-and-return is a single conditional UPDATE: two racing
// batches against the same project are guaranteed two distinct, sequential
// versions, never a lost update.
func bumpVersion(ctx context.Context, tx *sql.Tx, userID, projectID, now string) (int64, error) {
	const query = `UPDATE projects SET version = version + 1, updated_at = ?
		WHERE id = ? AND user_id = ? AND is_deleted = 0
		RETURNING version`
	var version int64
	err := tx.QueryRowContext(ctx, query, now, projectID, userID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, classifyStoreError(fmt.Sprintf("bumping version of project %s", projectID), err)
	}
	return version, nil
}

// scanProject scans a single row into a Project (for QueryRow).
func scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var note sql.NullString
	var isDeleted int
	var updatedAt string

	err := row.Scan(&p.ID, &p.UserID, &p.Name, &note, &p.Version, &updatedAt, &isDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyStoreError("scanning project", err)
	}
	if note.Valid {
		p.Note = note.String
	}
	p.UpdatedAt = ParseStoredTime(updatedAt)
	p.IsDeleted = isDeleted != 0
	return &p, nil
}

// scanProjectRow scans a project from a Rows cursor.
func scanProjectRow(rows *sql.Rows) (*Project, error) {
	var p Project
	var note sql.NullString
	var isDeleted int
	var updatedAt string

	err := rows.Scan(&p.ID, &p.UserID, &p.Name, &note, &p.Version, &updatedAt, &isDeleted)
	if err != nil {
		return nil, err
	}
	if note.Valid {
		p.Note = note.String
	}
	p.UpdatedAt = ParseStoredTime(updatedAt)
	p.IsDeleted = isDeleted != 0
	return &p, nil
}

// nullStr converts a *string to sql.NullString for nullable columns.
func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullIfEmpty converts an empty string to NULL for nullable columns.
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// metaArg serializes a meta map for storage; nil meta stores as NULL so
// COALESCE merges keep the previous value.
func metaArg(m Meta) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// parseMeta deserializes a stored meta column.
func parseMeta(s sql.NullString) Meta {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m Meta
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}

// nameNormArg derives the natural-key column from an optional name.
func nameNormArg(name *string) sql.NullString {
	if name == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: NormalizeName(*name), Valid: true}
}

// querier abstracts *sql.DB and *sql.Tx for read helpers shared between
// the repository, the delta engine, and batch appliers.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
