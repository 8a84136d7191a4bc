package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// applyRoomDeletes tombstones rooms by id within one batch transaction.
// Ids that do not exist in the project are skipped: a retried delete of an
// already-deleted (or never-created) room must not fail the batch.
func applyRoomDeletes(ctx context.Context, tx *sql.Tx, projectID string, ids []string, now string) error {
	const query = `UPDATE rooms SET is_deleted = 1, updated_at = ?
		WHERE id = ? AND project_id = ? AND is_deleted = 0`
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, query, now, id, projectID); err != nil {
			return classifyStoreError(fmt.Sprintf("deleting room %s", id), err)
		}
	}
	return nil
}

// applyRoomUpserts applies room create-or-update operations and returns
// the resulting row ids in submission order.
//
// Records with a client id run the by-id path; records without one run the
// natural-key path when named, or insert a fresh row when unnamed (no key
// to match retries on).
func applyRoomUpserts(ctx context.Context, tx *sql.Tx, projectID string, rooms []Room, now string) ([]string, error) {
	ids := make([]string, 0, len(rooms))
	for i := range rooms {
		var (
			id  string
			err error
		)
		switch {
		case rooms[i].ID != "":
			id, err = upsertRoomByID(ctx, tx, projectID, &rooms[i], now)
		case rooms[i].Name != nil:
			id, err = upsertRoomByName(ctx, tx, projectID, &rooms[i], now)
		default:
			id, err = insertRoom(ctx, tx, projectID, &rooms[i], now)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// upsertRoomByID performs the idempotent by-id create-or-update.
//
// The WHERE clause on the conflict action guards against cross-project id
// reuse: if the id exists in another project the update matches nothing,
// RETURNING yields no row, and the record is rejected without touching
// the foreign row.
func upsertRoomByID(ctx context.Context, tx *sql.Tx, projectID string, r *Room, now string) (string, error) {
	const query = `INSERT INTO rooms (id, project_id, name, name_norm, meta, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			name = COALESCE(excluded.name, rooms.name),
			name_norm = COALESCE(excluded.name_norm, rooms.name_norm),
			meta = COALESCE(excluded.meta, rooms.meta),
			updated_at = excluded.updated_at,
			is_deleted = 0
		WHERE rooms.project_id = excluded.project_id
		RETURNING id`
	var id string
	err := tx.QueryRowContext(ctx, query,
		r.ID, projectID, nullStr(r.Name), nameNormArg(r.Name), metaArg(r.Meta), now).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: room id %s belongs to another project", ErrReferential, r.ID)
		}
		return "", classifyStoreError(fmt.Sprintf("upserting room %s", r.ID), err)
	}
	return id, nil
}

// upsertRoomByName performs the atomic find-or-create against the live
// natural key (project, case-folded name). A retried submission after a
// dropped response lands on the same row instead of duplicating it.
func upsertRoomByName(ctx context.Context, tx *sql.Tx, projectID string, r *Room, now string) (string, error) {
	const query = `INSERT INTO rooms (id, project_id, name, name_norm, meta, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(project_id, name_norm) WHERE is_deleted = 0 AND name_norm IS NOT NULL
		DO UPDATE SET
			name = excluded.name,
			meta = COALESCE(excluded.meta, rooms.meta),
			updated_at = excluded.updated_at
		RETURNING id`
	var id string
	err := tx.QueryRowContext(ctx, query,
		uuid.NewString(), projectID, nullStr(r.Name), nameNormArg(r.Name), metaArg(r.Meta), now).Scan(&id)
	if err != nil {
		return "", classifyStoreError(fmt.Sprintf("upserting room %q", *r.Name), err)
	}
	return id, nil
}

// insertRoom inserts an unnamed room with a fresh id.
func insertRoom(ctx context.Context, tx *sql.Tx, projectID string, r *Room, now string) (string, error) {
	id := uuid.NewString()
	const query = `INSERT INTO rooms (id, project_id, name, name_norm, meta, updated_at, is_deleted)
		VALUES (?, ?, NULL, NULL, ?, ?, 0)`
	if _, err := tx.ExecContext(ctx, query, id, projectID, metaArg(r.Meta), now); err != nil {
		return "", classifyStoreError("inserting room", err)
	}
	return id, nil
}

// queryRooms reads rooms of a project. With since set, it returns rows with
// updated_at >= since ordered ascending, partitioned into live rooms and
// tombstone ids. With since empty it returns live rooms only.
func queryRooms(ctx context.Context, q querier, projectID, since string, withDeleted bool) ([]Room, []string, error) {
	query := `SELECT id, project_id, name, meta, updated_at, is_deleted
		FROM rooms WHERE project_id = ?`
	args := []any{projectID}
	if since != "" {
		query += ` AND updated_at >= ?`
		args = append(args, since)
	}
	if !withDeleted {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY updated_at ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, classifyStoreError("querying rooms", err)
	}
	defer rows.Close()

	live := []Room{}
	deleted := []string{}
	for rows.Next() {
		var r Room
		var name, meta sql.NullString
		var updatedAt string
		var isDeleted int
		if err := rows.Scan(&r.ID, &r.ProjectID, &name, &meta, &updatedAt, &isDeleted); err != nil {
			return nil, nil, fmt.Errorf("scanning room row: %w", err)
		}
		if name.Valid {
			r.Name = &name.String
		}
		r.Meta = parseMeta(meta)
		r.UpdatedAt = ParseStoredTime(updatedAt)
		if isDeleted != 0 {
			deleted = append(deleted, r.ID)
			continue
		}
		live = append(live, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, classifyStoreError("iterating room rows", err)
	}
	return live, deleted, nil
}
