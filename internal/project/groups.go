package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// applyGroupDeletes tombstones groups by id within one batch transaction.
// Missing ids are skipped, matching the room delete semantics.
func applyGroupDeletes(ctx context.Context, tx *sql.Tx, projectID string, ids []string, now string) error {
	const query = `UPDATE groups SET is_deleted = 1, updated_at = ?
		WHERE id = ? AND project_id = ? AND is_deleted = 0`
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, query, now, id, projectID); err != nil {
			return classifyStoreError(fmt.Sprintf("deleting group %s", id), err)
		}
	}
	return nil
}

// applyGroupUpserts applies group create-or-update operations and returns
// the resulting row ids in submission order.
//
// Every group references a room; the room must exist in the same project
// or the whole record is rejected before any row is written. Rooms
// upserted earlier in the same batch are visible here because everything
// runs in one transaction.
func applyGroupUpserts(ctx context.Context, tx *sql.Tx, projectID string, groups []Group, now string) ([]string, error) {
	ids := make([]string, 0, len(groups))
	for i := range groups {
		ok, err := roomInProject(ctx, tx, projectID, groups[i].RoomID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: group references room %s outside project", ErrReferential, groups[i].RoomID)
		}

		var id string
		switch {
		case groups[i].ID != "":
			id, err = upsertGroupByID(ctx, tx, projectID, &groups[i], now)
		case groups[i].Name != nil:
			id, err = upsertGroupByName(ctx, tx, projectID, &groups[i], now)
		default:
			id, err = insertGroup(ctx, tx, projectID, &groups[i], now)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// upsertGroupByID performs the idempotent by-id create-or-update with the
// cross-project guard on the conflict action.
func upsertGroupByID(ctx context.Context, tx *sql.Tx, projectID string, g *Group, now string) (string, error) {
	const query = `INSERT INTO groups (id, project_id, room_id, name, name_norm, meta, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			room_id = excluded.room_id,
			name = COALESCE(excluded.name, groups.name),
			name_norm = COALESCE(excluded.name_norm, groups.name_norm),
			meta = COALESCE(excluded.meta, groups.meta),
			updated_at = excluded.updated_at,
			is_deleted = 0
		WHERE groups.project_id = excluded.project_id
		RETURNING id`
	var id string
	err := tx.QueryRowContext(ctx, query,
		g.ID, projectID, g.RoomID, nullStr(g.Name), nameNormArg(g.Name), metaArg(g.Meta), now).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: group id %s belongs to another project", ErrReferential, g.ID)
		}
		return "", classifyStoreError(fmt.Sprintf("upserting group %s", g.ID), err)
	}
	return id, nil
}

// upsertGroupByName performs the atomic find-or-create against the live
// natural key (project, room, case-folded name).
func upsertGroupByName(ctx context.Context, tx *sql.Tx, projectID string, g *Group, now string) (string, error) {
	const query = `INSERT INTO groups (id, project_id, room_id, name, name_norm, meta, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(project_id, room_id, name_norm) WHERE is_deleted = 0 AND name_norm IS NOT NULL
		DO UPDATE SET
			name = excluded.name,
			meta = COALESCE(excluded.meta, groups.meta),
			updated_at = excluded.updated_at
		RETURNING id`
	var id string
	err := tx.QueryRowContext(ctx, query,
		uuid.NewString(), projectID, g.RoomID, nullStr(g.Name), nameNormArg(g.Name), metaArg(g.Meta), now).Scan(&id)
	if err != nil {
		return "", classifyStoreError(fmt.Sprintf("upserting group %q", *g.Name), err)
	}
	return id, nil
}

// insertGroup inserts an unnamed group with a fresh id.
func insertGroup(ctx context.Context, tx *sql.Tx, projectID string, g *Group, now string) (string, error) {
	id := uuid.NewString()
	const query = `INSERT INTO groups (id, project_id, room_id, name, name_norm, meta, updated_at, is_deleted)
		VALUES (?, ?, ?, NULL, NULL, ?, ?, 0)`
	if _, err := tx.ExecContext(ctx, query, id, projectID, g.RoomID, metaArg(g.Meta), now); err != nil {
		return "", classifyStoreError("inserting group", err)
	}
	return id, nil
}

// roomInProject reports whether a room id exists within the project.
// Tombstoned rooms count: a reference to a deleted room is not a
// cross-project violation, and a later batch may resurrect the room.
func roomInProject(ctx context.Context, q querier, projectID, roomID string) (bool, error) {
	const query = `SELECT 1 FROM rooms WHERE id = ? AND project_id = ?`
	var one int
	err := q.QueryRowContext(ctx, query, roomID, projectID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, classifyStoreError(fmt.Sprintf("checking room %s", roomID), err)
	}
	return true, nil
}

// groupInProject reports whether a group id exists within the project.
func groupInProject(ctx context.Context, q querier, projectID, groupID string) (bool, error) {
	const query = `SELECT 1 FROM groups WHERE id = ? AND project_id = ?`
	var one int
	err := q.QueryRowContext(ctx, query, groupID, projectID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, classifyStoreError(fmt.Sprintf("checking group %s", groupID), err)
	}
	return true, nil
}

// queryGroups reads groups of a project, with the same since/partition
// semantics as queryRooms.
func queryGroups(ctx context.Context, q querier, projectID, since string, withDeleted bool) ([]Group, []string, error) {
	query := `SELECT id, project_id, room_id, name, meta, updated_at, is_deleted
		FROM groups WHERE project_id = ?`
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
		return nil, nil, classifyStoreError("querying groups", err)
	}
	defer rows.Close()

	live := []Group{}
	deleted := []string{}
	for rows.Next() {
		var g Group
		var name, meta sql.NullString
		var updatedAt string
		var isDeleted int
		if err := rows.Scan(&g.ID, &g.ProjectID, &g.RoomID, &name, &meta, &updatedAt, &isDeleted); err != nil {
			return nil, nil, fmt.Errorf("scanning group row: %w", err)
		}
		if name.Valid {
			g.Name = &name.String
		}
		g.Meta = parseMeta(meta)
		g.UpdatedAt = ParseStoredTime(updatedAt)
		if isDeleted != 0 {
			deleted = append(deleted, g.ID)
			continue
		}
		live = append(live, g)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, classifyStoreError("iterating group rows", err)
	}
	return live, deleted, nil
}
