package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// applyDeviceDeletes tombstones devices by id within one batch transaction.
// Missing ids are skipped.
func applyDeviceDeletes(ctx context.Context, tx *sql.Tx, projectID string, ids []string, now string) error {
	const query = `UPDATE devices SET is_deleted = 1, updated_at = ?
		WHERE id = ? AND project_id = ? AND is_deleted = 0`
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, query, now, id, projectID); err != nil {
			return classifyStoreError(fmt.Sprintf("deleting device %s", id), err)
		}
	}
	return nil
}

// resolveDeviceGroups fills in a concrete group id for every device in the
// slice, mutating the elements in place.
//
// Resolution order per device:
//  1. Explicit groupId — verified to belong to the project, else rejected.
//  2. Room hint in meta — the room is verified to belong to the project,
//     then its default group is resolved (created if absent).
//  3. Neither — the whole batch fails with a group-unresolved error.
//
// When a device carries both an explicit group id and a room hint, the
// explicit id wins; the hint is only consulted when no group id is given.
func resolveDeviceGroups(ctx context.Context, tx *sql.Tx, projectID string, devices []Device, now string) error {
	hintRooms := make([]string, 0)
	seen := make(map[string]bool)

	for i := range devices {
		d := &devices[i]
		if d.GroupID != "" {
			ok, err := groupInProject(ctx, tx, projectID, d.GroupID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: device references group %s outside project", ErrReferential, d.GroupID)
			}
			continue
		}

		hint := d.Meta.RoomHint()
		if hint == "" {
			return fmt.Errorf("%w: device %q has no group id and no room hint", ErrGroupUnresolved, d.Name)
		}
		ok, err := roomInProject(ctx, tx, projectID, hint)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: device room hint %s outside project", ErrReferential, hint)
		}
		if !seen[hint] {
			seen[hint] = true
			hintRooms = append(hintRooms, hint)
		}
	}

	if len(hintRooms) == 0 {
		return nil
	}

	defaults, err := resolveDefaultGroups(ctx, tx, projectID, hintRooms, now)
	if err != nil {
		return err
	}
	for i := range devices {
		d := &devices[i]
		if d.GroupID == "" {
			d.GroupID = defaults[d.Meta.RoomHint()]
		}
	}
	return nil
}

// applyDeviceUpserts applies device create-or-update operations and returns
// the resulting row ids in submission order. Every device must already have
// a resolved group id (see resolveDeviceGroups).
func applyDeviceUpserts(ctx context.Context, tx *sql.Tx, projectID string, devices []Device, now string) ([]string, error) {
	ids := make([]string, 0, len(devices))
	for i := range devices {
		var (
			id  string
			err error
		)
		if devices[i].ID != "" {
			id, err = upsertDeviceByID(ctx, tx, projectID, &devices[i], now)
		} else {
			id, err = upsertDeviceByName(ctx, tx, projectID, &devices[i], now)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// upsertDeviceByID performs the idempotent by-id create-or-update with the
// cross-project guard on the conflict action.
func upsertDeviceByID(ctx context.Context, tx *sql.Tx, projectID string, d *Device, now string) (string, error) {
	const query = `INSERT INTO devices (id, project_id, group_id, name, name_norm, meta, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			group_id = excluded.group_id,
			name = excluded.name,
			name_norm = excluded.name_norm,
			meta = COALESCE(excluded.meta, devices.meta),
			updated_at = excluded.updated_at,
			is_deleted = 0
		WHERE devices.project_id = excluded.project_id
		RETURNING id`
	var id string
	err := tx.QueryRowContext(ctx, query,
		d.ID, projectID, d.GroupID, d.Name, NormalizeName(d.Name), metaArg(d.Meta), now).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: device id %s belongs to another project", ErrReferential, d.ID)
		}
		return "", classifyStoreError(fmt.Sprintf("upserting device %s", d.ID), err)
	}
	return id, nil
}

// upsertDeviceByName performs the atomic find-or-create against the live
// natural key (project, group, case-folded name). Device names are
// mandatory, so the without-id path always has a key to match retries on.
func upsertDeviceByName(ctx context.Context, tx *sql.Tx, projectID string, d *Device, now string) (string, error) {
	const query = `INSERT INTO devices (id, project_id, group_id, name, name_norm, meta, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(project_id, group_id, name_norm) WHERE is_deleted = 0
		DO UPDATE SET
			name = excluded.name,
			meta = COALESCE(excluded.meta, devices.meta),
			updated_at = excluded.updated_at
		RETURNING id`
	var id string
	err := tx.QueryRowContext(ctx, query,
		uuid.NewString(), projectID, d.GroupID, d.Name, NormalizeName(d.Name), metaArg(d.Meta), now).Scan(&id)
	if err != nil {
		return "", classifyStoreError(fmt.Sprintf("upserting device %q", d.Name), err)
	}
	return id, nil
}

// queryDevices reads devices of a project, with the same since/partition
// semantics as queryRooms.
func queryDevices(ctx context.Context, q querier, projectID, since string, withDeleted bool) ([]Device, []string, error) {
	query := `SELECT id, project_id, group_id, name, meta, updated_at, is_deleted
		FROM devices WHERE project_id = ?`
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
		return nil, nil, classifyStoreError("querying devices", err)
	}
	defer rows.Close()

	live := []Device{}
	deleted := []string{}
	for rows.Next() {
		var d Device
		var meta sql.NullString
		var updatedAt string
		var isDeleted int
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.GroupID, &d.Name, &meta, &updatedAt, &isDeleted); err != nil {
			return nil, nil, fmt.Errorf("scanning device row: %w", err)
		}
		d.Meta = parseMeta(meta)
		d.UpdatedAt = ParseStoredTime(updatedAt)
		if isDeleted != 0 {
			deleted = append(deleted, d.ID)
			continue
		}
		live = append(live, d)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, classifyStoreError("iterating device rows", err)
	}
	return live, deleted, nil
}
