package project

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// DefaultGroupName is the reserved name of the per-room group that holds
// devices submitted without an explicit group.
const DefaultGroupName = "__default__"

// resolveDefaultGroups guarantees exactly one live default group per
// (project, room) and returns a room-id to group-id map.
//
// Each room is resolved by a single atomic insert-or-find against the live
// natural-key index: if a live default group already exists the statement
// degenerates to a no-op update that returns the existing id. Two
// concurrent callers racing on the same room therefore always converge on
// one row; the loser of the insert race simply reads the winner's id.
func resolveDefaultGroups(ctx context.Context, tx *sql.Tx, projectID string, roomIDs []string, now string) (map[string]string, error) {
	const query = `INSERT INTO groups (id, project_id, room_id, name, name_norm, meta, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, NULL, ?, 0)
		ON CONFLICT(project_id, room_id, name_norm) WHERE is_deleted = 0 AND name_norm IS NOT NULL
		DO UPDATE SET updated_at = groups.updated_at
		RETURNING id`

	result := make(map[string]string, len(roomIDs))
	for _, roomID := range roomIDs {
		var id string
		err := tx.QueryRowContext(ctx, query,
			uuid.NewString(), projectID, roomID, DefaultGroupName, DefaultGroupName, now).Scan(&id)
		if err != nil {
			return nil, classifyStoreError(fmt.Sprintf("resolving default group for room %s", roomID), err)
		}
		result[roomID] = id
	}
	return result, nil
}
