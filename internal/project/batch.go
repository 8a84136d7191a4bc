package project

import (
	"context"
	"database/sql"
	"time"
)

// staleReason is reported once per applied operation when the client's
// baseVersion was behind the project version at batch start.
const staleReason = "stale baseVersion; server applied anyway"

// Engine is the sync engine facade: batch apply and delta retrieval over
// one shared database handle.
type Engine struct {
	db       *sql.DB
	projects Repository
}

// NewEngine creates a sync engine backed by SQLite.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{
		db:       db,
		projects: NewSQLiteRepository(db),
	}
}

// Projects exposes the project repository the engine was built with.
func (e *Engine) Projects() Repository {
	return e.projects
}

// ApplyBatch applies one client-submitted sync batch in a single atomic
// transaction.
//
// Order of operations inside the transaction:
//  1. Deletes child-to-parent (devices, groups, rooms) so a parent
//     tombstone cannot strand a still-live child for longer than a
//     statement.
//  2. Upserts parent-to-child (rooms, groups, devices) so a device
//     submitted alongside its new parent resolves against rows written
//     moments earlier in the same transaction.
//  3. Room-hinted devices are healed through the default group resolver
//     before device upserts.
//  4. The project version advances by exactly one, independent of how
//     many rows the batch touched.
//
// Any failure rolls back the whole transaction; no partial application is
// ever observable. A stale baseVersion is not a failure: the batch still
// applies (server-authoritative last-writer-wins) and every submitted
// operation is echoed in the conflicts list.
//
// The transaction runs on a context detached from the caller's
// cancellation: a client disconnect mid-batch must not tear a
// half-applied batch.
func (e *Engine) ApplyBatch(ctx context.Context, userID, projectID string, req *BatchRequest) (*BatchResult, error) {
	if err := ValidateID("project id", projectID); err != nil {
		return nil, err
	}
	if err := ValidateBatch(req); err != nil {
		return nil, err
	}

	meta, err := e.projects.GetMeta(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	baseline := meta.Version

	// Detached from caller cancellation: commit or roll back fully.
	txCtx := context.WithoutCancel(ctx)

	tx, err := e.db.BeginTx(txCtx, nil)
	if err != nil {
		return nil, classifyStoreError("beginning batch transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := FormatTime(time.Now())

	applied, err := applyOps(txCtx, tx, projectID, &req.Ops, now)
	if err != nil {
		return nil, err
	}

	newVersion, err := bumpVersion(txCtx, tx, userID, projectID, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, classifyStoreError("committing batch transaction", err)
	}

	result := &BatchResult{
		NewVersion: newVersion,
		Conflicts:  []Conflict{},
	}
	if req.BaseVersion != nil && *req.BaseVersion < baseline {
		result.Conflicts = applied.conflicts()
	}
	return result, nil
}

// appliedOps records the ids every operation of a batch landed on, in
// submission order, for conflict reporting.
type appliedOps struct {
	roomUpserts   []string
	groupUpserts  []string
	deviceUpserts []string
	roomDeletes   []string
	groupDeletes  []string
	deviceDeletes []string
}

// applyOps runs the delete and upsert phases of a batch inside tx.
func applyOps(ctx context.Context, tx *sql.Tx, projectID string, ops *BatchOps, now string) (*appliedOps, error) {
	applied := &appliedOps{}

	// Deletes, child to parent.
	if ops.Devices != nil && len(ops.Devices.Delete) > 0 {
		if err := applyDeviceDeletes(ctx, tx, projectID, ops.Devices.Delete, now); err != nil {
			return nil, err
		}
		applied.deviceDeletes = ops.Devices.Delete
	}
	if ops.Groups != nil && len(ops.Groups.Delete) > 0 {
		if err := applyGroupDeletes(ctx, tx, projectID, ops.Groups.Delete, now); err != nil {
			return nil, err
		}
		applied.groupDeletes = ops.Groups.Delete
	}
	if ops.Rooms != nil && len(ops.Rooms.Delete) > 0 {
		if err := applyRoomDeletes(ctx, tx, projectID, ops.Rooms.Delete, now); err != nil {
			return nil, err
		}
		applied.roomDeletes = ops.Rooms.Delete
	}

	// Upserts, parent to child.
	if ops.Rooms != nil && len(ops.Rooms.Upsert) > 0 {
		ids, err := applyRoomUpserts(ctx, tx, projectID, ops.Rooms.Upsert, now)
		if err != nil {
			return nil, err
		}
		applied.roomUpserts = ids
	}
	if ops.Groups != nil && len(ops.Groups.Upsert) > 0 {
		ids, err := applyGroupUpserts(ctx, tx, projectID, ops.Groups.Upsert, now)
		if err != nil {
			return nil, err
		}
		applied.groupUpserts = ids
	}
	if ops.Devices != nil && len(ops.Devices.Upsert) > 0 {
		// Work on a copy so group resolution never mutates the caller's request.
		devices := make([]Device, len(ops.Devices.Upsert))
		copy(devices, ops.Devices.Upsert)

		if err := resolveDeviceGroups(ctx, tx, projectID, devices, now); err != nil {
			return nil, err
		}
		ids, err := applyDeviceUpserts(ctx, tx, projectID, devices, now)
		if err != nil {
			return nil, err
		}
		applied.deviceUpserts = ids
	}

	return applied, nil
}

// conflicts builds one stale-baseVersion entry per submitted operation.
func (a *appliedOps) conflicts() []Conflict {
	total := len(a.roomUpserts) + len(a.groupUpserts) + len(a.deviceUpserts) +
		len(a.roomDeletes) + len(a.groupDeletes) + len(a.deviceDeletes)
	out := make([]Conflict, 0, total)

	appendEntity := func(entity string, ids []string) {
		for _, id := range ids {
			out = append(out, Conflict{Entity: entity, ID: id, Reason: staleReason})
		}
	}
	appendEntity("rooms", a.roomUpserts)
	appendEntity("rooms", a.roomDeletes)
	appendEntity("groups", a.groupUpserts)
	appendEntity("groups", a.groupDeletes)
	appendEntity("devices", a.deviceUpserts)
	appendEntity("devices", a.deviceDeletes)
	return out
}
