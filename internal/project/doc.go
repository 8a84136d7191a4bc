// Package project implements the VoltHome synchronization engine.
//
// Multiple disconnected clients keep a local copy of a hierarchical
// project (rooms contain groups, groups contain devices) and periodically
// reconcile with the server, which is authoritative. The engine provides:
//
//   - Batch apply (Engine.ApplyBatch): one atomic transaction per batch,
//     deletes child-to-parent, upserts parent-to-child, exactly one
//     version increment per batch. A stale client baseVersion is reported
//     in a conflicts list but never blocks the batch (last-writer-wins).
//   - Delta retrieval (Engine.Delta): all rows changed at or after a
//     timestamp, split into upserts and tombstone ids per entity type.
//   - Soft deletes: rows are tombstoned, never physically removed, so
//     deletions replay to clients that were offline when they happened.
//   - Idempotent upserts: by client id when supplied, otherwise by an
//     atomic find-or-create on the live natural key (project + parent
//     scope + case-folded name), so retried submissions never duplicate.
//   - Default-group healing: a device submitted with only a room hint
//     lands in the room's reserved "__default__" group, created
//     idempotently on demand.
//
// Project CRUD lives on Repository; everything is keyed on the owning
// user id, and foreign projects are indistinguishable from missing ones.
package project
