package project

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func int64Ptr(v int64) *int64 { return &v }

// applyRooms is a shorthand for a batch upserting the given rooms.
func applyRooms(t *testing.T, e *Engine, projectID string, rooms ...Room) *BatchResult {
	t.Helper()
	res, err := e.ApplyBatch(context.Background(), testUser, projectID, &BatchRequest{
		Ops: BatchOps{Rooms: &RoomSet{Upsert: rooms}},
	})
	if err != nil {
		t.Fatalf("ApplyBatch() error = %v", err)
	}
	return res
}

func TestApplyBatch_VersionAdvancesByOne(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Versioning")

	// A batch touching several rows still advances version by exactly one.
	res, err := engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		Ops: BatchOps{
			Rooms: &RoomSet{Upsert: []Room{
				{Name: strPtr("Kitchen")},
				{Name: strPtr("Hall")},
				{Name: strPtr("Bedroom")},
			}},
		},
	})
	if err != nil {
		t.Fatalf("ApplyBatch() error = %v", err)
	}
	if res.NewVersion != 2 {
		t.Errorf("newVersion = %d, want 2", res.NewVersion)
	}

	// An empty batch is still a batch.
	res, err = engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{})
	if err != nil {
		t.Fatalf("ApplyBatch() empty error = %v", err)
	}
	if res.NewVersion != 3 {
		t.Errorf("newVersion after empty batch = %d, want 3", res.NewVersion)
	}
}

func TestApplyBatch_NotFound(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	p := createTestProject(t, NewSQLiteRepository(db), "Private")

	_, err := engine.ApplyBatch(context.Background(), "22222222-2222-4222-8222-222222222222", p.ID, &BatchRequest{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ApplyBatch() for foreign user error = %v, want ErrNotFound", err)
	}
}

func TestApplyBatch_UpsertByIDIdempotent(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	p := createTestProject(t, NewSQLiteRepository(db), "Idempotency")

	roomID := "33333333-3333-4333-8333-333333333333"
	room := Room{ID: roomID, Name: strPtr("Kitchen"), Meta: Meta{"floor": "1"}}

	applyRooms(t, engine, p.ID, room)
	applyRooms(t, engine, p.ID, room)

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rooms WHERE project_id = ?`, p.ID).Scan(&count); err != nil {
		t.Fatalf("counting rooms: %v", err)
	}
	if count != 1 {
		t.Errorf("room count after retried upsert = %d, want 1", count)
	}
}

func TestApplyBatch_UpsertByIDMergesNonNull(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	p := createTestProject(t, NewSQLiteRepository(db), "Merging")

	roomID := "33333333-3333-4333-8333-333333333333"
	applyRooms(t, engine, p.ID, Room{ID: roomID, Name: strPtr("Kitchen"), Meta: Meta{"floor": "1"}})

	// Second upsert omits name and meta: stored values must survive.
	applyRooms(t, engine, p.ID, Room{ID: roomID})

	tree, err := NewSQLiteRepository(db).Tree(context.Background(), testUser, p.ID)
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	if len(tree.Rooms) != 1 {
		t.Fatalf("room count = %d, want 1", len(tree.Rooms))
	}
	r := tree.Rooms[0]
	if r.Name == nil || *r.Name != "Kitchen" {
		t.Errorf("name after null-field upsert = %v, want Kitchen", r.Name)
	}
	if r.Meta["floor"] != "1" {
		t.Errorf("meta after null-field upsert = %v, want floor=1", r.Meta)
	}
}

func TestApplyBatch_UpsertWithoutIDFindsExisting(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	p := createTestProject(t, NewSQLiteRepository(db), "Natural key")

	// Same name, different case: a retried no-id submission must land on
	// the same row.
	applyRooms(t, engine, p.ID, Room{Name: strPtr("Kitchen")})
	applyRooms(t, engine, p.ID, Room{Name: strPtr("  kitchen ")})

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rooms WHERE project_id = ?`, p.ID).Scan(&count); err != nil {
		t.Fatalf("counting rooms: %v", err)
	}
	if count != 1 {
		t.Errorf("room count after case-variant retry = %d, want 1", count)
	}
}

func TestApplyBatch_Resurrection(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Lazarus")

	roomID := "33333333-3333-4333-8333-333333333333"
	applyRooms(t, engine, p.ID, Room{ID: roomID, Name: strPtr("Kitchen")})

	_, err := engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		Ops: BatchOps{Rooms: &RoomSet{Delete: []string{roomID}}},
	})
	if err != nil {
		t.Fatalf("delete batch error = %v", err)
	}

	applyRooms(t, engine, p.ID, Room{ID: roomID, Name: strPtr("Kitchen")})

	var isDeleted int
	if err := db.QueryRow(`SELECT is_deleted FROM rooms WHERE id = ?`, roomID).Scan(&isDeleted); err != nil {
		t.Fatalf("reading room: %v", err)
	}
	if isDeleted != 0 {
		t.Error("room still tombstoned after re-upsert; resurrection expected")
	}
}

func TestApplyBatch_CrossProjectIDRejected(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	repo := NewSQLiteRepository(db)
	p1 := createTestProject(t, repo, "First")
	p2 := createTestProject(t, repo, "Second")

	roomID := "33333333-3333-4333-8333-333333333333"
	applyRooms(t, engine, p1.ID, Room{ID: roomID, Name: strPtr("Kitchen")})

	// Reusing the id in another project must be rejected, not hijacked.
	_, err := engine.ApplyBatch(ctx, testUser, p2.ID, &BatchRequest{
		Ops: BatchOps{Rooms: &RoomSet{Upsert: []Room{{ID: roomID, Name: strPtr("Stolen")}}}},
	})
	if !errors.Is(err, ErrReferential) {
		t.Fatalf("cross-project upsert error = %v, want ErrReferential", err)
	}

	// The original row is untouched.
	var name string
	if err := db.QueryRow(`SELECT name FROM rooms WHERE id = ?`, roomID).Scan(&name); err != nil {
		t.Fatalf("reading room: %v", err)
	}
	if name != "Kitchen" {
		t.Errorf("room name after rejected hijack = %q, want Kitchen", name)
	}
}

func TestApplyBatch_AllOrNothing(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Atomic")

	// The room upsert would succeed on its own, but the device has no
	// group and no hint, so the whole batch must roll back.
	_, err := engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		Ops: BatchOps{
			Rooms:   &RoomSet{Upsert: []Room{{Name: strPtr("Kitchen")}}},
			Devices: &DeviceSet{Upsert: []Device{{Name: "Orphan socket"}}},
		},
	})
	if !errors.Is(err, ErrGroupUnresolved) {
		t.Fatalf("ApplyBatch() error = %v, want ErrGroupUnresolved", err)
	}

	var rooms int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rooms WHERE project_id = ?`, p.ID).Scan(&rooms); err != nil {
		t.Fatalf("counting rooms: %v", err)
	}
	if rooms != 0 {
		t.Errorf("rooms persisted from rolled-back batch = %d, want 0", rooms)
	}

	var version int64
	if err := db.QueryRow(`SELECT version FROM projects WHERE id = ?`, p.ID).Scan(&version); err != nil {
		t.Fatalf("reading version: %v", err)
	}
	if version != 1 {
		t.Errorf("version after failed batch = %d, want 1", version)
	}
}

func TestApplyBatch_StaleBaseVersionConflicts(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Stale")

	applyRooms(t, engine, p.ID, Room{Name: strPtr("Kitchen")}) // version -> 2

	res, err := engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		BaseVersion: int64Ptr(1), // behind current version 2
		Ops: BatchOps{
			Rooms: &RoomSet{Upsert: []Room{{Name: strPtr("Hall")}}},
		},
	})
	if err != nil {
		t.Fatalf("stale batch error = %v; staleness must not fail a batch", err)
	}
	if res.NewVersion != 3 {
		t.Errorf("newVersion = %d, want 3 (stale batch still advances)", res.NewVersion)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflicts = %d entries, want 1", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.Entity != "rooms" || c.ID == "" || c.Reason != staleReason {
		t.Errorf("conflict = %+v, want rooms entity with stale reason", c)
	}
}

func TestApplyBatch_CurrentBaseVersionNoConflicts(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Fresh")

	res, err := engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		BaseVersion: int64Ptr(1),
		Ops: BatchOps{
			Rooms: &RoomSet{Upsert: []Room{{Name: strPtr("Kitchen")}}},
		},
	})
	if err != nil {
		t.Fatalf("ApplyBatch() error = %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Errorf("conflicts = %v, want none for current baseVersion", res.Conflicts)
	}
}

func TestApplyBatch_ConcurrentDistinctVersions(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	p := createTestProject(t, NewSQLiteRepository(db), "Race")

	const workers = 8
	versions := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := engine.ApplyBatch(context.Background(), testUser, p.ID, &BatchRequest{})
			if err != nil {
				errs[i] = err
				return
			}
			versions[i] = res.NewVersion
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d error = %v", i, errs[i])
		}
		if seen[versions[i]] {
			t.Fatalf("version %d handed out twice", versions[i])
		}
		seen[versions[i]] = true
	}
}

func TestApplyBatch_DeviceExplicitGroup(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Wired")

	roomID := "33333333-3333-4333-8333-333333333333"
	groupID := "44444444-4444-4444-8444-444444444444"

	_, err := engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		Ops: BatchOps{
			Rooms:  &RoomSet{Upsert: []Room{{ID: roomID, Name: strPtr("Kitchen")}}},
			Groups: &GroupSet{Upsert: []Group{{ID: groupID, RoomID: roomID, Name: strPtr("Sockets")}}},
			Devices: &DeviceSet{Upsert: []Device{
				{GroupID: groupID, Name: "Double socket"},
			}},
		},
	})
	if err != nil {
		t.Fatalf("ApplyBatch() error = %v", err)
	}

	var got string
	if err := db.QueryRow(`SELECT group_id FROM devices WHERE project_id = ?`, p.ID).Scan(&got); err != nil {
		t.Fatalf("reading device: %v", err)
	}
	if got != groupID {
		t.Errorf("device group = %s, want %s", got, groupID)
	}
}

func TestApplyBatch_DeviceCrossProjectGroupRejected(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	repo := NewSQLiteRepository(db)
	p1 := createTestProject(t, repo, "First")
	p2 := createTestProject(t, repo, "Second")

	roomID := "33333333-3333-4333-8333-333333333333"
	groupID := "44444444-4444-4444-8444-444444444444"
	_, err := engine.ApplyBatch(ctx, testUser, p1.ID, &BatchRequest{
		Ops: BatchOps{
			Rooms:  &RoomSet{Upsert: []Room{{ID: roomID, Name: strPtr("Kitchen")}}},
			Groups: &GroupSet{Upsert: []Group{{ID: groupID, RoomID: roomID}}},
		},
	})
	if err != nil {
		t.Fatalf("seed batch error = %v", err)
	}

	_, err = engine.ApplyBatch(ctx, testUser, p2.ID, &BatchRequest{
		Ops: BatchOps{
			Devices: &DeviceSet{Upsert: []Device{{GroupID: groupID, Name: "Stray"}}},
		},
	})
	if !errors.Is(err, ErrReferential) {
		t.Errorf("cross-project group error = %v, want ErrReferential", err)
	}
}

func TestApplyBatch_ScenarioStaleDeviceWithRoomHint(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Scenario")

	// Batch A: upsert room R without id, baseVersion = 1.
	resA, err := engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		BaseVersion: int64Ptr(1),
		Ops:         BatchOps{Rooms: &RoomSet{Upsert: []Room{{Name: strPtr("Living room")}}}},
	})
	if err != nil {
		t.Fatalf("batch A error = %v", err)
	}
	if resA.NewVersion != 2 || len(resA.Conflicts) != 0 {
		t.Fatalf("batch A = v%d/%d conflicts, want v2/0", resA.NewVersion, len(resA.Conflicts))
	}

	var roomID string
	if err := db.QueryRow(`SELECT id FROM rooms WHERE project_id = ?`, p.ID).Scan(&roomID); err != nil {
		t.Fatalf("reading room id: %v", err)
	}

	// Batch B: stale baseVersion, device with a room hint and no group.
	deviceID := "55555555-5555-4555-8555-555555555555"
	resB, err := engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		BaseVersion: int64Ptr(1),
		Ops: BatchOps{
			Devices: &DeviceSet{Upsert: []Device{
				{ID: deviceID, Name: "Ceiling light", Meta: Meta{"roomId": roomID}},
			}},
		},
	})
	if err != nil {
		t.Fatalf("batch B error = %v", err)
	}
	if resB.NewVersion != 3 {
		t.Errorf("batch B newVersion = %d, want 3", resB.NewVersion)
	}
	if len(resB.Conflicts) != 1 || resB.Conflicts[0].Entity != "devices" || resB.Conflicts[0].ID != deviceID {
		t.Errorf("batch B conflicts = %+v, want one devices entry for %s", resB.Conflicts, deviceID)
	}

	// The device landed in an auto-created default group of R.
	delta, err := engine.Delta(ctx, testUser, p.ID, epoch())
	if err != nil {
		t.Fatalf("Delta() error = %v", err)
	}
	if len(delta.Rooms.Upsert) != 1 || len(delta.Devices.Upsert) != 1 {
		t.Fatalf("delta = %d rooms/%d devices, want 1/1", len(delta.Rooms.Upsert), len(delta.Devices.Upsert))
	}
	device := delta.Devices.Upsert[0]

	var groupRoom, groupName string
	err = db.QueryRow(`SELECT room_id, name FROM groups WHERE id = ?`, device.GroupID).Scan(&groupRoom, &groupName)
	if err != nil {
		t.Fatalf("reading default group: %v", err)
	}
	if groupRoom != roomID {
		t.Errorf("default group room = %s, want %s", groupRoom, roomID)
	}
	if groupName != DefaultGroupName {
		t.Errorf("default group name = %q, want %q", groupName, DefaultGroupName)
	}
}

func TestApplyBatch_ValidationRejectsBadIDs(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	p := createTestProject(t, NewSQLiteRepository(db), "Strict")

	_, err := engine.ApplyBatch(context.Background(), testUser, p.ID, &BatchRequest{
		Ops: BatchOps{Rooms: &RoomSet{Upsert: []Room{{ID: "not-a-uuid"}}}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("bad id error = %v, want ErrValidation", err)
	}
}
