package project

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

// epoch returns the zero-point used by clients on first sync.
func epoch() time.Time {
	return time.Unix(0, 0).UTC()
}

func TestDelta_PartitionsByTombstone(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Partition")

	keepID := "33333333-3333-4333-8333-333333333333"
	goneID := "44444444-4444-4444-8444-444444444444"
	_, err := engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		Ops: BatchOps{Rooms: &RoomSet{Upsert: []Room{
			{ID: keepID, Name: strPtr("Kitchen")},
			{ID: goneID, Name: strPtr("Pantry")},
		}}},
	})
	if err != nil {
		t.Fatalf("seed batch error = %v", err)
	}
	_, err = engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		Ops: BatchOps{Rooms: &RoomSet{Delete: []string{goneID}}},
	})
	if err != nil {
		t.Fatalf("delete batch error = %v", err)
	}

	delta, err := engine.Delta(ctx, testUser, p.ID, epoch())
	if err != nil {
		t.Fatalf("Delta() error = %v", err)
	}
	if len(delta.Rooms.Upsert) != 1 || delta.Rooms.Upsert[0].ID != keepID {
		t.Errorf("rooms.upsert = %+v, want only %s", delta.Rooms.Upsert, keepID)
	}
	if len(delta.Rooms.Delete) != 1 || delta.Rooms.Delete[0] != goneID {
		t.Errorf("rooms.delete = %v, want only %s", delta.Rooms.Delete, goneID)
	}
}

func TestDelta_Pure(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Pure")

	applyRooms(t, engine, p.ID, Room{Name: strPtr("Kitchen")}, Room{Name: strPtr("Hall")})

	since := time.Now().Add(-time.Hour)
	first, err := engine.Delta(ctx, testUser, p.ID, since)
	if err != nil {
		t.Fatalf("first Delta() error = %v", err)
	}
	second, err := engine.Delta(ctx, testUser, p.ID, since)
	if err != nil {
		t.Fatalf("second Delta() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated Delta() with no intervening writes returned different results")
	}
}

func TestDelta_InclusiveBoundary(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Boundary")

	applyRooms(t, engine, p.ID, Room{Name: strPtr("Kitchen")})

	// Read back the exact stored instant and poll with it: the row must
	// still be returned.
	var stored string
	if err := db.QueryRow(`SELECT updated_at FROM rooms WHERE project_id = ?`, p.ID).Scan(&stored); err != nil {
		t.Fatalf("reading updated_at: %v", err)
	}
	since := ParseStoredTime(stored)
	if since.IsZero() {
		t.Fatalf("stored timestamp %q did not parse", stored)
	}

	delta, err := engine.Delta(ctx, testUser, p.ID, since)
	if err != nil {
		t.Fatalf("Delta() error = %v", err)
	}
	if len(delta.Rooms.Upsert) != 1 {
		t.Errorf("row written at exactly since was omitted; boundary must be inclusive")
	}
}

func TestDelta_SinceExcludesOlderRows(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Window")

	applyRooms(t, engine, p.ID, Room{Name: strPtr("Old room")})

	delta, err := engine.Delta(ctx, testUser, p.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Delta() error = %v", err)
	}
	if len(delta.Rooms.Upsert) != 0 || len(delta.Rooms.Delete) != 0 {
		t.Errorf("future since returned rows: %+v", delta.Rooms)
	}
}

func TestDelta_SharedBatchTimestamp(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	p := createTestProject(t, NewSQLiteRepository(db), "Torn")

	roomID := "33333333-3333-4333-8333-333333333333"
	_, err := engine.ApplyBatch(ctx, testUser, p.ID, &BatchRequest{
		Ops: BatchOps{
			Rooms:  &RoomSet{Upsert: []Room{{ID: roomID, Name: strPtr("Kitchen")}}},
			Groups: &GroupSet{Upsert: []Group{{RoomID: roomID, Name: strPtr("Lights")}}},
		},
	})
	if err != nil {
		t.Fatalf("ApplyBatch() error = %v", err)
	}

	// Every row written by one batch carries the same instant, so a delta
	// boundary can never split a batch.
	var distinct int
	err = db.QueryRow(`SELECT COUNT(DISTINCT updated_at) FROM (
			SELECT updated_at FROM rooms WHERE project_id = ?
			UNION ALL
			SELECT updated_at FROM groups WHERE project_id = ?
		)`, p.ID, p.ID).Scan(&distinct)
	if err != nil {
		t.Fatalf("counting timestamps: %v", err)
	}
	if distinct != 1 {
		t.Errorf("batch wrote %d distinct timestamps, want 1", distinct)
	}
}

func TestDelta_NotFound(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	p := createTestProject(t, NewSQLiteRepository(db), "Private")

	_, err := engine.Delta(context.Background(), "22222222-2222-4222-8222-222222222222", p.ID, epoch())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Delta() for foreign user error = %v, want ErrNotFound", err)
	}
}
