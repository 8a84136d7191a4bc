package profile

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT 'Volt User',
			email TEXT,
			avatar_url TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	return db
}

func strPtr(s string) *string { return &s }

func TestRepository_Get_UnknownUserReturnsDefaults(t *testing.T) {
	repo := NewRepository(testDB(t))

	p, err := repo.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if p.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", p.UserID, "user-1")
	}
	if p.DisplayName != DefaultDisplayName {
		t.Errorf("DisplayName = %q, want %q", p.DisplayName, DefaultDisplayName)
	}
	if p.Email != "" || p.AvatarURL != "" {
		t.Error("default profile should have empty email and avatar")
	}
}

func TestRepository_Upsert_InsertsOnFirstWrite(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	p, err := repo.Upsert(ctx, "user-1", Update{
		DisplayName: strPtr("Anna"),
		Email:       strPtr("anna@example.com"),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if p.DisplayName != "Anna" {
		t.Errorf("DisplayName = %q, want %q", p.DisplayName, "Anna")
	}
	if p.Email != "anna@example.com" {
		t.Errorf("Email = %q", p.Email)
	}

	got, err := repo.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DisplayName != "Anna" {
		t.Errorf("stored DisplayName = %q, want %q", got.DisplayName, "Anna")
	}
}

func TestRepository_Upsert_FirstWriteWithoutNameUsesDefault(t *testing.T) {
	repo := NewRepository(testDB(t))

	p, err := repo.Upsert(context.Background(), "user-1", Update{
		AvatarURL: strPtr("https://cdn.example.com/a.png"),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if p.DisplayName != DefaultDisplayName {
		t.Errorf("DisplayName = %q, want %q", p.DisplayName, DefaultDisplayName)
	}
	if p.AvatarURL != "https://cdn.example.com/a.png" {
		t.Errorf("AvatarURL = %q", p.AvatarURL)
	}
}

func TestRepository_Upsert_NilFieldsKeepStoredValues(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, "user-1", Update{
		DisplayName: strPtr("Anna"),
		Email:       strPtr("anna@example.com"),
		AvatarURL:   strPtr("https://cdn.example.com/a.png"),
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	p, err := repo.Upsert(ctx, "user-1", Update{Email: strPtr("anna@volthome.app")})
	if err != nil {
		t.Fatalf("Upsert() second error = %v", err)
	}

	if p.DisplayName != "Anna" {
		t.Errorf("DisplayName = %q, want unchanged %q", p.DisplayName, "Anna")
	}
	if p.Email != "anna@volthome.app" {
		t.Errorf("Email = %q, want updated", p.Email)
	}
	if p.AvatarURL != "https://cdn.example.com/a.png" {
		t.Errorf("AvatarURL = %q, want unchanged", p.AvatarURL)
	}
}
