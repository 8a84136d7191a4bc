package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/volthome-test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: 9090
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/volthome-test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/volthome-test.db")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	// Defaults survive partial files.
	if cfg.API.Timeouts.Read != 30 {
		t.Errorf("API.Timeouts.Read = %d, want default 30", cfg.API.Timeouts.Read)
	}
	if !cfg.Security.RateLimit.Enabled {
		t.Error("Security.RateLimit.Enabled = false, want default true")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/volthome-test.db"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected validation error for missing JWT secret, got nil")
	}
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/volthome-test.db"
security:
  jwt:
    secret: "too-short"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected validation error for short JWT secret, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/from-file.db"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	t.Setenv("VOLTHOME_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("VOLTHOME_API_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("API.Port = %d, want env override 7070", cfg.API.Port)
	}
}

func TestValidate_BillingRequiresToken(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/volthome-test.db"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
billing:
  enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected validation error for billing without token, got nil")
	}
}
