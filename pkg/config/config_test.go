package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.Database.Driver)
	}
	if cfg.Tenant.DefaultID != "default" {
		t.Fatalf("expected default tenant id, got %q", cfg.Tenant.DefaultID)
	}
	if cfg.Routes.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", cfg.Routes.SchemaVersion)
	}
	if cfg.SSE.ActivityMaxHistory != 200 {
		t.Fatalf("expected activity history cap 200, got %d", cfg.SSE.ActivityMaxHistory)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
tenant:
  default_id: acme
routes:
  schema_version: 3
  allowed_uri_schemes:
    - direct
    - https
sse:
  activity_max_history: 50
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Tenant.DefaultID != "acme" {
		t.Fatalf("expected acme tenant, got %q", cfg.Tenant.DefaultID)
	}
	if cfg.Routes.SchemaVersion != 3 {
		t.Fatalf("expected schema version 3, got %d", cfg.Routes.SchemaVersion)
	}
	if len(cfg.Routes.AllowedURISchemes) != 2 {
		t.Fatalf("expected 2 allowed schemes, got %v", cfg.Routes.AllowedURISchemes)
	}
	if cfg.SSE.ActivityMaxHistory != 50 {
		t.Fatalf("expected overridden history cap, got %d", cfg.SSE.ActivityMaxHistory)
	}
	// Logging was not present in the file, default must survive.
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default logging level to survive, got %q", cfg.Logging.Level)
	}
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile on missing file: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected defaults preserved, got %q", cfg.Database.Driver)
	}
}

func TestDatabaseConnectionString(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "routeforge", SSLMode: "disable"}
	got := cfg.ConnectionString()
	want := "host=db port=5432 user=u password=p dbname=routeforge sslmode=disable"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDatabaseConnectionStringPrefersDSN(t *testing.T) {
	cfg := DatabaseConfig{DSN: "postgres://example", Host: "ignored"}
	if got := cfg.ConnectionString(); got != "postgres://example" {
		t.Fatalf("expected DSN to take precedence, got %q", got)
	}
}

func TestApplyDatabaseURLOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override")
	cfg := New()
	applyDatabaseURLOverride(cfg)
	if cfg.Database.DSN != "postgres://override" {
		t.Fatalf("expected DATABASE_URL override, got %q", cfg.Database.DSN)
	}
}
