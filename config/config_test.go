package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points every lookup at empty temp directories.
func isolate(t *testing.T) (configDir, dataDir string) {
	t.Helper()
	configDir = t.TempDir()
	dataDir = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	t.Setenv("XDG_DATA_HOME", dataDir)
	t.Setenv("TASKBOARD_CONFIG", "")
	for _, name := range []string{"DEBUG", "REDIS_CONNECTION_STRING", "STORAGE_CONNECTION_STRING", "DEDUPER_TTL"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	return configDir, dataDir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	_, dataDir := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Fatalf("unexpected backend %q", cfg.Storage.Backend)
	}
	if want := filepath.Join(dataDir, AppName, "taskboard.db"); cfg.Storage.SQLite.Path != want {
		t.Fatalf("sqlite path = %q, want %q", cfg.Storage.SQLite.Path, want)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Dedupe.TTL != 24*time.Hour || cfg.Debug {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Auth.Enabled() {
		t.Fatalf("auth must be disabled by default")
	}
}

func TestLoadDefaultFileAndEnvOverride(t *testing.T) {
	configDir, _ := isolate(t)
	writeConfig(t, filepath.Join(configDir, AppName), `
http:
  addr: ":9000"
storage:
  backend: redis
  redis:
    url: redis://localhost:6379/0
notify:
  redis:
    channel: taskboard:events
dedupe:
  ttl: 2h
`)
	t.Setenv("TASKBOARD_HTTP_ADDR", ":9090")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("env must override file, got %q", cfg.HTTP.Addr)
	}
	if cfg.Storage.Backend != BackendRedis || cfg.Storage.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Storage.Redis.Prefix != "taskboard:" {
		t.Fatalf("default prefix lost: %q", cfg.Storage.Redis.Prefix)
	}
	if cfg.Notify.Redis.Channel != "taskboard:events" || cfg.Dedupe.TTL != 2*time.Hour {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadLegacyEnv(t *testing.T) {
	isolate(t)
	t.Setenv("DEBUG", "true")
	t.Setenv("TASKBOARD_STORAGE_BACKEND", "tables")
	t.Setenv("STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("DEDUPER_TTL", "30m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Debug {
		t.Fatalf("DEBUG not honoured")
	}
	if cfg.Storage.Tables.ConnectionString != "UseDevelopmentStorage=true" {
		t.Fatalf("legacy connection string not honoured: %+v", cfg.Storage.Tables)
	}
	if cfg.Dedupe.TTL != 30*time.Minute {
		t.Fatalf("legacy ttl not honoured: %v", cfg.Dedupe.TTL)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), "storage:\n  backend: memory\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("unexpected backend %q", cfg.Storage.Backend)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	isolate(t)
	t.Setenv("TASKBOARD_STORAGE_BACKEND", "floppy")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Storage: StorageConfig{Backend: BackendMemory},
			Dedupe:  DedupeConfig{TTL: time.Hour},
		}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "memory", mutate: func(*Config) {}},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Backend = BackendSQLite }, wantErr: true},
		{name: "redis without url", mutate: func(c *Config) { c.Storage.Backend = BackendRedis }, wantErr: true},
		{name: "tables without connection", mutate: func(c *Config) { c.Storage.Backend = BackendTables; c.Storage.Tables.Table = "t" }, wantErr: true},
		{name: "queue without connection", mutate: func(c *Config) { c.Notify.Queue.Name = "events" }, wantErr: true},
		{name: "redis channel without redis", mutate: func(c *Config) { c.Notify.Redis.Channel = "events" }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.Dedupe.TTL = 0 }, wantErr: true},
		{name: "secret and jwks", mutate: func(c *Config) { c.Auth.Secret = "s"; c.Auth.JWKSURL = "https://example/jwks" }, wantErr: true},
		{name: "secret only", mutate: func(c *Config) { c.Auth.Secret = "s" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
