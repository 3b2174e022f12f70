package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  addr: ":9090"
auth:
  secret: "file-secret"
  access_ttl: 1h
rate_limit:
  enabled: false
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr not taken from file: %s", cfg.Server.Addr)
	}
	if cfg.Auth.AccessTTL != time.Hour {
		t.Fatalf("access ttl not taken from file: %v", cfg.Auth.AccessTTL)
	}
	// Untouched keys keep their defaults.
	if cfg.Auth.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("refresh ttl default lost: %v", cfg.Auth.RefreshTTL)
	}
	if cfg.RateLimit.Enabled {
		t.Fatal("rate limit should be disabled by file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  secret: file-secret\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SCHOOLBRIDGE_AUTH_SECRET", "env-secret")
	t.Setenv("SCHOOLBRIDGE_ADDR", ":7070")
	t.Setenv("SCHOOLBRIDGE_ACCESS_TTL", "30m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Secret != "env-secret" {
		t.Fatalf("env did not override secret: %s", cfg.Auth.Secret)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("env did not override addr: %s", cfg.Server.Addr)
	}
	if cfg.Auth.AccessTTL != 30*time.Minute {
		t.Fatalf("env did not override access ttl: %v", cfg.Auth.AccessTTL)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("SCHOOLBRIDGE_AUTH_SECRET", "")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "auth.secret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
