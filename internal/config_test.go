package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/daewon/plantops/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
	if cfg.Domain != "daewon.local" {
		t.Errorf("domain = %q, want default", cfg.Domain)
	}
}

func TestAuthConfig_SessionModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "session", SessionTTL: time.Hour}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("session mode should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("session mode should be enabled")
	}
}

func TestAuthConfig_SessionModeShortTTL(t *testing.T) {
	cfg := AuthConfig{Mode: "session", SessionTTL: time.Second}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("tiny session ttl should fail")
	}
	if !strings.Contains(err.Error(), "session_ttl") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidModeOrDomain(t *testing.T) {
	if err := (&AuthConfig{Mode: "magic"}).Validate(); err == nil {
		t.Error("invalid mode should fail validation")
	}
	if err := (&AuthConfig{Mode: "disabled", Domain: "a@b"}).Validate(); err == nil {
		t.Error("domain with @ should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "session"
	cfg.Auth.SessionTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestFullConfig_SeedDirRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Seed.Dir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty seed dir should fail")
	}
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	t.Setenv("PLANTOPS_TEST_DB", "/tmp/from-env.db")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  log_level: debug
  http:
    port: 9090
sqlite:
  path: ${PLANTOPS_TEST_DB}
auth:
  mode: session
  session_ttl: 30m
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.SQLite.Path != "/tmp/from-env.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Auth.SessionTTL != 30*time.Minute || !cfg.Auth.AuthEnabled() {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	// Untouched sections keep their defaults.
	if cfg.Seed.Dir != "./seed" || !cfg.Seed.Watch {
		t.Errorf("seed = %+v", cfg.Seed)
	}
}
