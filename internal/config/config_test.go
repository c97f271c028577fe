package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRACKER_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.toml")
	body := `addr = ":9090"
db_path = "/tmp/x.db"
log_format = "text"
sweep_interval = "5m"
due_soon_window = "2h"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRACKER_ADDR", ":7070")
	t.Setenv("TRACKER_PUBLISH_BUFFER", "32")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.DBPath != "/tmp/x.db" || cfg.LogFormat != "text" || cfg.PublishBuffer != 32 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.SweepInterval.Std() != 5*time.Minute || cfg.DueSoonWindow.Std() != 2*time.Hour {
		t.Fatalf("durations not parsed: %+v", cfg)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("sweep_interval = \"soon\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected parse error")
	}

	invalid := filepath.Join(dir, "invalid.toml")
	if err := os.WriteFile(invalid, []byte("log_format = \"xml\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(invalid); err == nil || !strings.Contains(err.Error(), "log_format") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEncode(t *testing.T) {
	b, err := Default().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(b), "sweep_interval = '1m0s'") && !strings.Contains(string(b), `sweep_interval = "1m0s"`) {
		t.Fatalf("duration not encoded as text: %s", b)
	}
}
