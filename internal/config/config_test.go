package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parleychat/parley/internal/testutil/testlog"
)

func TestLoadServerConfig(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "parleyd.toml")
	data := `name = "edge-chat"
chat_addr = ":9500"
admin_addr = ":9501"
db_path = "chat.db"
handshake_timeout_ms = 1500
sweep_interval_ms = 2000
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "edge-chat" || cfg.ChatAddr != ":9500" || cfg.AdminAddr != ":9501" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.DBPath != "chat.db" {
		t.Fatalf("db_path got=%q", cfg.DBPath)
	}
	if cfg.HandshakeTimeout() != 1500*time.Millisecond {
		t.Fatalf("handshake timeout got=%v", cfg.HandshakeTimeout())
	}
	if cfg.SweepInterval() != 2*time.Second {
		t.Fatalf("sweep interval got=%v", cfg.SweepInterval())
	}
}

func TestLoadServerConfigDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "parleyd.toml")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "parleyd" || cfg.ChatAddr != ":9400" || cfg.AdminAddr != ":9401" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.DBPath != "" {
		t.Fatalf("expected in-memory default, got db_path=%q", cfg.DBPath)
	}
}

func TestLoadServerConfigMissingFile(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadServerConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateServerConfigRejectsNegativeTimeout(t *testing.T) {
	testlog.Start(t)
	cfg := ServerConfig{Name: "parleyd", ChatAddr: ":9400", AdminAddr: ":9401", SweepIntervalMS: -1}
	if err := ValidateServerConfig(cfg); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "parleyd.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatal("expected error on existing file")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.Name != "parleyd" {
		t.Fatalf("template name got=%q", cfg.Name)
	}
}
