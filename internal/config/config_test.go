package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cryguy/sandbox/internal/core"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := cfg.Limits.Core()
	if c.Timeout != core.DefaultTimeout || c.MemoryCeiling != core.DefaultMemoryCeiling {
		t.Fatalf("Core() = %+v", c)
	}
	if cfg.Server.Addr != ":8080" || cfg.Log.Format != "text" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandbox.yaml")
	data := "limits:\n  timeout: 2s\n  memory: 64MiB\n  max_timers: 7\nserver:\n  addr: 127.0.0.1:9000\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SANDBOX_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := cfg.Limits.Core()
	if c.Timeout != 2*time.Second || c.MemoryCeiling != 64<<20 || c.MaxTimers != 7 {
		t.Fatalf("Core() = %+v", c)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Level = %q", cfg.Log.Level)
	}
	if _, err := cfg.Log.Logger(); err != nil {
		t.Fatalf("Logger: %v", err)
	}
}

func TestMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestBadMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandbox.yaml")
	if err := os.WriteFile(path, []byte("limits:\n  memory: lots\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestBadLogFormat(t *testing.T) {
	if _, err := (LogConfig{Level: "info", Format: "xml"}).Logger(); err == nil {
		t.Fatal("expected error")
	}
}
