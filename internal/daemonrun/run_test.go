package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tikzflow/internal/logging"
	"tikzflow/internal/testsupport"
)

func TestBuildWiresDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSQLiteRegistry())
	cfg.Paths.TemplateFile = filepath.Join(testsupport.BaseDir(cfg), "templates.json")

	d, err := build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer d.Close()

	if _, err := os.Stat(cfg.Paths.TemplateFile); err != nil {
		t.Fatalf("expected seeded template catalog: %v", err)
	}
	status := d.Status(context.Background())
	if status.Running {
		t.Fatal("daemon should not be running before Start")
	}
	if status.Templates == 0 {
		t.Fatal("expected built-in templates to be loaded")
	}
	if status.RegistryPath != cfg.RegistryPath() {
		t.Fatalf("registry path = %q, want %q", status.RegistryPath, cfg.RegistryPath())
	}
}

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "tikzflow-a.log")
	second := filepath.Join(dir, "tikzflow-b.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "tikzflow.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "tikzflow-b.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tikzflowd.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) == "" || !strings.HasSuffix(string(data), "\n") {
		t.Fatalf("unexpected pid file content %q", data)
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}
