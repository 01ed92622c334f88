package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tikzflow/internal/config"
	"tikzflow/internal/daemon"
	"tikzflow/internal/export"
	"tikzflow/internal/imagestore"
	"tikzflow/internal/ipc"
	"tikzflow/internal/jobs"
	"tikzflow/internal/logging"
	"tikzflow/internal/pipeline"
	"tikzflow/internal/templates"
	"tikzflow/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	server     *ipc.Server
	configPath string
	baseDir    string
	apiURL     string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	env := newConfigOnlyEnv(t)
	cfg := env.cfg

	logger := logging.NewNop()
	registry := jobs.NewMemoryRegistry()
	images := imagestore.New(cfg.Paths.UploadDir, cfg.MaxUploadBytes())
	orch := pipeline.NewFromConfig(cfg, pipeline.Deps{
		Registry:  registry,
		Images:    images,
		Converter: testsupport.Converter{},
		Renderer:  &testsupport.Renderer{T: t, Dir: cfg.Paths.OutputDir},
		Exporter:  export.New(cfg),
		Logger:    logger,
	})
	d, err := daemon.New(cfg, logger, daemon.Services{
		Registry: registry,
		Images:   images,
		Catalog:  templates.Default(),
		Pipeline: orch,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.DaemonSocketPath(), d, logger, func() {})
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env.daemon = d
	env.server = srv
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})
	return env
}

// newConfigOnlyEnv writes a config file without starting any daemon.
func newConfigOnlyEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("TIKZFLOW_API_TOKEN", "")

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(homeDir, ".config", "tikzflow", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

// start brings the daemon up through the CLI and records its API address.
func (e *cliTestEnv) start(t *testing.T) {
	t.Helper()
	out, _, err := runCLI(t, e, "start")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")
	addr := e.daemon.Addr()
	if addr == "" {
		t.Fatal("daemon API did not bind")
	}
	e.apiURL = "http://" + addr
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--config", env.configPath}
	if env.apiURL != "" {
		flags = append(flags, "--api-url", env.apiURL)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nupload_dir = %q\noutput_dir = %q\nexport_dir = %q\nstate_dir = %q\nlog_dir = %q\n\n"+
			"[api]\nbind = %q\n\n[registry]\nbackend = \"memory\"\n\n[conversion]\nprovider = \"template\"\n",
		cfg.Paths.UploadDir,
		cfg.Paths.OutputDir,
		cfg.Paths.ExportDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.API.Bind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
