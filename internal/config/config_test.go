package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tikzflow/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("DATIKZ_API_KEY", "")
	t.Setenv("TIKZFLOW_API_TOKEN", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantUploads := filepath.Join(tempHome, ".local", "share", "tikzflow", "uploads")
	if cfg.Paths.UploadDir != wantUploads {
		t.Fatalf("unexpected upload dir: got %q want %q", cfg.Paths.UploadDir, wantUploads)
	}
	if cfg.API.Bind != "127.0.0.1:8000" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.API.MaxUploadMB != 10 {
		t.Fatalf("unexpected upload limit: %d", cfg.API.MaxUploadMB)
	}
	if cfg.MaxUploadBytes() != 10<<20 {
		t.Fatalf("unexpected upload limit bytes: %d", cfg.MaxUploadBytes())
	}
	if cfg.Registry.Backend != "memory" {
		t.Fatalf("unexpected registry backend: %q", cfg.Registry.Backend)
	}
	if cfg.Conversion.Provider != "template" {
		t.Fatalf("unexpected conversion provider: %q", cfg.Conversion.Provider)
	}
	if !cfg.Render.PlaceholderFallback {
		t.Fatal("expected placeholder fallback enabled by default")
	}
	if cfg.Export.DefaultTitle != "Physics Diagram" {
		t.Fatalf("unexpected export title: %q", cfg.Export.DefaultTitle)
	}
	if got := cfg.RegistryPath(); got != filepath.Join(cfg.Paths.StateDir, "jobs.db") {
		t.Fatalf("unexpected registry path: %q", got)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.UploadDir, cfg.Paths.OutputDir, cfg.Paths.ExportDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "tikzflow.toml")

	type payload struct {
		API struct {
			Bind        string   `toml:"bind"`
			CORSOrigins []string `toml:"cors_origins"`
		} `toml:"api"`
		Registry struct {
			Backend string `toml:"backend"`
		} `toml:"registry"`
		Render struct {
			DPI int `toml:"dpi"`
		} `toml:"render"`
		Export struct {
			PageSize string `toml:"page_size"`
		} `toml:"export"`
	}
	custom := payload{}
	custom.API.Bind = "0.0.0.0:9000"
	custom.API.CORSOrigins = []string{"http://a.test/", " http://a.test", "", "http://b.test"}
	custom.Registry.Backend = "SQLite"
	custom.Render.DPI = 150
	custom.Export.PageSize = "letter"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.API.Bind != "0.0.0.0:9000" {
		t.Fatalf("expected bind override, got %q", cfg.API.Bind)
	}
	if len(cfg.API.CORSOrigins) != 2 || cfg.API.CORSOrigins[0] != "http://a.test" || cfg.API.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected cors origins: %v", cfg.API.CORSOrigins)
	}
	if cfg.Registry.Backend != "sqlite" {
		t.Fatalf("expected sqlite backend, got %q", cfg.Registry.Backend)
	}
	if cfg.Render.DPI != 150 {
		t.Fatalf("expected dpi 150, got %d", cfg.Render.DPI)
	}
	if cfg.Render.TimeoutSeconds != config.Default().Render.TimeoutSeconds {
		t.Fatalf("expected default render timeout, got %d", cfg.Render.TimeoutSeconds)
	}
	if cfg.Export.PageSize != "Letter" {
		t.Fatalf("expected Letter page size, got %q", cfg.Export.PageSize)
	}
}

func TestEnvVarFallbacks(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "tikzflow.toml")
	contents := "[conversion]\nprovider = \"datikz\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DATIKZ_API_KEY", " env-datikz ")
	t.Setenv("TIKZFLOW_API_TOKEN", "env-token")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Conversion.APIKey != "env-datikz" {
		t.Errorf("expected DaTikZ key from env, got %q", cfg.Conversion.APIKey)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("expected API token from env, got %q", cfg.API.Token)
	}
}

func TestLoadRejectsDaTikZWithoutKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "tikzflow.toml")
	if err := os.WriteFile(configPath, []byte("[conversion]\nprovider = \"datikz\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DATIKZ_API_KEY", "")

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if !strings.Contains(err.Error(), "DATIKZ_API_KEY") {
		t.Fatalf("expected hint about env var, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.UploadDir, "tikzflow") {
		t.Fatalf("expected upload dir to contain tikzflow, got %q", cfg.Paths.UploadDir)
	}
	if cfg.Conversion.Provider != "template" {
		t.Fatalf("unexpected sample provider %q", cfg.Conversion.Provider)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Render.DPI = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive dpi")
	}

	cfg = config.Default()
	cfg.Registry.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown registry backend")
	}

	cfg = config.Default()
	cfg.Conversion.Provider = "magic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown conversion provider")
	}

	cfg = config.Default()
	cfg.Conversion.Provider = "datikz"
	cfg.Conversion.APIKey = "key"
	cfg.Conversion.APIURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relative api url")
	}

	cfg = config.Default()
	cfg.Export.PageSize = "A3"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported page size")
	}

	cfg = config.Default()
	cfg.Notifications.NtfyTopic = "ntfy.sh/tikzflow"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for ntfy topic without scheme")
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestAPIBaseURL(t *testing.T) {
	cfg := config.Default()
	if got := cfg.APIBaseURL(); got != "http://127.0.0.1:8000" {
		t.Fatalf("unexpected base url %q", got)
	}
	cfg.API.Bind = ":9001"
	if got := cfg.APIBaseURL(); got != "http://127.0.0.1:9001" {
		t.Fatalf("unexpected base url %q", got)
	}
}
