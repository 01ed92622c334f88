package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for uploads, artifacts, and state.
type Paths struct {
	UploadDir    string `toml:"upload_dir"`
	OutputDir    string `toml:"output_dir"`
	ExportDir    string `toml:"export_dir"`
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
	TemplateFile string `toml:"template_file"`
}

// API contains HTTP surface configuration.
type API struct {
	Bind        string   `toml:"bind"`
	Token       string   `toml:"token"`
	CORSOrigins []string `toml:"cors_origins"`
	MaxUploadMB int      `toml:"max_upload_mb"`
}

// Registry selects the job registry backend.
type Registry struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// Conversion configures the image-to-TikZ provider.
type Conversion struct {
	Provider       string `toml:"provider"`
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Render configures LaTeX compilation and preview rasterization.
type Render struct {
	Engine              string `toml:"engine"`
	Rasterizer          string `toml:"rasterizer"`
	SVGConverter        string `toml:"svg_converter"`
	DPI                 int    `toml:"dpi"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PlaceholderFallback bool   `toml:"placeholder_fallback"`
}

// Export configures PDF document export.
type Export struct {
	DefaultTitle   string `toml:"default_title"`
	PageSize       string `toml:"page_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Templates configures the template catalog.
type Templates struct {
	Watch bool `toml:"watch"`
}

// Notifications configures ntfy push messages for finished jobs.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifyFailures        bool   `toml:"notify_failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for tikzflow.
//
// Configuration sections by subsystem:
//   - Paths: upload, artifact, export, state, and log directories
//   - API: bind address, bearer token, CORS, and upload limits
//   - Registry: in-memory or SQLite job registry
//   - Conversion: template or DaTikZ conversion provider
//   - Render: pdflatex and rasterizer settings
//   - Export: PDF export defaults
//   - Templates: catalog reload behaviour
//   - Notifications: ntfy topic for job outcome messages
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Registry      Registry      `toml:"registry"`
	Conversion    Conversion    `toml:"conversion"`
	Render        Render        `toml:"render"`
	Export        Export        `toml:"export"`
	Templates     Templates     `toml:"templates"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tikzflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadDir, c.Paths.OutputDir, c.Paths.ExportDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RegistryPath returns the SQLite database location for the job registry.
func (c *Config) RegistryPath() string {
	if strings.TrimSpace(c.Registry.Path) != "" {
		return c.Registry.Path
	}
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// DaemonLockPath returns the flock path guarding single daemon instances.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "tikzflowd.lock")
}

// DaemonPIDPath returns the PID file written by a running daemon.
func (c *Config) DaemonPIDPath() string {
	return filepath.Join(c.Paths.StateDir, "tikzflowd.pid")
}

// DaemonSocketPath returns the control socket served by a running daemon.
func (c *Config) DaemonSocketPath() string {
	return filepath.Join(c.Paths.StateDir, "tikzflowd.sock")
}

// ConversionTimeout returns the per-job conversion stage budget.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Conversion.TimeoutSeconds) * time.Second
}

// RenderTimeout returns the per-job render stage budget.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}

// ExportTimeout returns the budget for a single PDF export.
func (c *Config) ExportTimeout() time.Duration {
	return time.Duration(c.Export.TimeoutSeconds) * time.Second
}

// NotificationTimeout bounds a single ntfy request.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.API.MaxUploadMB) << 20
}

// APIBaseURL returns the URL clients use to reach the daemon.
func (c *Config) APIBaseURL() string {
	bind := strings.TrimSpace(c.API.Bind)
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/")
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

// LatexBinary returns the configured LaTeX engine executable.
func (c *Config) LatexBinary() string {
	return c.Render.Engine
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
