package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tikzflow/internal/config"
	"tikzflow/internal/convert"
	"tikzflow/internal/daemon"
	"tikzflow/internal/export"
	"tikzflow/internal/imagestore"
	"tikzflow/internal/ipc"
	"tikzflow/internal/jobs"
	"tikzflow/internal/logging"
	"tikzflow/internal/notifications"
	"tikzflow/internal/pipeline"
	"tikzflow/internal/render"
	"tikzflow/internal/templates"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the tikzflow daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("tikzflow-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	var debugLogPath string
	if opts.Diagnostic {
		debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
		if err := os.MkdirAll(debugDir, 0o755); err != nil {
			return fmt.Errorf("create debug log directory: %w", err)
		}
		debugLogPath = filepath.Join(debugDir, fmt.Sprintf("tikzflow-%s.log", runID))
		debugHandler, debugErr := logging.NewHandler(logging.Options{
			Level:       "debug",
			Format:      "json",
			OutputPaths: []string{debugLogPath},
			Development: true,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = logging.TeeLogger(logger, debugHandler)
			if err := ensureCurrentLogPointer(debugDir, debugLogPath); err != nil {
				fmt.Fprintf(os.Stderr, "warn: unable to update debug/tikzflow.log link: %v\n", err)
			}
		}
		logger.Info("diagnostic mode enabled",
			logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
			logging.String("debug_log_path", debugLogPath),
		)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update tikzflow.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "tikzflow-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "tikzflow-*.log", Exclude: []string{debugLogPath}},
	)
	pidPath := cfg.DaemonPIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := build(cfg, logger)
	if err != nil {
		logger.Error("daemon wiring failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_wiring_failed"),
			logging.String(logging.FieldErrorHint, "check registry path and template catalog"),
		)
		return err
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.DaemonSocketPath(), d, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check api.bind and the daemon lock file"),
			logging.String(logging.FieldImpact, "conversion requests will not be accepted"),
		)
	}

	<-signalCtx.Done()
	logger.Info("tikzflow daemon shutting down")
	return nil
}

// build assembles the registry, providers and pipeline behind a daemon.
func build(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	registry, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job registry: %w", err)
	}
	catalog, err := templates.Load(cfg.Paths.TemplateFile, logging.NewComponentLogger(logger, "templates"))
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}
	converter, err := convert.New(cfg, catalog)
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("configure converter: %w", err)
	}
	images := imagestore.New(cfg.Paths.UploadDir, cfg.MaxUploadBytes())
	orchestrator := pipeline.NewFromConfig(cfg, pipeline.Deps{
		Registry:  registry,
		Images:    images,
		Converter: converter,
		Renderer:  render.New(cfg, logger),
		Exporter:  export.New(cfg),
		Notifier:  notifications.NewService(cfg),
		Logger:    logger,
	})
	d, err := daemon.New(cfg, logger, daemon.Services{
		Registry: registry,
		Images:   images,
		Catalog:  catalog,
		Pipeline: orchestrator,
	})
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "tikzflow.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	latex := cfg.LatexBinary()
	rasterizer := strings.TrimSpace(cfg.Render.Rasterizer)
	svg := strings.TrimSpace(cfg.Render.SVGConverter)
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("conversion_provider", cfg.Conversion.Provider),
		logging.Bool("datikz_key_present", strings.TrimSpace(cfg.Conversion.APIKey) != ""),
		logging.Bool("latex_available", binaryAvailable(latex)),
		logging.String("latex_binary", latex),
		logging.Bool("rasterizer_available", binaryAvailable(rasterizer)),
		logging.String("rasterizer_binary", rasterizer),
		logging.Bool("svg_converter_available", binaryAvailable(svg)),
		logging.String("svg_converter_binary", svg),
		logging.Bool("placeholder_fallback", cfg.Render.PlaceholderFallback),
		logging.String("registry_backend", cfg.Registry.Backend),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
