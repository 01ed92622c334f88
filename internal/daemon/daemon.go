package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"tikzflow/internal/config"
	"tikzflow/internal/deps"
	"tikzflow/internal/imagestore"
	"tikzflow/internal/jobs"
	"tikzflow/internal/logging"
	"tikzflow/internal/pipeline"
	"tikzflow/internal/preflight"
	"tikzflow/internal/templates"
)

// Services groups the collaborators the daemon serves over HTTP.
type Services struct {
	Registry jobs.Registry
	Images   *imagestore.Store
	Catalog  *templates.Catalog
	Pipeline *pipeline.Orchestrator
}

// Daemon coordinates the background pipeline and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry jobs.Registry
	images   *imagestore.Store
	catalog  *templates.Catalog
	pipeline *pipeline.Orchestrator
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	watchWG sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	LockFilePath    string
	RegistryBackend string
	RegistryPath    string
	Templates       int
	Pipeline        pipeline.StatusSummary
	Dependencies    []deps.Status
	Preflight       []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, svc Services) (*Daemon, error) {
	if cfg == nil || logger == nil || svc.Registry == nil || svc.Images == nil || svc.Catalog == nil || svc.Pipeline == nil {
		return nil, errors.New("daemon requires config, logger, registry, image store, template catalog, and pipeline")
	}

	lockPath := cfg.DaemonLockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		registry: svc.Registry,
		images:   svc.Images,
		catalog:  svc.Catalog,
		pipeline: svc.Pipeline,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the pipeline and begins serving HTTP.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tikzflow daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.pipeline.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.pipeline.Stop()
		d.abortStart()
		return err
	}
	if d.cfg.Templates.Watch && d.catalog.Path() != "" {
		d.watchWG.Add(1)
		go d.watchTemplates(d.ctx)
	}

	d.running.Store(true)
	d.logger.Info("tikzflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

func (d *Daemon) watchTemplates(ctx context.Context) {
	defer d.watchWG.Done()
	if err := d.catalog.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(d.logger, "template watcher stopped", "template_watch_failed",
			logging.Error(err),
			logging.String("path", d.catalog.Path()),
		)
	}
}

// Stop stops HTTP serving and background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pipeline.Stop()
	d.watchWG.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("tikzflow daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.registry != nil {
		return d.registry.Close()
	}
	return nil
}

// ReloadTemplates re-reads the template catalog file and returns the number
// of templates now loaded.
func (d *Daemon) ReloadTemplates() (int, error) {
	if err := d.catalog.Reload(); err != nil {
		return len(d.catalog.List()), err
	}
	count := len(d.catalog.List())
	d.logger.Info("template catalog reloaded",
		logging.Int("template_count", count),
		logging.String(logging.FieldEventType, "templates_reloaded"),
	)
	return count, nil
}

// Handler returns the HTTP handler serving the API.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler()
}

// Addr returns the address the API listens on once started.
func (d *Daemon) Addr() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		LockFilePath:    d.lockPath,
		RegistryBackend: d.cfg.Registry.Backend,
		Templates:       len(d.catalog.List()),
		Pipeline:        d.pipeline.Status(ctx),
		Dependencies:    preflight.CheckSystemDeps(d.cfg),
		Preflight:       preflight.RunAll(ctx, d.cfg),
	}
	if d.cfg.Registry.Backend == config.RegistryBackendSQLite {
		status.RegistryPath = d.cfg.RegistryPath()
	}
	return status
}
