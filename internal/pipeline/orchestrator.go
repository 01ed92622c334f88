package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tikzflow/internal/config"
	"tikzflow/internal/jobs"
	"tikzflow/internal/logging"
	"tikzflow/internal/notifications"
	"tikzflow/internal/stage"
)

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Registry  jobs.Registry
	Images    stage.ImageResolver
	Converter stage.Converter
	Renderer  stage.Renderer
	Exporter  stage.Exporter
	Notifier  notifications.Service
	Logger    *slog.Logger
}

// Timeouts bound each provider call. Zero disables the bound.
type Timeouts struct {
	Convert time.Duration
	Render  time.Duration
	Export  time.Duration
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithTimeouts sets per-stage provider deadlines.
func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) { o.timeouts = t }
}

// WithOutputDir sets the directory artifact refs are resolved against.
func WithOutputDir(dir string) Option {
	return func(o *Orchestrator) { o.outputDir = dir }
}

// WithPreviewFormat overrides the format requested for job previews.
func WithPreviewFormat(format stage.Format) Option {
	return func(o *Orchestrator) { o.previewFormat = format }
}

// Orchestrator coordinates submissions, background runs and exports.
type Orchestrator struct {
	registry  jobs.Registry
	images    stage.ImageResolver
	converter stage.Converter
	renderer  stage.Renderer
	exporter  stage.Exporter
	notifier  notifications.Service
	logger    *slog.Logger

	timeouts      Timeouts
	outputDir     string
	previewFormat stage.Format

	submitMu sync.Mutex

	mu       sync.RWMutex
	running  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight int
	lastErr  error
	lastJob  *jobs.Job

	staleUpdates atomic.Uint64
}

// New constructs an orchestrator. Call Start before submitting.
func New(deps Deps, opts ...Option) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		registry:      deps.Registry,
		images:        deps.Images,
		converter:     deps.Converter,
		renderer:      deps.Renderer,
		exporter:      deps.Exporter,
		notifier:      deps.Notifier,
		logger:        logging.NewComponentLogger(logger, "pipeline"),
		previewFormat: stage.FormatPNG,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewFromConfig applies the timeouts and output directory from cfg.
func NewFromConfig(cfg *config.Config, deps Deps) *Orchestrator {
	return New(deps,
		WithTimeouts(Timeouts{
			Convert: cfg.ConversionTimeout(),
			Render:  cfg.RenderTimeout(),
			Export:  cfg.ExportTimeout(),
		}),
		WithOutputDir(cfg.Paths.OutputDir),
	)
}

// Start enables submissions. Runs inherit ctx and are cancelled by Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return errors.New("orchestrator already running")
	}
	if o.registry == nil || o.images == nil || o.converter == nil || o.renderer == nil {
		return errors.New("orchestrator dependencies not configured")
	}
	o.runCtx, o.cancel = context.WithCancel(ctx)
	o.running = true
	return nil
}

// Stop rejects new submissions, cancels in-flight runs and waits for them
// to record their outcome.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

// Wait blocks until every scheduled run has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// acquire reserves a run slot and returns the context runs execute under.
func (o *Orchestrator) acquire() (context.Context, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return nil, false
	}
	o.wg.Add(1)
	o.inFlight++
	return o.runCtx, true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.inFlight--
	o.mu.Unlock()
	o.wg.Done()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
