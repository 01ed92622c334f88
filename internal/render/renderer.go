package render

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"

	"tikzflow/internal/config"
	"tikzflow/internal/logging"
	"tikzflow/internal/stage"
)

// Fallback renders with primary and switches to the placeholder when the
// primary's toolchain is not installed. Compile errors are returned as-is.
type Fallback struct {
	primary     stage.Renderer
	placeholder stage.Renderer
	logger      *slog.Logger
}

// New builds the renderer described by cfg.Render.
func New(cfg *config.Config, logger *slog.Logger) stage.Renderer {
	latex := NewLatexRenderer(LatexConfig{
		OutputDir:    cfg.Paths.OutputDir,
		Engine:       cfg.LatexBinary(),
		Rasterizer:   cfg.Render.Rasterizer,
		SVGConverter: cfg.Render.SVGConverter,
		DPI:          cfg.Render.DPI,
		Timeout:      cfg.RenderTimeout(),
	})
	if !cfg.Render.PlaceholderFallback {
		return latex
	}
	return &Fallback{
		primary:     latex,
		placeholder: NewPlaceholder(cfg.Paths.OutputDir),
		logger:      logging.NewComponentLogger(logger, "render"),
	}
}

func (f *Fallback) Render(ctx context.Context, markup string, format stage.Format) (stage.RenderResult, error) {
	result, err := f.primary.Render(ctx, markup, format)
	if err == nil || !errors.Is(err, exec.ErrNotFound) {
		return result, err
	}
	f.logger.Debug("latex toolchain unavailable; rendering placeholder", logging.Error(err))
	return f.placeholder.Render(ctx, markup, format)
}

// HealthCheck stays ready while the placeholder can cover for a missing
// toolchain, noting the degradation in Detail.
func (f *Fallback) HealthCheck(ctx context.Context) stage.Health {
	h := stage.Check(ctx, "render", f.primary)
	if h.Ready {
		return h
	}
	return stage.Health{Name: h.Name, Ready: true, Detail: h.Detail + "; placeholder previews in use"}
}
