package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"tikzflow/internal/config"
	"tikzflow/internal/jobs"
	"tikzflow/internal/stage"
)

// SampleMarkup is a minimal markup body that passes structural validation.
const SampleMarkup = "\\begin{tikzpicture}\n\\draw[->] (0,0) -- (2,0) node[right] {$F$};\n\\end{tikzpicture}"

// MustOpenRegistry opens the registry selected by cfg and registers cleanup.
func MustOpenRegistry(t testing.TB, cfg *config.Config) jobs.Registry {
	t.Helper()

	registry, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		registry.Close()
	})
	return registry
}

// Converter is a stage.Converter driven by a func hook. A nil hook returns
// SampleMarkup.
type Converter struct {
	Fn func(ctx context.Context, req stage.ConvertRequest) (string, error)
}

// Convert implements stage.Converter.
func (c Converter) Convert(ctx context.Context, req stage.ConvertRequest) (string, error) {
	if c.Fn == nil {
		return SampleMarkup, nil
	}
	return c.Fn(ctx, req)
}

// Renderer writes a real PNG into Dir for every render.
type Renderer struct {
	T     testing.TB
	Dir   string
	Err   error
	count atomic.Int64
}

// Render implements stage.Renderer.
func (r *Renderer) Render(ctx context.Context, _ string, format stage.Format) (stage.RenderResult, error) {
	if err := ctx.Err(); err != nil {
		return stage.RenderResult{}, err
	}
	if r.Err != nil {
		return stage.RenderResult{}, r.Err
	}
	id := fmt.Sprintf("render-%d", r.count.Add(1))
	path := WritePNG(r.T, filepath.Join(r.Dir, id+"."+string(format)))
	return stage.RenderResult{ID: id, Path: path, Format: format}, nil
}
