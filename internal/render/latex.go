package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tikzflow/internal/diagram"
	"tikzflow/internal/fileutil"
	"tikzflow/internal/stage"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// LatexConfig names the binaries used to compile and convert markup.
type LatexConfig struct {
	OutputDir    string
	Engine       string
	Rasterizer   string
	SVGConverter string
	DPI          int
	Timeout      time.Duration
}

// LatexRenderer compiles markup into a standalone document with a LaTeX
// engine and converts the PDF into the requested format.
type LatexRenderer struct {
	cfg   LatexConfig
	run   commandRunner
	newID func() string
}

// NewLatexRenderer returns a renderer that shells out to the configured
// binaries.
func NewLatexRenderer(cfg LatexConfig) *LatexRenderer {
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &LatexRenderer{cfg: cfg, run: defaultCommandRunner, newID: func() string { return uuid.NewString() }}
}

// Render writes <id>.tex into the output directory, compiles it and returns
// the artifact for format.
func (r *LatexRenderer) Render(ctx context.Context, markup string, format stage.Format) (stage.RenderResult, error) {
	if err := diagram.ValidateTikZ(markup); err != nil {
		return stage.RenderResult{}, err
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	id := r.newID()
	dir := r.cfg.OutputDir
	texPath := filepath.Join(dir, id+".tex")
	pdfPath := filepath.Join(dir, id+".pdf")
	if err := fileutil.WriteFileAtomic(texPath, []byte(diagram.StandaloneDocument(markup)), 0o644); err != nil {
		return stage.RenderResult{}, fmt.Errorf("write tex: %w", err)
	}
	defer removeAux(dir, id)

	if err := r.run(ctx, r.cfg.Engine, "-interaction=nonstopmode", "-halt-on-error", "-output-directory", dir, texPath); err != nil {
		return stage.RenderResult{}, fmt.Errorf("compile %s: %w", filepath.Base(texPath), err)
	}
	if _, err := os.Stat(pdfPath); err != nil {
		return stage.RenderResult{}, fmt.Errorf("compile %s: no pdf produced", filepath.Base(texPath))
	}

	result := stage.RenderResult{ID: id, Format: format}
	switch format {
	case stage.FormatPDF:
		result.Path = pdfPath
		return result, nil
	case stage.FormatSVG:
		result.Path = filepath.Join(dir, id+".svg")
		err := r.run(ctx, r.cfg.SVGConverter, "-svg", pdfPath, result.Path)
		if err != nil {
			return stage.RenderResult{}, fmt.Errorf("convert to svg: %w", err)
		}
	default:
		result.Format = stage.FormatPNG
		result.Path = filepath.Join(dir, id+".png")
		err := r.run(ctx, r.cfg.Rasterizer, "-png", "-r", strconv.Itoa(r.cfg.DPI), "-singlefile", pdfPath, filepath.Join(dir, id))
		if err != nil {
			return stage.RenderResult{}, fmt.Errorf("rasterize: %w", err)
		}
	}
	if _, err := os.Stat(result.Path); err != nil {
		return stage.RenderResult{}, fmt.Errorf("%s output missing: %w", result.Format, err)
	}
	_ = os.Remove(pdfPath)
	return result, nil
}

// HealthCheck verifies the engine binary is on PATH.
func (r *LatexRenderer) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(r.cfg.Engine); err != nil {
		return stage.Unhealthy("latex", fmt.Sprintf("binary %q not found", r.cfg.Engine))
	}
	return stage.Healthy("latex")
}

func removeAux(dir, id string) {
	for _, ext := range []string{".aux", ".log"} {
		_ = os.Remove(filepath.Join(dir, id+ext))
	}
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%s: %w: %s", name, err, tail(string(output), 5))
	}
	return nil
}

// tail returns the last n non-empty lines of s, where LaTeX reports the
// failing line.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			kept = append([]string{line}, kept...)
		}
	}
	return strings.Join(kept, " | ")
}
