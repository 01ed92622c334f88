package render

import (
	"context"
	"errors"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"tikzflow/internal/logging"
	"tikzflow/internal/services"
	"tikzflow/internal/stage"
)

const markup = "\\begin{tikzpicture}\\draw (0,0) -- (1,1);\\end{tikzpicture}"

type call struct {
	name string
	args []string
}

// fakeToolchain records invocations and creates the files each tool would.
func fakeToolchain(t *testing.T, calls *[]call) commandRunner {
	t.Helper()
	return func(_ context.Context, name string, args ...string) error {
		*calls = append(*calls, call{name: name, args: args})
		switch name {
		case "pdflatex":
			tex := args[len(args)-1]
			if !strings.Contains(mustRead(t, tex), `\usetikzlibrary{arrows.meta,positioning,shapes,decorations.markings}`) {
				t.Errorf("standalone preamble missing in %s", tex)
			}
			base := strings.TrimSuffix(tex, ".tex")
			writeFile(t, base+".pdf")
			writeFile(t, base+".aux")
			writeFile(t, base+".log")
		case "pdftoppm":
			writeFile(t, args[len(args)-1]+".png")
		case "pdftocairo":
			writeFile(t, args[len(args)-1])
		}
		return nil
	}
}

func newTestRenderer(t *testing.T, runner commandRunner) (*LatexRenderer, string) {
	dir := t.TempDir()
	r := NewLatexRenderer(LatexConfig{OutputDir: dir, Engine: "pdflatex", Rasterizer: "pdftoppm", SVGConverter: "pdftocairo", DPI: 150})
	r.run = runner
	r.newID = func() string { return "render-1" }
	return r, dir
}

func TestLatexRendererPNG(t *testing.T) {
	var calls []call
	r, dir := newTestRenderer(t, fakeToolchain(t, &calls))
	result, err := r.Render(context.Background(), markup, stage.FormatPNG)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if result.Path != filepath.Join(dir, "render-1.png") || result.Format != stage.FormatPNG || result.Placeholder {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(calls) != 2 || calls[0].name != "pdflatex" || calls[1].name != "pdftoppm" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if got := strings.Join(calls[0].args[:4], " "); got != "-interaction=nonstopmode -halt-on-error -output-directory "+dir {
		t.Fatalf("unexpected engine args %q", got)
	}
	if got := strings.Join(calls[1].args[:4], " "); got != "-png -r 150 -singlefile" {
		t.Fatalf("unexpected rasterizer args %q", got)
	}
	for _, leftover := range []string{"render-1.aux", "render-1.log", "render-1.pdf"} {
		if _, err := os.Stat(filepath.Join(dir, leftover)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be cleaned up", leftover)
		}
	}
}

func TestLatexRendererPDFAndSVG(t *testing.T) {
	var calls []call
	r, dir := newTestRenderer(t, fakeToolchain(t, &calls))
	result, err := r.Render(context.Background(), markup, stage.FormatPDF)
	if err != nil || result.Path != filepath.Join(dir, "render-1.pdf") {
		t.Fatalf("pdf render: %+v err=%v", result, err)
	}
	result, err = r.Render(context.Background(), markup, stage.FormatSVG)
	if err != nil || result.Path != filepath.Join(dir, "render-1.svg") {
		t.Fatalf("svg render: %+v err=%v", result, err)
	}
	if calls[len(calls)-1].name != "pdftocairo" {
		t.Fatalf("expected svg conversion, got %+v", calls)
	}
}

func TestLatexRendererCompileFailure(t *testing.T) {
	r, _ := newTestRenderer(t, func(context.Context, string, ...string) error {
		return errors.New("pdflatex: exit status 1: ! Undefined control sequence.")
	})
	_, err := r.Render(context.Background(), markup, stage.FormatPNG)
	if err == nil || !strings.Contains(err.Error(), "Undefined control sequence") {
		t.Fatalf("expected compile error, got %v", err)
	}
}

func TestLatexRendererRejectsInvalidMarkup(t *testing.T) {
	r, _ := newTestRenderer(t, func(context.Context, string, ...string) error {
		t.Fatal("runner must not be called")
		return nil
	})
	if _, err := r.Render(context.Background(), "no picture", stage.FormatPNG); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceholderPNG(t *testing.T) {
	p := NewPlaceholder(t.TempDir())
	result, err := p.Render(context.Background(), markup, stage.FormatSVG)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !result.Placeholder || result.Format != stage.FormatPNG {
		t.Fatalf("unexpected result %+v", result)
	}
	f, err := os.Open(result.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 800 || b.Dy() != 600 {
		t.Fatalf("unexpected size %v", b)
	}
	if r, g, b, _ := img.At(10, 300).RGBA(); r != 0 || g != 0 || b != 0 {
		t.Fatal("expected black border at x=10")
	}
	if r, _, _, _ := img.At(5, 5).RGBA(); r != 0xffff {
		t.Fatal("expected white margin outside the border")
	}
}

func TestPlaceholderPDF(t *testing.T) {
	p := NewPlaceholder(t.TempDir())
	result, err := p.Render(context.Background(), markup, stage.FormatPDF)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(mustRead(t, result.Path), "%PDF-") {
		t.Fatal("expected a PDF document")
	}
}

func TestFallbackUsesPlaceholderWhenToolchainMissing(t *testing.T) {
	latex, dir := newTestRenderer(t, func(context.Context, string, ...string) error {
		return &exec.Error{Name: "pdflatex", Err: exec.ErrNotFound}
	})
	f := &Fallback{primary: latex, placeholder: NewPlaceholder(dir), logger: logging.NewNop()}
	result, err := f.Render(context.Background(), markup, stage.FormatPNG)
	if err != nil || !result.Placeholder {
		t.Fatalf("expected placeholder, got %+v err=%v", result, err)
	}

	failing, _ := newTestRenderer(t, func(context.Context, string, ...string) error {
		return errors.New("exit status 1")
	})
	f.primary = failing
	if _, err := f.Render(context.Background(), markup, stage.FormatPNG); err == nil {
		t.Fatal("compile errors must not be masked by the placeholder")
	}
}

func TestTail(t *testing.T) {
	if got := tail("a\n\nb\nc\n", 2); got != "b | c" {
		t.Fatalf("unexpected tail %q", got)
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
