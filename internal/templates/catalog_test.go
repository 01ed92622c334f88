package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tikzflow/internal/diagram"
	"tikzflow/internal/logging"
	"tikzflow/internal/services"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if got := len(c.List()); got != 7 {
		t.Fatalf("expected 7 built-in templates, got %d", got)
	}
	tpl, err := c.Get("mechanics_incline")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tpl.Name != "Mass on Inclined Plane" || tpl.DiagramType != diagram.Mechanics {
		t.Fatalf("unexpected template %+v", tpl)
	}
	if got := len(c.ByType(diagram.Electricity)); got != 2 {
		t.Fatalf("expected 2 electricity templates, got %d", got)
	}
	if _, ok := c.First(diagram.General); ok {
		t.Fatal("no general template ships by default")
	}
	if _, err := c.Get("missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadSeedsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates", "templates.json")
	c, err := Load(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected seeded file: %v", err)
	}
	if len(c.List()) != 7 {
		t.Fatalf("expected seeded templates, got %d", len(c.List()))
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown type": `[{"id":"x","name":"X","diagram_type":"astrology","tikz_code":"\\begin{tikzpicture}\\end{tikzpicture}"}]`,
		"missing name": `[{"id":"x","diagram_type":"optics","tikz_code":"\\begin{tikzpicture}\\end{tikzpicture}"}]`,
		"bad markup":   `[{"id":"x","name":"X","diagram_type":"optics","tikz_code":"\\draw (0,0);"}]`,
		"duplicate id": `[{"id":"x","name":"X","diagram_type":"optics","tikz_code":"\\begin{tikzpicture}\\end{tikzpicture}"},{"id":"x","name":"Y","diagram_type":"optics","tikz_code":"\\begin{tikzpicture}\\end{tikzpicture}"}]`,
		"not json":     `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "templates.json")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path, nil); !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	good := `[{"id":"one","name":"One","diagram_type":"quantum","tikz_code":"\\begin{tikzpicture}\\end{tikzpicture}"}]`
	if err := os.WriteFile(path, []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[{]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if _, err := c.Get("one"); err != nil {
		t.Fatalf("previous catalog lost: %v", err)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	first := `[{"id":"one","name":"One","diagram_type":"quantum","tikz_code":"\\begin{tikzpicture}\\end{tikzpicture}"}]`
	if err := os.WriteFile(path, []byte(first), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	second := `[{"id":"two","name":"Two","diagram_type":"optics","tikz_code":"\\begin{tikzpicture}\\end{tikzpicture}"}]`
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := os.WriteFile(path, []byte(second), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(400 * time.Millisecond)
		if _, err := c.Get("two"); err == nil {
			return
		}
	}
	t.Fatal("catalog was not reloaded after the file changed")
}

func TestSortedTypes(t *testing.T) {
	got := SortedTypes(Default().Counts())
	want := []diagram.Type{diagram.Mechanics, diagram.Electricity, diagram.Optics, diagram.Thermodynamics, diagram.Quantum}
	if len(got) != len(want) {
		t.Fatalf("unexpected types %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v", got)
		}
	}
}
