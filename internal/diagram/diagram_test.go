package diagram_test

import (
	"errors"
	"strings"
	"testing"

	"tikzflow/internal/diagram"
	"tikzflow/internal/services"
)

func TestParseType(t *testing.T) {
	cases := map[string]diagram.Type{
		"":               diagram.General,
		"  Mechanics ":   diagram.Mechanics,
		"thermodynamics": diagram.Thermodynamics,
		"QUANTUM":        diagram.Quantum,
		"electricity":    diagram.Electricity,
		"optics":         diagram.Optics,
	}
	for raw, want := range cases {
		got, err := diagram.ParseType(raw)
		if err != nil {
			t.Fatalf("ParseType(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseType(%q) = %q, want %q", raw, got, want)
		}
	}

	_, err := diagram.ParseType("astrology")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTypeTitle(t *testing.T) {
	if got := diagram.Thermodynamics.Title(); got != "Thermodynamics" {
		t.Fatalf("unexpected title %q", got)
	}
	if len(diagram.Types()) != 6 {
		t.Fatalf("expected six diagram types, got %d", len(diagram.Types()))
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := diagram.BuildPrompt(diagram.Optics, "two lenses, f=10cm")
	if !strings.HasPrefix(prompt, "Convert this handwritten optics diagram") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if !strings.HasSuffix(prompt, " Additional context: two lenses, f=10cm") {
		t.Fatalf("expected hint suffix, got %q", prompt)
	}
	if got := diagram.BuildPrompt(diagram.Type("bogus"), "  "); got != diagram.General.Prompt() {
		t.Fatalf("expected general fallback without hint, got %q", got)
	}
}

func TestValidateTikZ(t *testing.T) {
	valid := "\\begin{tikzpicture}\n\\draw (0,0) -- (1,1);\n\\end{tikzpicture}"
	if err := diagram.ValidateTikZ(valid); err != nil {
		t.Fatalf("expected valid markup, got %v", err)
	}
	for _, bad := range []string{
		"",
		"\\draw (0,0) -- (1,1);",
		"\\begin{tikzpicture}\\draw (0,0);",
		"\\end{tikzpicture} \\begin{tikzpicture}",
	} {
		if err := diagram.ValidateTikZ(bad); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ValidateTikZ(%q) = %v, want validation error", bad, err)
		}
	}
}

func TestStandaloneDocument(t *testing.T) {
	doc := diagram.StandaloneDocument("\\begin{tikzpicture}\\end{tikzpicture}")
	for _, fragment := range []string{
		"\\documentclass[border=2pt]{standalone}",
		"\\usepackage{amssymb}",
		"\\usetikzlibrary{arrows.meta,positioning,shapes,decorations.markings}",
		"\\begin{document}\n\\begin{tikzpicture}",
	} {
		if !strings.Contains(doc, fragment) {
			t.Fatalf("expected %q in document:\n%s", fragment, doc)
		}
	}
	if !strings.HasSuffix(doc, "\\end{document}\n") {
		t.Fatalf("document should end with \\end{document}")
	}
}
