package diagram

import (
	"strings"

	"tikzflow/internal/services"
)

const (
	beginTikZ = `\begin{tikzpicture}`
	endTikZ   = `\end{tikzpicture}`
)

// TikZLibraries are loaded by every standalone document.
var TikZLibraries = []string{"arrows.meta", "positioning", "shapes", "decorations.markings"}

// ValidateTikZ performs the structural check applied to all markup before it
// is stored or rendered: a tikzpicture environment must open and then close.
func ValidateTikZ(markup string) error {
	trimmed := strings.TrimSpace(markup)
	if trimmed == "" {
		return services.Wrap(services.ErrValidation, "diagram", "validate", "markup is empty", nil)
	}
	begin := strings.Index(trimmed, beginTikZ)
	if begin < 0 {
		return services.Wrap(services.ErrValidation, "diagram", "validate", `markup is missing \begin{tikzpicture}`, nil)
	}
	if end := strings.LastIndex(trimmed, endTikZ); end < begin {
		return services.Wrap(services.ErrValidation, "diagram", "validate", `markup is missing \end{tikzpicture}`, nil)
	}
	return nil
}

// StandaloneDocument wraps markup in a compilable standalone LaTeX document.
func StandaloneDocument(markup string) string {
	var b strings.Builder
	b.WriteString("\\documentclass[border=2pt]{standalone}\n")
	b.WriteString("\\usepackage{tikz}\n")
	b.WriteString("\\usepackage{amsmath}\n")
	b.WriteString("\\usepackage{amssymb}\n")
	b.WriteString("\\usetikzlibrary{" + strings.Join(TikZLibraries, ",") + "}\n")
	b.WriteString("\n\\begin{document}\n")
	b.WriteString(strings.TrimSpace(markup))
	b.WriteString("\n\\end{document}\n")
	return b.String()
}
