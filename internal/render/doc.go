// Package render turns TikZ markup into preview artifacts. LatexRenderer
// compiles with pdflatex and converts with poppler tools; Placeholder draws
// a fixed preview for hosts without a TeX installation.
package render
