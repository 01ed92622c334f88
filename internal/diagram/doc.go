// Package diagram holds the vocabulary shared by every conversion stage:
// diagram types and their prompts, the structural TikZ check, and the
// standalone LaTeX wrapper used for rendering.
package diagram
