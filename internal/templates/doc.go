// Package templates serves the catalog of ready-made TikZ diagrams. The
// catalog ships with built-in physics templates and can be overridden by a
// JSON file that is validated against an embedded JSON Schema and reloaded
// on change.
package templates
