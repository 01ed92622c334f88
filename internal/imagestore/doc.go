// Package imagestore stores uploaded diagram images under opaque ids and
// resolves ids back to file paths for the conversion pipeline.
package imagestore
