// Package services defines shared utilities consumed by the conversion
// pipeline, its providers, and the HTTP layer.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures keep a
//     classification (not found, invalid state, provider failure, invariant
//     violation) as they cross package boundaries.
//   - HTTPStatus and Kind, which translate those markers into API responses
//     and log fields.
//
// Use these helpers when wiring new provider logic so error handling and
// observability stay uniform across the pipeline.
package services
