// Package api defines wire-format types and converters for the HTTP API and
// its CLI client. It translates jobs, templates and orchestrator diagnostics
// into transport-friendly DTOs so consumers never import internal packages.
//
// # Key Types
//
// Job: transport representation of a conversion job. The markup travels as
// tikz_code and the preview as a URL under /api/outputs.
//
// ConvertRequest, RenderRequest, ExportRequest: request bodies carrying
// go-playground/validator tags, checked by Validate before any work starts.
//
// DaemonStatus: daemon running state, orchestrator summary, dependency and
// preflight results.
//
// # Design Notes
//
// DTOs use snake_case JSON tags to match the browser frontend. Job statuses are
// lowercase strings; has_preview is true only for completed jobs with an
// artifact. Timestamps use RFC3339 with milliseconds.
package api
