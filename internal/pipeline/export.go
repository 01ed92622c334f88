package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"tikzflow/internal/diagram"
	"tikzflow/internal/jobs"
	"tikzflow/internal/logging"
	"tikzflow/internal/services"
	"tikzflow/internal/stage"
)

// ExportRequest asks for a completed job to be packaged as a document.
type ExportRequest struct {
	JobID         string
	IncludeMarkup bool
	Title         string
}

// ExportResult locates the produced document.
type ExportResult struct {
	DocumentPath string
	Filename     string
}

// Job returns the current snapshot for id.
func (o *Orchestrator) Job(ctx context.Context, id string) (*jobs.Job, error) {
	return o.registry.Get(ctx, id)
}

// Jobs lists jobs, optionally filtered by status.
func (o *Orchestrator) Jobs(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Job, error) {
	return o.registry.List(ctx, statuses...)
}

// ArtifactPath maps an artifact ref to its location on disk.
func (o *Orchestrator) ArtifactPath(ref string) string {
	return filepath.Join(o.outputDir, filepath.Base(ref))
}

// Export packages the preview of a completed job.
func (o *Orchestrator) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	if o.exporter == nil {
		return ExportResult{}, services.Wrap(services.ErrConfiguration, "pipeline", "export", "no exporter configured", nil)
	}
	job, err := o.registry.Get(ctx, req.JobID)
	if err != nil {
		return ExportResult{}, err
	}
	switch {
	case job.Status == jobs.StatusCompleted && strings.TrimSpace(job.ArtifactRef) != "":
	case job.Status.IsCompleted():
		return ExportResult{}, services.Wrap(services.ErrNotFound, "pipeline", "export", "Preview image not found", nil)
	default:
		return ExportResult{}, services.Wrap(services.ErrInvalidState, "pipeline", "export",
			fmt.Sprintf("job %s is %s; only completed jobs can be exported", job.ID, job.Status), nil)
	}

	exportReq := stage.ExportRequest{ArtifactPath: o.ArtifactPath(job.ArtifactRef), Title: req.Title}
	if req.IncludeMarkup {
		exportReq.Markup = job.Markup
	}
	stageCtx, cancel := withTimeout(services.WithStage(services.WithJobID(ctx, job.ID), "export"), o.timeouts.Export)
	defer cancel()
	result, err := o.exporter.Export(stageCtx, exportReq)
	if err != nil {
		return ExportResult{}, stage.Classify(stageCtx, "export", "package document", err)
	}
	logging.WithContext(stageCtx, o.logger).Info("job exported",
		logging.String("filename", result.Filename),
		logging.Bool("include_markup", req.IncludeMarkup),
		logging.String(logging.FieldEventType, "job_exported"),
	)
	return ExportResult{DocumentPath: result.Path, Filename: result.Filename}, nil
}

// Render compiles markup directly, outside any job.
func (o *Orchestrator) Render(ctx context.Context, markup string, format stage.Format) (stage.RenderResult, error) {
	if err := diagram.ValidateTikZ(markup); err != nil {
		return stage.RenderResult{}, err
	}
	return o.render(ctx, markup, format)
}
