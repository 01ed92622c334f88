package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"tikzflow/internal/diagram"
	"tikzflow/internal/jobs"
	"tikzflow/internal/logging"
	"tikzflow/internal/notifications"
	"tikzflow/internal/services"
	"tikzflow/internal/stage"
)

// SubmitRequest asks for one image to be converted.
type SubmitRequest struct {
	ImageID     string
	Hint        string
	DiagramType diagram.Type
	TemplateID  string
}

// Submission is the synchronous answer to Submit.
type Submission struct {
	Job    *jobs.Job
	Handle *Handle
}

// Submit resolves the image, records a processing job and schedules the
// conversion in the background. A missing image fails synchronously and
// leaves the registry untouched.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (Submission, error) {
	id := strings.TrimSpace(req.ImageID)
	if id == "" {
		return Submission{}, services.Wrap(services.ErrValidation, "pipeline", "submit", "image id is required", nil)
	}
	kind := req.DiagramType
	if kind == "" {
		kind = diagram.General
	}
	if !kind.Valid() {
		return Submission{}, services.Wrap(services.ErrValidation, "pipeline", "submit",
			fmt.Sprintf("unknown diagram type %q", req.DiagramType), nil)
	}

	imagePath, err := o.images.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !errors.Is(err, services.ErrNotFound) {
			err = services.Wrap(services.ErrNotFound, "pipeline", "resolve image", "Image not found", err)
		}
		return Submission{}, err
	}

	runCtx, ok := o.acquire()
	if !ok {
		return Submission{}, services.Wrap(services.ErrInvalidState, "pipeline", "submit", "orchestrator is not running", nil)
	}
	job, err := o.record(ctx, id, kind, req)
	if err != nil {
		o.release()
		o.setLastError(err)
		return Submission{}, err
	}

	handle := newHandle(id, job.Generation)
	in := runInput{
		jobID:     id,
		imagePath: imagePath,
		request: stage.ConvertRequest{
			ImageID:     id,
			ImagePath:   imagePath,
			DiagramType: kind,
			Hint:        req.Hint,
			TemplateID:  req.TemplateID,
		},
	}
	o.logger.Info("conversion submitted",
		logging.String(logging.FieldJobID, id),
		logging.Generation(job.Generation),
		logging.String("diagram_type", string(kind)),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	o.setLastJob(job)
	go o.run(runCtx, in, handle)
	return Submission{Job: job, Handle: handle}, nil
}

// record creates the job and moves it to processing. Submissions are
// serialized so the returned snapshot always carries this submission's
// generation.
func (o *Orchestrator) record(ctx context.Context, id string, kind diagram.Type, req SubmitRequest) (*jobs.Job, error) {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	generation, err := o.registry.Create(ctx, id, jobs.Meta{
		DiagramType: string(kind),
		Hint:        strings.TrimSpace(req.Hint),
		TemplateID:  strings.TrimSpace(req.TemplateID),
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	applied, err := o.registry.Update(ctx, id, generation, jobs.StatusPatch(jobs.StatusProcessing))
	if err != nil {
		// No run will be scheduled, so the pending record must not outlive this call.
		if _, failErr := o.registry.Update(context.WithoutCancel(ctx), id, generation, jobs.FailedPatch("could not start conversion")); failErr != nil {
			logging.WarnWithContext(o.logger, "failed to close unstarted job", "job_start_cleanup_failed",
				logging.String(logging.FieldJobID, id),
				logging.Error(failErr),
				logging.String(logging.FieldErrorHint, "check the job registry"),
				logging.String(logging.FieldImpact, "job stays pending"),
			)
		}
		return nil, fmt.Errorf("start job: %w", err)
	}
	if !applied {
		return nil, services.Wrap(services.ErrInvariant, "pipeline", "submit",
			fmt.Sprintf("job %s changed while being recorded", id), nil)
	}
	job, err := o.registry.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}

type runInput struct {
	jobID     string
	imagePath string
	request   stage.ConvertRequest
}

// run is the background body. It ends with exactly one terminal update
// against the submission's generation.
func (o *Orchestrator) run(ctx context.Context, in runInput, h *Handle) {
	defer o.release()
	defer close(h.done)

	ctx = services.WithJobID(ctx, in.jobID)
	logger := logging.WithContext(ctx, o.logger)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "conversion run panicked", "job_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "inspect provider implementation"),
			)
			h.applied = o.finish(ctx, logger, in.jobID, h.generation, jobs.FailedPatch(fmt.Sprint(r)))
		}
	}()

	markup, err := o.convert(ctx, in.request)
	if err != nil {
		message := failureMessage(ctx, err)
		logging.WarnWithContext(logger, "conversion failed", "conversion_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "check the conversion provider and the uploaded image"),
			logging.String(logging.FieldImpact, "job marked failed"),
		)
		h.applied = o.finish(ctx, logger, in.jobID, h.generation, jobs.FailedPatch(message))
		return
	}

	artifact := ""
	result, err := o.render(ctx, markup, o.previewFormat)
	if err != nil {
		logging.WarnWithContext(logger, "preview render failed", "render_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "check the LaTeX toolchain"),
			logging.String(logging.FieldImpact, "job completes without preview"),
		)
	} else {
		artifact = filepath.Base(result.Path)
	}

	h.applied = o.finish(ctx, logger, in.jobID, h.generation, jobs.CompletedPatch(markup, artifact))
	if h.applied {
		logger.Info("conversion finished",
			logging.Bool("has_preview", artifact != ""),
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldEventType, "job_completed"),
		)
	}
}

func (o *Orchestrator) convert(ctx context.Context, req stage.ConvertRequest) (string, error) {
	stageCtx, cancel := withTimeout(services.WithStage(ctx, "convert"), o.timeouts.Convert)
	defer cancel()
	markup, err := o.converter.Convert(stageCtx, req)
	if err != nil {
		return "", stage.Classify(stageCtx, "convert", "convert image", err)
	}
	if strings.TrimSpace(markup) == "" {
		return "", services.Wrap(services.ErrProvider, "convert", "convert image", "provider returned no markup", nil)
	}
	return markup, nil
}

func (o *Orchestrator) render(ctx context.Context, markup string, format stage.Format) (stage.RenderResult, error) {
	stageCtx, cancel := withTimeout(services.WithStage(ctx, "render"), o.timeouts.Render)
	defer cancel()
	result, err := o.renderer.Render(stageCtx, markup, format)
	if err != nil {
		return stage.RenderResult{}, stage.Classify(stageCtx, "render", "render markup", err)
	}
	return result, nil
}

// finish writes the terminal patch. Updates run detached from cancellation
// so shutdown still records an outcome.
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, id string, generation uint64, patch jobs.Patch) bool {
	writeCtx := context.WithoutCancel(ctx)
	applied, err := o.registry.Update(writeCtx, id, generation, patch)
	if err != nil {
		o.setLastError(err)
		logging.ErrorWithContext(logger, "failed to record job outcome", "job_update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "registry rejected the terminal update"),
		)
		return false
	}
	if !applied {
		o.staleUpdates.Add(1)
		logger.Debug("superseded run discarded",
			logging.Generation(generation),
			logging.String(logging.FieldEventType, "job_update_stale"),
		)
		return false
	}
	if job, err := o.registry.Get(writeCtx, id); err == nil {
		o.setLastJob(job)
		o.notify(writeCtx, logger, job)
	}
	return true
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, job *jobs.Job) {
	if o.notifier == nil {
		return
	}
	var event notifications.Event
	switch job.Status {
	case jobs.StatusCompleted:
		event = notifications.EventJobCompleted
	case jobs.StatusCompletedNoPreview:
		event = notifications.EventJobCompletedNoPreview
	case jobs.StatusFailed:
		event = notifications.EventJobFailed
	default:
		return
	}
	payload := notifications.Payload{
		"jobID":       job.ID,
		"diagramType": job.DiagramType,
		"error":       job.ErrorMessage,
	}
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logger, "job notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "job outcome not pushed"),
		)
	}
}

func failureMessage(ctx context.Context, err error) string {
	if ctx.Err() == context.Canceled {
		return "conversion interrupted by shutdown"
	}
	if msg := strings.TrimSpace(services.Message(err)); msg != "" {
		return msg
	}
	return "conversion failed"
}
