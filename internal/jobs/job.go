package jobs

import (
	"fmt"
	"strings"
	"time"

	"tikzflow/internal/services"
)

// Job is a snapshot of one conversion tracked by the registry. The id equals
// the uploaded image id.
type Job struct {
	ID           string
	Status       Status
	Markup       string
	ArtifactRef  string
	ErrorMessage string
	DiagramType  string
	Hint         string
	TemplateID   string
	Generation   uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPreview reports whether a rendered artifact is attached.
func (j *Job) HasPreview() bool {
	return j != nil && j.Status == StatusCompleted && strings.TrimSpace(j.ArtifactRef) != ""
}

// Meta holds the request options recorded when a job is created.
type Meta struct {
	DiagramType string
	Hint        string
	TemplateID  string
}

// Patch lists the fields an Update merges into a job. Nil fields are left
// untouched.
type Patch struct {
	Status       *Status
	Markup       *string
	ArtifactRef  *string
	ErrorMessage *string
}

// StatusPatch builds a patch that only moves the status.
func StatusPatch(status Status) Patch {
	return Patch{Status: &status}
}

// FailedPatch marks a job failed with message.
func FailedPatch(message string) Patch {
	status := StatusFailed
	return Patch{Status: &status, ErrorMessage: &message}
}

// CompletedPatch marks a job completed. An empty artifact selects
// StatusCompletedNoPreview.
func CompletedPatch(markup, artifact string) Patch {
	status := StatusCompleted
	p := Patch{Status: &status, Markup: &markup}
	if strings.TrimSpace(artifact) == "" {
		status = StatusCompletedNoPreview
		return p
	}
	p.ArtifactRef = &artifact
	return p
}

func (j *Job) clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	return &cp
}

// apply merges p into j after checking the transition table and the
// write-once fields.
func (j *Job) apply(p Patch, now time.Time) error {
	if j.Status.IsTerminal() {
		return services.Wrap(services.ErrInvalidState, "jobs", "update",
			fmt.Sprintf("job %s is already %s", j.ID, j.Status), nil)
	}
	if p.Status != nil && *p.Status != j.Status && !CanTransition(j.Status, *p.Status) {
		return services.Wrap(services.ErrInvalidState, "jobs", "update",
			fmt.Sprintf("transition %s -> %s not allowed", j.Status, *p.Status), nil)
	}
	if err := checkWriteOnce("markup", j.Markup, p.Markup); err != nil {
		return err
	}
	if err := checkWriteOnce("artifact", j.ArtifactRef, p.ArtifactRef); err != nil {
		return err
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Markup != nil {
		j.Markup = *p.Markup
	}
	if p.ArtifactRef != nil {
		j.ArtifactRef = *p.ArtifactRef
	}
	if p.ErrorMessage != nil {
		j.ErrorMessage = *p.ErrorMessage
	}
	j.UpdatedAt = now
	return nil
}

func checkWriteOnce(field, current string, next *string) error {
	if next == nil || current == "" || *next == current {
		return nil
	}
	return services.Wrap(services.ErrInvalidState, "jobs", "update", field+" is already set", nil)
}

func newJob(id string, meta Meta, generation uint64, now time.Time) *Job {
	return &Job{
		ID:          id,
		Status:      StatusPending,
		DiagramType: meta.DiagramType,
		Hint:        meta.Hint,
		TemplateID:  meta.TemplateID,
		Generation:  generation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
