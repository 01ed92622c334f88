package api

import (
	"sort"
	"strings"
	"time"

	"tikzflow/internal/jobs"
	"tikzflow/internal/pipeline"
	"tikzflow/internal/stage"
)

// OutputsPath is the route prefix rendered artifacts are served under.
const OutputsPath = "/api/outputs/"

// DownloadPath is the route prefix exported documents are served under.
const DownloadPath = "/api/export/download/"

// FromJob converts a registry snapshot into its transport form.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:           job.ID,
		Status:       string(job.Status),
		TikZCode:     job.Markup,
		ErrorMessage: job.ErrorMessage,
		HasPreview:   job.HasPreview(),
		DiagramType:  job.DiagramType,
		TemplateID:   job.TemplateID,
		Generation:   job.Generation,
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
	if dto.HasPreview {
		dto.PreviewURL = OutputURL(job.ArtifactRef)
	}
	return dto
}

// FromJobs converts a slice of jobs.
func FromJobs(list []*jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// OutputURL builds the URL a rendered artifact is served at.
func OutputURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	return OutputsPath + baseName(ref)
}

// DownloadURL builds the URL an exported document is served at.
func DownloadURL(filename string) string {
	return DownloadPath + baseName(filename)
}

// FromRenderResult converts a direct render result.
func FromRenderResult(result stage.RenderResult) RenderResponse {
	return RenderResponse{
		ID:          result.ID,
		Format:      string(result.Format),
		OutputURL:   OutputURL(result.Path),
		Placeholder: result.Placeholder,
	}
}

// FromStatusSummary converts orchestrator diagnostics.
func FromStatusSummary(summary pipeline.StatusSummary) PipelineStatus {
	status := PipelineStatus{
		Running:        summary.Running,
		InFlight:       summary.InFlight,
		StaleUpdates:   summary.StaleUpdates,
		JobStats:       MergeJobStats(summary.JobStats),
		LastError:      summary.LastError,
		ProviderHealth: StageHealthSlice(summary.ProviderHealth),
	}
	if summary.LastJob != nil {
		job := FromJob(summary.LastJob)
		status.LastJob = &job
	}
	return status
}

// MergeJobStats returns counts for every known status, zero-filled.
func MergeJobStats(stats map[jobs.Status]int) map[string]int {
	out := make(map[string]int, len(jobs.AllStatuses()))
	for _, s := range jobs.AllStatuses() {
		out[string(s)] = stats[s]
	}
	return out
}

// StageHealthSlice orders provider health by name.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for name, h := range health {
		if h.Name == "" {
			h.Name = name
		}
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParseTime parses a payload timestamp, returning the zero time on failure.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
