package api

import (
	"strings"

	"tikzflow/internal/templates"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a conversion job in a transport-friendly format.
type Job struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	TikZCode     string `json:"tikz_code,omitempty"`
	PreviewURL   string `json:"preview_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	HasPreview   bool   `json:"has_preview"`
	DiagramType  string `json:"diagram_type,omitempty"`
	TemplateID   string `json:"template_id,omitempty"`
	Generation   uint64 `json:"generation"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// ConvertRequest starts a conversion for an uploaded image. TemplateID (or
// its older spelling UseTemplate) names a catalog template for the template
// provider.
type ConvertRequest struct {
	ImageID     string `json:"image_id" validate:"required,max=128"`
	DiagramType string `json:"diagram_type,omitempty" validate:"omitempty,oneof=mechanics electricity optics thermodynamics quantum general"`
	Description string `json:"description,omitempty" validate:"max=2000"`
	TemplateID  string `json:"template_id,omitempty" validate:"omitempty,max=128"`
	UseTemplate string `json:"use_template,omitempty" validate:"omitempty,max=128"`
}

// Template returns the requested template id, preferring TemplateID.
func (r ConvertRequest) Template() string {
	if id := strings.TrimSpace(r.TemplateID); id != "" {
		return id
	}
	return strings.TrimSpace(r.UseTemplate)
}

// RenderRequest compiles markup outside any job.
type RenderRequest struct {
	TikZCode string `json:"tikz_code" validate:"required"`
	Format   string `json:"format,omitempty" validate:"omitempty,oneof=png pdf svg"`
}

// RenderResponse locates a rendered artifact.
type RenderResponse struct {
	ID          string `json:"id"`
	Format      string `json:"format"`
	OutputURL   string `json:"output_url"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// ExportRequest packages a completed job as a PDF. DiagramID is the job id;
// it may be omitted when the job id is part of the route.
type ExportRequest struct {
	DiagramID   string `json:"diagram_id,omitempty" validate:"omitempty,max=128"`
	IncludeCode bool   `json:"include_code"`
	Title       string `json:"title,omitempty" validate:"max=200"`
}

// ExportResponse points at the exported document.
type ExportResponse struct {
	PDFURL   string `json:"pdf_url"`
	Filename string `json:"filename"`
}

// UploadResponse acknowledges a stored image.
type UploadResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	UploadTime string `json:"upload_time"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// TemplateListResponse wraps catalog entries.
type TemplateListResponse struct {
	Templates []templates.Template `json:"templates"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// PipelineStatus summarizes orchestrator state.
type PipelineStatus struct {
	Running        bool           `json:"running"`
	InFlight       int            `json:"in_flight"`
	StaleUpdates   uint64         `json:"stale_updates"`
	JobStats       map[string]int `json:"job_stats"`
	LastError      string         `json:"last_error,omitempty"`
	LastJob        *Job           `json:"last_job,omitempty"`
	ProviderHealth []StageHealth  `json:"provider_health"`
}

// StageHealth mirrors readiness reporting for providers.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult reports one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running         bool               `json:"running"`
	PID             int                `json:"pid"`
	LockFilePath    string             `json:"lock_file_path"`
	RegistryBackend string             `json:"registry_backend"`
	RegistryPath    string             `json:"registry_path,omitempty"`
	Templates       int                `json:"templates"`
	Pipeline        PipelineStatus     `json:"pipeline"`
	Dependencies    []DependencyStatus `json:"dependencies"`
	Preflight       []CheckResult      `json:"preflight"`
}

// ServiceInfo is the banner served at the root path.
type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// HealthResponse is served by /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
