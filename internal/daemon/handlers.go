package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"tikzflow/internal/api"
	"tikzflow/internal/diagram"
	"tikzflow/internal/export"
	"tikzflow/internal/jobs"
	"tikzflow/internal/logging"
	"tikzflow/internal/pipeline"
	"tikzflow/internal/services"
	"tikzflow/internal/stage"
	"tikzflow/internal/templates"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *apiServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.ServiceInfo{Name: serviceName, Version: serviceVersion, Status: "running"})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "healthy"})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("File too large. Maximum size: %dMB", s.maxUpload>>20))
			return
		}
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	img, err := s.daemon.images.Save(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("image uploaded",
		logging.String("image_id", img.ID),
		logging.Int64("size_bytes", img.Size),
		logging.String(logging.FieldEventType, "image_uploaded"),
	)
	s.writeJSON(w, http.StatusOK, api.UploadResponse{
		ID:         img.ID,
		Filename:   img.Filename,
		UploadTime: img.UploadedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Status:     "success",
		Message:    "File uploaded successfully",
	})
}

func (s *apiServer) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	path, err := s.daemon.images.Resolve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "File not found")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *apiServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req api.ConvertRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := api.Validate(req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	kind, err := diagram.ParseType(req.DiagramType)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sub, err := s.daemon.pipeline.Submit(r.Context(), pipeline.SubmitRequest{
		ImageID:     req.ImageID,
		Hint:        req.Description,
		DiagramType: kind,
		TemplateID:  req.Template(),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.FromJob(sub.Job))
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.pipeline.Job(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Conversion not found")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleExportJob(w http.ResponseWriter, r *http.Request) {
	var req api.ExportRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	req.DiagramID = mux.Vars(r)["id"]
	s.exportJob(w, r, req)
}

func (s *apiServer) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	var req api.ExportRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.DiagramID) == "" {
		s.writeError(w, http.StatusBadRequest, "diagram_id is required")
		return
	}
	s.exportJob(w, r, req)
}

func (s *apiServer) exportJob(w http.ResponseWriter, r *http.Request, req api.ExportRequest) {
	if err := api.Validate(req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	id := strings.TrimSpace(req.DiagramID)
	if _, err := s.daemon.pipeline.Job(r.Context(), id); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Diagram not found")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	result, err := s.daemon.pipeline.Export(r.Context(), pipeline.ExportRequest{
		JobID:         id,
		IncludeMarkup: req.IncludeCode,
		Title:         req.Title,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ExportResponse{
		PDFURL:   api.DownloadURL(result.Filename),
		Filename: result.Filename,
	})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	path, ok := s.servedFile(s.daemon.cfg.Paths.ExportDir, name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func (s *apiServer) handleOutputFile(w http.ResponseWriter, r *http.Request) {
	path, ok := s.servedFile(s.daemon.cfg.Paths.OutputDir, mux.Vars(r)["filename"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "File not found")
		return
	}
	http.ServeFile(w, r, path)
}

// servedFile resolves name inside dir, refusing anything that is not a plain
// file name.
func (s *apiServer) servedFile(dir, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

func (s *apiServer) handleRender(w http.ResponseWriter, r *http.Request) {
	var req api.RenderRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := api.Validate(req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	format, err := stage.ParseFormat(req.Format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	result, err := s.daemon.pipeline.Render(r.Context(), req.TikZCode, format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRenderResult(result))
}

func (s *apiServer) handleTemplates(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("diagram_type"))
	if raw == "" {
		s.writeTemplates(w, s.daemon.catalog.List())
		return
	}
	kind, err := diagram.ParseType(raw)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeTemplates(w, s.daemon.catalog.ByType(kind))
}

func (s *apiServer) handleTemplatesByType(w http.ResponseWriter, r *http.Request) {
	kind, err := diagram.ParseType(mux.Vars(r)["type"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeTemplates(w, s.daemon.catalog.ByType(kind))
}

func (s *apiServer) handleTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.daemon.catalog.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Template not found")
		return
	}
	s.writeJSON(w, http.StatusOK, tpl)
}

func (s *apiServer) writeTemplates(w http.ResponseWriter, list []templates.Template) {
	if list == nil {
		list = []templates.Template{}
	}
	s.writeJSON(w, http.StatusOK, api.TemplateListResponse{Templates: list})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query()["status"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	list, err := s.daemon.pipeline.Jobs(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(list)})
}

func (s *apiServer) handleJobsReport(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query()["status"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	list, err := s.daemon.pipeline.Jobs(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	data, err := export.JobsReport(list)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="tikzflow-jobs.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write jobs report", logging.Error(err))
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, APIStatus(s.daemon.Status(r.Context())))
}

func parseStatuses(values []string) ([]jobs.Status, error) {
	var statuses []jobs.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			status, ok := jobs.ParseStatus(trimmed)
			if !ok {
				return nil, services.Wrap(services.ErrValidation, "api", "list jobs",
					fmt.Sprintf("unknown status %q", trimmed), nil)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

// APIStatus converts daemon status into its transport form.
func APIStatus(status Status) api.DaemonStatus {
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	checks := make([]api.CheckResult, len(status.Preflight))
	for i, res := range status.Preflight {
		checks[i] = api.CheckResult{Name: res.Name, Passed: res.Passed, Detail: res.Detail}
	}
	return api.DaemonStatus{
		Running:         status.Running,
		PID:             status.PID,
		LockFilePath:    status.LockFilePath,
		RegistryBackend: status.RegistryBackend,
		RegistryPath:    status.RegistryPath,
		Templates:       status.Templates,
		Pipeline:        api.FromStatusSummary(status.Pipeline),
		Dependencies:    deps,
		Preflight:       checks,
	}
}
