package ipc

import "tikzflow/internal/api"

// StartRequest triggers daemon pipeline startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the pipeline and HTTP API while keeping the process alive.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon status as served over HTTP.
type StatusResponse = api.DaemonStatus

// ReloadTemplatesRequest re-reads the template catalog file.
type ReloadTemplatesRequest struct{}

// ReloadTemplatesResponse reports the catalog size after reload.
type ReloadTemplatesResponse struct {
	Templates int `json:"templates"`
}
