package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"tikzflow/internal/config"
	"tikzflow/internal/logging"
	"tikzflow/internal/services"
)

const (
	serviceName    = "Physics Diagram Converter API"
	serviceVersion = "1.0.0"

	// multipartOverhead is allowed on top of the upload cap for form framing.
	multipartOverhead = 1 << 20
	maxJSONBody       = 1 << 20
)

type apiServer struct {
	bind      string
	token     string
	origins   []string
	maxUpload int64
	logger    *slog.Logger
	daemon    *Daemon
	router    *mux.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.API.Bind),
		token:     strings.TrimSpace(cfg.API.Token),
		origins:   cfg.API.CORSOrigins,
		maxUpload: cfg.MaxUploadBytes(),
		logger:    logging.NewComponentLogger(logger, "api-server"),
		daemon:    d,
	}
	srv.router = srv.routes()
	return srv
}

func (s *apiServer) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestIDMiddleware, corsMiddleware(s.origins))
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Preflight requests match before any authenticated route.
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Artifacts are loaded by browsers via <img> and download links, which
	// cannot attach a bearer token.
	router.HandleFunc("/api/upload/{id}", s.handleUploadFile).Methods(http.MethodGet)
	router.HandleFunc("/api/outputs/{filename}", s.handleOutputFile).Methods(http.MethodGet)
	router.HandleFunc("/api/export/outputs/{filename}", s.handleOutputFile).Methods(http.MethodGet)
	router.HandleFunc("/api/export/download/{filename}", s.handleDownload).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(authMiddleware(s.token))
	apiRouter.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	apiRouter.HandleFunc("/convert", s.handleConvert).Methods(http.MethodPost)
	apiRouter.HandleFunc("/convert/{id}", s.handleGetJob).Methods(http.MethodGet)
	apiRouter.HandleFunc("/convert/{id}/export", s.handleExportJob).Methods(http.MethodPost)
	apiRouter.HandleFunc("/export/pdf", s.handleExportPDF).Methods(http.MethodPost)
	apiRouter.HandleFunc("/render", s.handleRender).Methods(http.MethodPost)
	apiRouter.HandleFunc("/templates", s.handleTemplates).Methods(http.MethodGet)
	apiRouter.HandleFunc("/templates/type/{type}", s.handleTemplatesByType).Methods(http.MethodGet)
	apiRouter.HandleFunc("/templates/{id}", s.handleTemplate).Methods(http.MethodGet)
	apiRouter.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	apiRouter.HandleFunc("/jobs/report.xlsx", s.handleJobsReport).Methods(http.MethodGet)
	apiRouter.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return router
}

func (s *apiServer) handler() http.Handler {
	return s.router
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

// decode reads a JSON body into dst. With allowEmpty, a missing body leaves
// dst at its zero value.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if r.Body == nil {
		if allowEmpty {
			return true
		}
		s.writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return true
		}
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps a classified error onto its HTTP status. Server-side
// failures are logged with the request's correlation id.
func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}
