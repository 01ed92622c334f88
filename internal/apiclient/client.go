package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tikzflow/internal/api"
	"tikzflow/internal/config"
	"tikzflow/internal/jobs"
	"tikzflow/internal/services"
	"tikzflow/internal/templates"
)

const defaultTimeout = 30 * time.Second

// StatusError is a non-2xx reply from the daemon.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Code)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

// Unwrap maps the status code back onto a services marker.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusConflict:
		return services.ErrInvalidState
	case http.StatusBadRequest:
		return services.ErrValidation
	case http.StatusUnauthorized, http.StatusServiceUnavailable:
		return services.ErrConfiguration
	case http.StatusGatewayTimeout:
		return services.ErrTimeout
	case http.StatusBadGateway:
		return services.ErrProvider
	default:
		return nil
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// Client calls the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for the daemon at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig returns a client for the daemon described by cfg.
func FromConfig(cfg *config.Config, opts ...Option) *Client {
	return New(cfg.APIBaseURL(), cfg.API.Token, opts...)
}

// BaseURL returns the daemon root URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Health calls /health.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.getJSON(ctx, "/health", &out)
	return out, err
}

// Status fetches daemon diagnostics.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.getJSON(ctx, "/api/status", &out)
	return out, err
}

// Upload sends the image at path.
func (c *Client) Upload(ctx context.Context, path string) (api.UploadResponse, error) {
	var out api.UploadResponse
	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return out, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return out, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return out, err
	}
	err = c.do(ctx, http.MethodPost, "/api/upload", &body, mw.FormDataContentType(), &out)
	return out, err
}

// Convert submits a conversion and returns the processing snapshot.
func (c *Client) Convert(ctx context.Context, req api.ConvertRequest) (api.Job, error) {
	var out api.Job
	err := c.postJSON(ctx, "/api/convert", req, &out)
	return out, err
}

// Job fetches one job.
func (c *Client) Job(ctx context.Context, id string) (api.Job, error) {
	var out api.Job
	err := c.getJSON(ctx, "/api/convert/"+url.PathEscape(id), &out)
	return out, err
}

// WaitJob polls until the job leaves pending/processing or ctx ends.
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration) (api.Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return job, err
		}
		if status, ok := jobs.ParseStatus(job.Status); ok && status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Jobs lists jobs, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, statuses ...string) ([]api.Job, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		q := url.Values{}
		for _, s := range statuses {
			q.Add("status", s)
		}
		path += "?" + q.Encode()
	}
	var out api.JobListResponse
	err := c.getJSON(ctx, path, &out)
	return out.Jobs, err
}

// Export packages a completed job as a PDF.
func (c *Client) Export(ctx context.Context, id string, includeCode bool, title string) (api.ExportResponse, error) {
	var out api.ExportResponse
	req := api.ExportRequest{IncludeCode: includeCode, Title: title}
	err := c.postJSON(ctx, "/api/convert/"+url.PathEscape(id)+"/export", req, &out)
	return out, err
}

// Download streams a daemon-served file (for example an export pdf_url) to w.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

// JobsReport streams the XLSX job report to w.
func (c *Client) JobsReport(ctx context.Context, w io.Writer) error {
	return c.Download(ctx, "/api/jobs/report.xlsx", w)
}

// Render compiles markup outside any job.
func (c *Client) Render(ctx context.Context, req api.RenderRequest) (api.RenderResponse, error) {
	var out api.RenderResponse
	err := c.postJSON(ctx, "/api/render", req, &out)
	return out, err
}

// Templates lists catalog entries, optionally for one diagram type.
func (c *Client) Templates(ctx context.Context, diagramType string) ([]templates.Template, error) {
	path := "/api/templates"
	if t := strings.TrimSpace(diagramType); t != "" {
		path += "?diagram_type=" + url.QueryEscape(t)
	}
	var out api.TemplateListResponse
	err := c.getJSON(ctx, path, &out)
	return out.Templates, err
}

// Template fetches one catalog entry.
func (c *Client) Template(ctx context.Context, id string) (templates.Template, error) {
	var out templates.Template
	err := c.getJSON(ctx, "/api/templates/"+url.PathEscape(id), &out)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// send performs the request and converts non-2xx replies into *StatusError.
// The caller owns the returned body.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	statusErr := &StatusError{Code: resp.StatusCode}
	var payload api.ErrorResponse
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		statusErr.Message = payload.Error
	} else {
		statusErr.Message = strings.TrimSpace(string(data))
	}
	return nil, statusErr
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
