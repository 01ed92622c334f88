package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tikzflow/internal/diagram"
	"tikzflow/internal/stage"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
)

// DaTikZConfig captures the settings needed to talk to the DaTikZ API.
type DaTikZConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// DaTikZClient converts images by calling the DaTikZ HTTP API.
type DaTikZClient struct {
	cfg          DaTikZConfig
	templateCode func(id string) (string, error)
	httpClient   *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*DaTikZClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *DaTikZClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *DaTikZClient) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *DaTikZClient) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *DaTikZClient) {
		c.sleeper = sleeper
	}
}

// WithTemplates lets the client send a template's markup as a starting point
// when a request names one.
func WithTemplates(lookup func(id string) (string, error)) Option {
	return func(c *DaTikZClient) {
		c.templateCode = lookup
	}
}

// NewDaTikZClient constructs a client using the supplied configuration.
func NewDaTikZClient(cfg DaTikZConfig, opts ...Option) *DaTikZClient {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &DaTikZClient{
		cfg: DaTikZConfig{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

type convertPayload struct {
	Model       string `json:"model,omitempty"`
	Image       string `json:"image"`
	MimeType    string `json:"mime_type"`
	Prompt      string `json:"prompt"`
	DiagramType string `json:"diagram_type"`
	Template    string `json:"template,omitempty"`
}

type convertResponse struct {
	TikZCode string `json:"tikz_code"`
	Error    string `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("datikz request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Convert sends the image and prompt to DaTikZ and returns validated markup.
func (c *DaTikZClient) Convert(ctx context.Context, req stage.ConvertRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("datikz convert: api key required")
	}
	data, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return "", fmt.Errorf("datikz convert: read image: %w", err)
	}
	payload := convertPayload{
		Model:       c.cfg.Model,
		Image:       base64.StdEncoding.EncodeToString(data),
		MimeType:    mimeTypeFor(req.ImagePath),
		Prompt:      diagram.BuildPrompt(req.DiagramType, req.Hint),
		DiagramType: string(req.DiagramType),
	}
	if id := strings.TrimSpace(req.TemplateID); id != "" && c.templateCode != nil {
		if code, err := c.templateCode(id); err == nil {
			payload.Template = code
		}
	}

	markup, err := c.convertWithRetry(ctx, payload)
	if err != nil {
		return "", err
	}
	markup = stripCodeFence(markup)
	if err := diagram.ValidateTikZ(markup); err != nil {
		return "", err
	}
	return markup, nil
}

// HealthCheck reports whether the client is configured.
func (c *DaTikZClient) HealthCheck(context.Context) stage.Health {
	if c.cfg.APIKey == "" {
		return stage.Unhealthy("datikz", "api key missing")
	}
	if _, err := url.ParseRequestURI(c.cfg.BaseURL); err != nil {
		return stage.Unhealthy("datikz", "invalid api url")
	}
	return stage.Healthy("datikz")
}

func (c *DaTikZClient) convertWithRetry(ctx context.Context, payload convertPayload) (string, error) {
	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		markup, err := c.sendOnce(ctx, payload)
		if err == nil {
			return markup, nil
		}
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return "", fmt.Errorf("datikz convert: failed after %d attempts: %w", attempts, lastErr)
}

func (c *DaTikZClient) sendOnce(ctx context.Context, payload convertPayload) (string, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "convert")
	if err != nil {
		return "", fmt.Errorf("datikz request: build url: %w", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("datikz request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("datikz request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("datikz request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("datikz request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpStatusError{StatusCode: resp.StatusCode, Body: string(body), RetryAfter: retryAfter}
	}
	var decoded convertResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("datikz request: decode response: %w", err)
	}
	if msg := strings.TrimSpace(decoded.Error); msg != "" {
		return "", errors.New(msg)
	}
	if strings.TrimSpace(decoded.TikZCode) == "" {
		return "", errors.New("datikz request: empty tikz_code")
	}
	return decoded.TikZCode, nil
}

func (c *DaTikZClient) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *DaTikZClient) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

// backoffDelay doubles from the base delay: attempt 1 -> base, 2 -> base*2.
func (c *DaTikZClient) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.retryMaxDelay && c.retryMaxDelay > 0 {
			break
		}
	}
	return c.capDelay(delay)
}

func (c *DaTikZClient) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *DaTikZClient) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// stripCodeFence removes a surrounding markdown code fence, which some
// model responses include.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
