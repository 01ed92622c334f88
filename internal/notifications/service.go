package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tikzflow/internal/config"
)

const userAgent = "tikzflow/1.0.0"

// Event names a notification kind.
type Event string

const (
	EventJobCompleted          Event = "job_completed"
	EventJobCompletedNoPreview Event = "job_completed_no_preview"
	EventJobFailed             Event = "job_failed"
	EventTest                  Event = "test"
)

// Payload carries event fields such as "jobID", "diagramType" and "error".
type Payload map[string]any

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op one when
// notifications.ntfy_topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: cfg.NotificationTimeout()},
		notifyFailures: cfg.Notifications.NotifyFailures,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	notifyFailures bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	label := jobLabel(payload)
	switch event {
	case EventJobCompleted:
		return message{
			title: "tikzflow - Diagram Ready",
			body:  fmt.Sprintf("TikZ ready with preview: %s", label),
			tags:  []string{"tikzflow", "convert", "completed"},
		}, true
	case EventJobCompletedNoPreview:
		return message{
			title: "tikzflow - Diagram Ready (no preview)",
			body:  fmt.Sprintf("TikZ ready, preview render failed: %s", label),
			tags:  []string{"tikzflow", "convert", "warning"},
		}, true
	case EventJobFailed:
		if !n.notifyFailures {
			return message{}, false
		}
		body := fmt.Sprintf("Conversion failed: %s", label)
		if reason := payload.str("error"); reason != "" {
			body += "\n" + reason
		}
		return message{
			title:    "tikzflow - Conversion Failed",
			body:     body,
			tags:     []string{"tikzflow", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "tikzflow - Test",
			body:     "Notification system test",
			tags:     []string{"tikzflow", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func jobLabel(payload Payload) string {
	id := payload.str("jobID")
	if id == "" {
		id = "unknown job"
	}
	if kind := payload.str("diagramType"); kind != "" {
		return fmt.Sprintf("%s (%s)", id, kind)
	}
	return id
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
