package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tikzflow/internal/jobs"
	"tikzflow/internal/notifications"
	"tikzflow/internal/stage"
)

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
	err      error
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return r.err
}

func newNotifyingOrchestrator(t *testing.T, conv stage.Converter, rend stage.Renderer, notifier notifications.Service) *Orchestrator {
	t.Helper()
	orch := New(Deps{
		Registry:  jobs.NewMemoryRegistry(),
		Images:    stubImages{paths: map[string]string{"img1": "/uploads/img1.png"}},
		Converter: conv,
		Renderer:  rend,
		Exporter:  &stubExporter{},
		Notifier:  notifier,
	}, WithOutputDir("/outputs"))
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(orch.Stop)
	return orch
}

func TestTerminalOutcomesPublishNotifications(t *testing.T) {
	cases := []struct {
		name  string
		conv  stage.Converter
		rend  stage.Renderer
		event notifications.Event
	}{
		{"completed", staticConverter(validMarkup, nil), staticRenderer("/outputs/A.png", nil), notifications.EventJobCompleted},
		{"no preview", staticConverter(validMarkup, nil), staticRenderer("", errors.New("no latex")), notifications.EventJobCompletedNoPreview},
		{"failed", staticConverter("", errors.New("bad scan")), staticRenderer("/outputs/A.png", nil), notifications.EventJobFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			orch := newNotifyingOrchestrator(t, tc.conv, tc.rend, notifier)
			if _, err := orch.Submit(context.Background(), SubmitRequest{ImageID: "img1"}); err != nil {
				t.Fatalf("Submit: %v", err)
			}
			orch.Wait()

			notifier.mu.Lock()
			defer notifier.mu.Unlock()
			if len(notifier.events) != 1 || notifier.events[0] != tc.event {
				t.Fatalf("expected single %s event, got %v", tc.event, notifier.events)
			}
			if notifier.payloads[0]["jobID"] != "img1" || notifier.payloads[0]["diagramType"] != "general" {
				t.Fatalf("unexpected payload %v", notifier.payloads[0])
			}
		})
	}
}

func TestNotificationErrorDoesNotAffectJob(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("ntfy down")}
	orch := newNotifyingOrchestrator(t, staticConverter(validMarkup, nil), staticRenderer("/outputs/A.png", nil), notifier)
	sub, err := orch.Submit(context.Background(), SubmitRequest{ImageID: "img1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	orch.Wait()
	if !sub.Handle.Applied() {
		t.Fatal("expected terminal update to apply")
	}
	job, err := orch.Job(context.Background(), "img1")
	if err != nil || job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed job, got %+v, %v", job, err)
	}
}
