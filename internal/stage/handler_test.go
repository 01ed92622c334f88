package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"tikzflow/internal/services"
)

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatPNG, "PNG": FormatPNG, " pdf ": FormatPDF, "svg": FormatSVG}
	for raw, want := range cases {
		got, err := ParseFormat(raw)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseFormat("gif"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClassifyWrapsPlainErrorsAsProvider(t *testing.T) {
	cause := errors.New("bad scan")
	err := Classify(context.Background(), "convert", "datikz", cause)
	if !errors.Is(err, services.ErrProvider) || !errors.Is(err, cause) {
		t.Fatalf("expected provider marker with cause, got %v", err)
	}
	if services.Message(err) != "bad scan" {
		t.Fatalf("leaf message lost: %q", services.Message(err))
	}
}

func TestClassifyKeepsExistingMarker(t *testing.T) {
	marked := services.Wrap(services.ErrValidation, "diagram", "validate", "markup is empty", nil)
	if got := Classify(context.Background(), "convert", "template", marked); got != marked {
		t.Fatalf("expected error to pass through unchanged, got %v", got)
	}
}

func TestClassifyDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	err := Classify(ctx, "render", "pdflatex", errors.New("signal: killed"))
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
	if Classify(ctx, "render", "pdflatex", nil) != nil {
		t.Fatal("nil error should stay nil")
	}
}

type readyStub struct{ ready bool }

func (s readyStub) HealthCheck(context.Context) Health {
	if s.ready {
		return Health{Ready: true}
	}
	return Unhealthy("latex", "pdflatex not found")
}

func TestCheck(t *testing.T) {
	if h := Check(context.Background(), "template", struct{}{}); !h.Ready || h.Name != "template" {
		t.Fatalf("expected default healthy record, got %+v", h)
	}
	if h := Check(context.Background(), "render", readyStub{ready: true}); h.Name != "render" || !h.Ready {
		t.Fatalf("expected name filled in, got %+v", h)
	}
	if h := Check(context.Background(), "render", readyStub{}); h.Ready || h.Name != "latex" {
		t.Fatalf("expected unhealthy record, got %+v", h)
	}
}
