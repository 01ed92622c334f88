package stage

import (
	"context"
	"fmt"
	"strings"

	"tikzflow/internal/diagram"
	"tikzflow/internal/services"
)

// Format selects the artifact a Renderer produces.
type Format string

const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
	FormatSVG Format = "svg"
)

// ParseFormat normalizes raw into a Format. Blank input selects PNG.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatPNG, nil
	case FormatPNG, FormatPDF, FormatSVG:
		return f, nil
	default:
		return "", services.Wrap(services.ErrValidation, "render", "parse format",
			fmt.Sprintf("unsupported format %q", raw), nil)
	}
}

// ConvertRequest carries everything a Converter needs for one image.
type ConvertRequest struct {
	ImageID     string
	ImagePath   string
	DiagramType diagram.Type
	Hint        string
	TemplateID  string
}

// RenderResult describes a rendered artifact on disk.
type RenderResult struct {
	ID          string
	Path        string
	Format      Format
	Placeholder bool
}

// ExportRequest asks an Exporter to package an artifact. Markup is empty
// when the caller did not ask for the source to be included.
type ExportRequest struct {
	ArtifactPath string
	Markup       string
	Title        string
}

// ExportResult points at the produced document.
type ExportResult struct {
	Path     string
	Filename string
}

// ImageResolver maps an uploaded image id to its stored file.
type ImageResolver interface {
	Resolve(ctx context.Context, imageID string) (string, error)
}

// Converter turns an image into TikZ markup.
type Converter interface {
	Convert(ctx context.Context, req ConvertRequest) (string, error)
}

// Renderer turns markup into a preview artifact.
type Renderer interface {
	Render(ctx context.Context, markup string, format Format) (RenderResult, error)
}

// Exporter packages a rendered artifact into a portable document.
type Exporter interface {
	Export(ctx context.Context, req ExportRequest) (ExportResult, error)
}

// HealthChecker is implemented by providers that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Classify tags a provider error for the orchestrator. Errors that already
// carry a marker pass through; deadline expiry becomes ErrTimeout and
// everything else ErrProvider.
func Classify(ctx context.Context, stageName, operation string, err error) error {
	if err == nil {
		return nil
	}
	if ctx != nil && ctx.Err() == context.DeadlineExceeded {
		return services.Wrap(services.ErrTimeout, stageName, operation, "deadline exceeded", err)
	}
	if services.Kind(err) != "internal" {
		return err
	}
	return services.Wrap(services.ErrProvider, stageName, operation, "", err)
}
