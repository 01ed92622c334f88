package convert

import (
	"context"
	"fmt"
	"os"
	"strings"

	"tikzflow/internal/diagram"
	"tikzflow/internal/services"
	"tikzflow/internal/stage"
	"tikzflow/internal/templates"
)

const generalSketch = `\begin{tikzpicture}[scale=1.5]
  % Generic physics diagram
  \draw[thick,->] (0,0) -- (3,0) node[right] {$x$};
  \draw[thick,->] (0,0) -- (0,3) node[above] {$y$};

  % Vector
  \draw[->,red,very thick] (0,0) -- (2,2) node[midway,above left] {$\vec{F}$};

  % Point
  \draw[fill] (1,1) circle (2pt) node[below right] {$P$};
\end{tikzpicture}`

// TemplateConverter answers conversions from the template catalog without
// looking at the image. It is the offline provider used when no recognition
// service is configured.
type TemplateConverter struct {
	catalog *templates.Catalog
}

// NewTemplateConverter returns a converter backed by catalog.
func NewTemplateConverter(catalog *templates.Catalog) *TemplateConverter {
	if catalog == nil {
		catalog = templates.Default()
	}
	return &TemplateConverter{catalog: catalog}
}

// Convert returns the requested template, or the first template for the
// diagram type, or a generic sketch.
func (c *TemplateConverter) Convert(ctx context.Context, req stage.ConvertRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := os.Stat(req.ImagePath); err != nil {
		return "", fmt.Errorf("image unavailable: %w", err)
	}

	var markup string
	switch {
	case strings.TrimSpace(req.TemplateID) != "":
		tpl, err := c.catalog.Get(req.TemplateID)
		if err != nil {
			return "", services.Wrap(services.ErrValidation, "convert", "template",
				fmt.Sprintf("template %q not found", req.TemplateID), nil)
		}
		markup = tpl.TikZCode
	default:
		if tpl, ok := c.catalog.First(req.DiagramType); ok {
			markup = tpl.TikZCode
		} else {
			markup = generalSketch
		}
	}
	if err := diagram.ValidateTikZ(markup); err != nil {
		return "", err
	}
	return markup, nil
}

// HealthCheck reports the catalog size.
func (c *TemplateConverter) HealthCheck(context.Context) stage.Health {
	if len(c.catalog.List()) == 0 {
		return stage.Unhealthy("template converter", "template catalog is empty")
	}
	return stage.Healthy("template converter")
}
