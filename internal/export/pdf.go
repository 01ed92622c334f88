package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"tikzflow/internal/config"
	"tikzflow/internal/fileutil"
	"tikzflow/internal/services"
	"tikzflow/internal/stage"
)

const (
	marginSide   = 72.0
	marginTop    = 72.0
	marginBottom = 18.0
	maxImageW    = 6.5 * 72
	codeIndent   = 20.0
)

// PDFConfig controls document layout.
type PDFConfig struct {
	OutputDir    string
	PageSize     string
	DefaultTitle string
}

// PDFExporter packages a rendered preview, and optionally its markup, into
// a PDF document.
type PDFExporter struct {
	cfg PDFConfig
	now func() time.Time
}

// NewPDFExporter returns an exporter writing into cfg.OutputDir.
func NewPDFExporter(cfg PDFConfig) *PDFExporter {
	if strings.TrimSpace(cfg.PageSize) == "" {
		cfg.PageSize = "A4"
	}
	if strings.TrimSpace(cfg.DefaultTitle) == "" {
		cfg.DefaultTitle = "Physics Diagram"
	}
	return &PDFExporter{cfg: cfg, now: time.Now}
}

// New builds the exporter described by cfg.
func New(cfg *config.Config) *PDFExporter {
	return NewPDFExporter(PDFConfig{
		OutputDir:    cfg.Paths.ExportDir,
		PageSize:     cfg.Export.PageSize,
		DefaultTitle: cfg.Export.DefaultTitle,
	})
}

// Export writes diagram_<timestamp>.pdf and returns its location.
func (e *PDFExporter) Export(ctx context.Context, req stage.ExportRequest) (stage.ExportResult, error) {
	if err := ctx.Err(); err != nil {
		return stage.ExportResult{}, err
	}
	img, err := os.ReadFile(req.ArtifactPath)
	if err != nil {
		return stage.ExportResult{}, services.Wrap(services.ErrNotFound, "export", "read artifact", "Preview image not found", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return stage.ExportResult{}, services.Wrap(services.ErrValidation, "export", "decode artifact",
			fmt.Sprintf("unsupported preview %s", filepath.Base(req.ArtifactPath)), err)
	}

	now := e.now()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = e.cfg.DefaultTitle
	}

	doc := fpdf.New("P", "pt", e.cfg.PageSize, "")
	doc.SetMargins(marginSide, marginTop, marginSide)
	doc.SetAutoPageBreak(true, marginBottom)
	doc.SetTitle(title, true)
	doc.SetCreator("tikzflow", true)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.AddPage()
	pageW, pageH := doc.GetPageSize()
	contentW := pageW - 2*marginSide

	doc.SetFont("Helvetica", "B", 24)
	doc.SetTextColor(0x2C, 0x3E, 0x50)
	doc.MultiCell(contentW, 30, tr(title), "", "C", false)
	doc.Ln(14.4)

	doc.SetFont("Helvetica", "", 10)
	doc.SetTextColor(0x7F, 0x8C, 0x8D)
	doc.CellFormat(contentW, 12, "Generated on "+now.Format("2006-01-02 15:04:05"), "", 1, "C", false, 0, "")
	doc.Ln(36)

	drawW := min(float64(cfg.Width), maxImageW, contentW)
	drawH := drawW * float64(cfg.Height) / float64(cfg.Width)
	if avail := pageH - doc.GetY() - marginBottom; drawH > avail && avail > 0 {
		drawW *= avail / drawH
		drawH = avail
	}
	opts := fpdf.ImageOptions{ImageType: strings.ToUpper(format), ReadDpi: false}
	doc.RegisterImageOptionsReader("preview", opts, bytes.NewReader(img))
	doc.ImageOptions("preview", marginSide+(contentW-drawW)/2, doc.GetY(), drawW, drawH, false, opts, 0, "")
	doc.SetY(doc.GetY() + drawH + 36)

	if code := strings.TrimSpace(req.Markup); code != "" {
		doc.SetFont("Helvetica", "B", 16)
		doc.SetTextColor(0, 0, 0)
		doc.CellFormat(contentW, 20, "TikZ Source Code:", "", 1, "L", false, 0, "")
		doc.Ln(14.4)
		doc.SetFont("Courier", "", 8)
		doc.SetTextColor(0x2C, 0x3E, 0x50)
		doc.SetFillColor(0xEC, 0xF0, 0xF1)
		doc.SetX(marginSide + codeIndent)
		doc.MultiCell(contentW-2*codeIndent, 10, tr(code), "", "L", true)
	}
	if err := doc.Error(); err != nil {
		return stage.ExportResult{}, fmt.Errorf("build pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return stage.ExportResult{}, fmt.Errorf("encode pdf: %w", err)
	}
	path, err := fileutil.ReserveUniquePath(filepath.Join(e.cfg.OutputDir, "diagram_"+now.Format("20060102_150405")+".pdf"))
	if err != nil {
		return stage.ExportResult{}, err
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		_ = os.Remove(path)
		return stage.ExportResult{}, fmt.Errorf("write pdf: %w", err)
	}
	return stage.ExportResult{Path: path, Filename: filepath.Base(path)}, nil
}

// HealthCheck verifies the export directory is usable.
func (e *PDFExporter) HealthCheck(context.Context) stage.Health {
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return stage.Unhealthy("pdf export", err.Error())
	}
	return stage.Healthy("pdf export")
}
