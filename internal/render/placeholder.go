package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"path/filepath"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"tikzflow/internal/diagram"
	"tikzflow/internal/fileutil"
	"tikzflow/internal/stage"
)

const (
	placeholderWidth   = 800
	placeholderHeight  = 600
	placeholderCaption = "TikZ Diagram Preview"
)

// Placeholder produces a fixed preview image without compiling the markup.
// It stands in for the LaTeX toolchain on hosts that lack one.
type Placeholder struct {
	outputDir string
	newID     func() string
}

// NewPlaceholder returns a placeholder renderer writing to outputDir.
func NewPlaceholder(outputDir string) *Placeholder {
	return &Placeholder{outputDir: outputDir, newID: func() string { return uuid.NewString() }}
}

// Render writes <id>.pdf for PDF requests and <id>.png otherwise.
func (p *Placeholder) Render(ctx context.Context, markup string, format stage.Format) (stage.RenderResult, error) {
	if err := ctx.Err(); err != nil {
		return stage.RenderResult{}, err
	}
	if err := diagram.ValidateTikZ(markup); err != nil {
		return stage.RenderResult{}, err
	}
	img, err := placeholderPNG()
	if err != nil {
		return stage.RenderResult{}, err
	}

	id := p.newID()
	result := stage.RenderResult{ID: id, Format: stage.FormatPNG, Placeholder: true}
	if format == stage.FormatPDF {
		result.Format = stage.FormatPDF
		result.Path = filepath.Join(p.outputDir, id+".pdf")
		data, err := pngToPDF(img)
		if err != nil {
			return stage.RenderResult{}, err
		}
		if err := fileutil.WriteFileAtomic(result.Path, data, 0o644); err != nil {
			return stage.RenderResult{}, fmt.Errorf("write placeholder: %w", err)
		}
		return result, nil
	}
	result.Path = filepath.Join(p.outputDir, id+".png")
	if err := fileutil.WriteFileAtomic(result.Path, img, 0o644); err != nil {
		return stage.RenderResult{}, fmt.Errorf("write placeholder: %w", err)
	}
	return result, nil
}

func placeholderPNG() ([]byte, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	black := color.Black
	const inset, stroke = 10, 2
	for d := 0; d < stroke; d++ {
		for x := inset; x <= placeholderWidth-inset; x++ {
			canvas.Set(x, inset+d, black)
			canvas.Set(x, placeholderHeight-inset-d, black)
		}
		for y := inset; y <= placeholderHeight-inset; y++ {
			canvas.Set(inset+d, y, black)
			canvas.Set(placeholderWidth-inset-d, y, black)
		}
	}

	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: canvas, Src: image.NewUniform(black), Face: face}
	width := drawer.MeasureString(placeholderCaption).Round()
	height := face.Metrics().Ascent.Round()
	drawer.Dot = fixed.P((placeholderWidth-width)/2, (placeholderHeight+height)/2)
	drawer.DrawString(placeholderCaption)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

func pngToPDF(img []byte) ([]byte, error) {
	w, h := float64(placeholderWidth)*0.75, float64(placeholderHeight)*0.75
	doc := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt", Size: fpdf.SizeType{Wd: w, Ht: h}})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader("placeholder", opts, bytes.NewReader(img))
	doc.ImageOptions("placeholder", 0, 0, w, h, false, opts, 0, "")
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("encode placeholder pdf: %w", err)
	}
	return buf.Bytes(), nil
}
