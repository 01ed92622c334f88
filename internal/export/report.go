package export

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"tikzflow/internal/jobs"
)

const reportSheet = "Jobs"

var reportHeaders = []string{
	"Job ID",
	"Status",
	"Diagram Type",
	"Template",
	"Preview",
	"Error",
	"Created",
	"Updated",
	"Generation",
}

// JobsReport renders list as an XLSX workbook.
func JobsReport(list []*jobs.Job) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for i, h := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(reportSheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(reportSheet, 1, 1, style)
	}

	for idx, job := range list {
		row := idx + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(reportSheet, cell, v)
		}
		write(1, job.ID)
		write(2, string(job.Status))
		write(3, job.DiagramType)
		write(4, job.TemplateID)
		write(5, job.ArtifactRef)
		write(6, truncate(job.ErrorMessage, 140))
		write(7, job.CreatedAt.Format("2006-01-02 15:04:05"))
		write(8, job.UpdatedAt.Format("2006-01-02 15:04:05"))
		write(9, strconv.FormatUint(job.Generation, 10))
	}

	_ = f.SetColWidth(reportSheet, "A", "A", 38)
	_ = f.SetColWidth(reportSheet, "B", "D", 20)
	_ = f.SetColWidth(reportSheet, "E", "E", 44)
	_ = f.SetColWidth(reportSheet, "F", "F", 48)
	_ = f.SetColWidth(reportSheet, "G", "H", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
