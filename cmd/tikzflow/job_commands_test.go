package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tikzflow/internal/api"
	"tikzflow/internal/jobs"
	"tikzflow/internal/testsupport"
)

func TestUploadConvertExportWorkflow(t *testing.T) {
	env := setupCLITestEnv(t)
	env.start(t)

	image := filepath.Join(env.baseDir, "sketch.png")
	testsupport.WritePNG(t, image)

	out, _, err := runCLI(t, env, "upload", image)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, out, "Uploaded sketch.png\n")
	requireContains(t, out, "Image ID: ")

	out, _, err = runCLI(t, env, "--json", "convert", image, "--wait", "--type", "mechanics", "--hint", "block on ramp")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	var job api.Job
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode job: %v\n%s", err, out)
	}
	if job.Status != string(jobs.StatusCompleted) || !job.HasPreview {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.DiagramType != "mechanics" {
		t.Fatalf("diagram type = %q", job.DiagramType)
	}

	out, _, err = runCLI(t, env, "job", job.ID)
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	requireContains(t, out, "Completed")
	requireContains(t, out, `\begin{tikzpicture}`)

	out, _, err = runCLI(t, env, "jobs", "--status", "completed")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	requireContains(t, out, job.ID)

	if _, _, err := runCLI(t, env, "jobs", "--status", "bogus"); err == nil || !strings.Contains(err.Error(), "unknown job status") {
		t.Fatalf("expected status validation error, got %v", err)
	}

	pdfPath := filepath.Join(env.baseDir, "out", "diagram.pdf")
	out, _, err = runCLI(t, env, "export", job.ID, "--include-code", "--title", "Incline", "-o", pdfPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, "Saved to "+pdfPath)
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		t.Fatalf("read exported pdf: %v", err)
	}
	if !strings.HasPrefix(string(data), "%PDF") {
		t.Fatalf("exported file is not a PDF")
	}

	reportPath := filepath.Join(env.baseDir, "report.xlsx")
	out, _, err = runCLI(t, env, "report", "-o", reportPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	requireContains(t, out, "Wrote job report")
	data, err = os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.HasPrefix(string(data), "PK") {
		t.Fatalf("report is not an xlsx archive")
	}

	if _, _, err := runCLI(t, env, "job", "missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 for unknown job, got %v", err)
	}
}

func TestRenderCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.start(t)

	source := filepath.Join(env.baseDir, "figure.tex")
	if err := os.WriteFile(source, []byte(testsupport.SampleMarkup), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, env, "--json", "render", source, "--format", "png")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	var resp api.RenderResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode render response: %v\n%s", err, out)
	}
	if resp.Format != "png" || resp.OutputURL == "" {
		t.Fatalf("unexpected render response %+v", resp)
	}

	if _, _, err := runCLI(t, env, "render", source, "--format", "gif"); err == nil {
		t.Fatal("expected format validation error")
	}
}

func TestAPICommandsWithoutDaemon(t *testing.T) {
	env := newConfigOnlyEnv(t)
	env.apiURL = "http://127.0.0.1:1"

	_, _, err := runCLI(t, env, "jobs")
	if err == nil || !strings.Contains(err.Error(), "tikzflow start") {
		t.Fatalf("expected start hint, got %v", err)
	}

	_, _, err = runCLI(t, env, "upload", filepath.Join(env.baseDir, "missing.png"))
	if err == nil || strings.Contains(err.Error(), "tikzflow start") {
		t.Fatalf("expected local file error, got %v", err)
	}
}
