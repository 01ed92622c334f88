package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"tikzflow/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckConversionAPI_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := CheckConversionAPI(context.Background(), srv.URL, "good-key")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckConversionAPI_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckConversionAPI(context.Background(), srv.URL, "bad-key")
	if result.Passed || result.Detail != "auth failed (invalid api key)" {
		t.Fatalf("expected auth failure, got %+v", result)
	}
}

func TestCheckConversionAPI_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if result := CheckConversionAPI(context.Background(), srv.URL, "key"); result.Passed {
		t.Fatal("expected failure for 502")
	}
}

func TestCheckConversionAPI_MissingFields(t *testing.T) {
	if result := CheckConversionAPI(context.Background(), "", "key"); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
	if result := CheckConversionAPI(context.Background(), "http://localhost", ""); result.Passed {
		t.Fatal("expected failure for missing key")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_TemplateProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.UploadDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.ExportDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()

	results := RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 directory checks, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesConversionAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.UploadDir = t.TempDir()
	cfg.Paths.OutputDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.ExportDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Conversion.Provider = config.ConversionProviderDaTikZ
	cfg.Conversion.APIURL = srv.URL
	cfg.Conversion.APIKey = "test"

	results := RunAll(context.Background(), &cfg)
	if len(results) != 5 || results[4].Name != "Conversion API" || !results[4].Passed {
		t.Fatalf("expected passing conversion API check, got %+v", results)
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Output directory" {
		t.Fatalf("expected only the output directory to fail, got %+v", failed)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	binDir := t.TempDir()
	for _, name := range []string{"pdflatex", "pdftoppm"} {
		if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", binDir)

	cfg := config.Default()
	cfg.Render.PlaceholderFallback = false
	statuses := CheckSystemDeps(&cfg)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Available || statuses[0].Optional {
		t.Fatalf("expected required engine available, got %+v", statuses[0])
	}
	if statuses[2].Available || !statuses[2].Optional {
		t.Fatalf("expected optional svg converter missing, got %+v", statuses[2])
	}
}
