package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogsCommandFiltersByJob(t *testing.T) {
	env := newConfigOnlyEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	content := strings.Join([]string{
		`{"msg":"daemon started"}`,
		`{"msg":"conversion submitted","job_id":"img1"}`,
		`{"msg":"conversion submitted","job_id":"img2"}`,
		`{"msg":"conversion finished","job_id":"img1"}`,
		"",
	}, "\n")
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, "tikzflow.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, env, "logs", "--job", "img1")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Count(out, "\n") != 2 || strings.Contains(out, "img2") {
		t.Fatalf("unexpected filtered output:\n%s", out)
	}

	out, _, err = runCLI(t, env, "logs", "-n", "1")
	if err != nil {
		t.Fatalf("logs -n 1: %v", err)
	}
	requireContains(t, out, "conversion finished")
	if strings.Contains(out, "daemon started") {
		t.Fatalf("expected only the last line, got:\n%s", out)
	}
}

func TestLogsCommandWithoutLogFile(t *testing.T) {
	env := newConfigOnlyEnv(t)
	out, errOut, err := runCLI(t, env, "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "" {
		t.Fatalf("expected no output, got %q", out)
	}
	requireContains(t, errOut, "No log file at")
}

func TestNotifyTestCommand(t *testing.T) {
	env := newConfigOnlyEnv(t)
	if _, _, err := runCLI(t, env, "notify-test"); err == nil || !strings.Contains(err.Error(), "ntfy_topic is not configured") {
		t.Fatalf("expected missing topic error, got %v", err)
	}

	var title, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("Title")
		data, _ := io.ReadAll(r.Body)
		body = string(data)
	}))
	defer server.Close()

	file, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	if _, err := file.WriteString("\n[notifications]\nntfy_topic = \"" + server.URL + "/tikzflow\"\n"); err != nil {
		t.Fatalf("append config: %v", err)
	}
	_ = file.Close()

	out, _, err := runCLI(t, env, "notify-test")
	if err != nil {
		t.Fatalf("notify-test: %v", err)
	}
	requireContains(t, out, "Test notification sent to")
	if title != "tikzflow - Test" || body != "Notification system test" {
		t.Fatalf("unexpected notification %q / %q", title, body)
	}
}
