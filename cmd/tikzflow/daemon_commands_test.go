package main

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"tikzflow/internal/api"
)

func TestStartStatusAndTemplates(t *testing.T) {
	env := setupCLITestEnv(t)
	env.start(t)

	out, _, err := runCLI(t, env, "start")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	requireContains(t, out, "Daemon already running")

	out, _, err = runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Dependencies")
	requireContains(t, out, "No jobs")

	out, _, err = runCLI(t, env, "--json", "status")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if !status.Running || status.Templates == 0 {
		t.Fatalf("unexpected status %+v", status)
	}

	out, _, err = runCLI(t, env, "templates", "list", "--type", "mechanics")
	if err != nil {
		t.Fatalf("templates list: %v", err)
	}
	requireContains(t, out, "mechanics_incline")
	if strings.Contains(out, "optics_lens") {
		t.Fatalf("type filter ignored:\n%s", out)
	}

	out, _, err = runCLI(t, env, "templates", "show", "mechanics_pendulum")
	if err != nil {
		t.Fatalf("templates show: %v", err)
	}
	requireContains(t, out, "Simple Pendulum")
	requireContains(t, out, `\begin{tikzpicture}`)

	if _, _, err := runCLI(t, env, "templates", "show", "missing"); err == nil || !strings.Contains(err.Error(), "Template not found") {
		t.Fatalf("expected not found error, got %v", err)
	}

	out, _, err = runCLI(t, env, "templates", "reload")
	if err != nil {
		t.Fatalf("templates reload: %v", err)
	}
	requireContains(t, out, "Template catalog reloaded")
}

func TestStopWhenDaemonNotRunning(t *testing.T) {
	env := newConfigOnlyEnv(t)

	out, _, err := runCLI(t, env, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")

	out, _, err = runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("offline status: %v", err)
	}
	requireContains(t, out, "Not running")
}

func TestBuildJobStatusRows(t *testing.T) {
	rows := buildJobStatusRows(map[string]int{
		"failed":               1,
		"pending":              2,
		"completed_no_preview": 3,
		"processing":           0,
	})
	want := [][]string{
		{"Pending", "2"},
		{"Completed No Preview", "3"},
		{"Failed", "1"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
}
