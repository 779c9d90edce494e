package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"packager/internal/apperrors"
	"packager/internal/archive"
	"packager/internal/pipeline"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
)

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"mqtt.c":                  "int main;",
		"lib/net.c":               "net",
		"package.json":            "{}",
		"node_modules/x/index.js": "x",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// runApp runs the CLI with args and returns what it printed to stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PACK_CALLBACK_URL", "")
	t.Setenv("PACK_METRICS_FILE", "")

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).RunContext(context.Background(), append([]string{"packager"}, args...))
	return stdout.String(), err
}

func TestApp_DefaultTask(t *testing.T) {
	dir := writeProject(t)

	if _, err := runApp(t, "--root", dir); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mqtt.zip")); err != nil {
		t.Errorf("archive not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "build", "package.json")); !os.IsNotExist(err) {
		t.Errorf("build/package.json should have been thinned, stat err = %v", err)
	}
}

func TestApp_List(t *testing.T) {
	dir := writeProject(t)
	if _, err := runApp(t, "--root", dir, "default"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out, err := runApp(t, "--root", dir, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	got := strings.Fields(out)
	want := []string{"lib/", "lib/net.c", "mqtt.c"}
	if !slices.Equal(got, want) {
		t.Errorf("list = %v, want %v", got, want)
	}
}

func TestApp_SubTask(t *testing.T) {
	dir := writeProject(t)

	if _, err := runApp(t, "--root", dir, "copy"); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "build", "package.json")); err != nil {
		t.Errorf("copy should stage package.json: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mqtt.zip")); !os.IsNotExist(err) {
		t.Errorf("copy should not write the archive, stat err = %v", err)
	}
}

func TestApp_Report(t *testing.T) {
	dir := writeProject(t)

	out, err := runApp(t, "--root", dir, "--report")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	var report pipeline.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, out)
	}
	if report.State != pipeline.StateDone {
		t.Errorf("State = %q, want done", report.State)
	}
	if got := report.Ran(); !slices.Equal(got, []string{"clean", "copy", "thin", "compress"}) {
		t.Errorf("Ran() = %v", got)
	}
}

func TestApp_ArchiveFromEnv(t *testing.T) {
	dir := writeProject(t)
	t.Setenv("PACK_ARCHIVE", "dist.zip")

	if _, err := runApp(t, "--root", dir); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "dist.zip")); err != nil {
		t.Errorf("archive not written at PACK_ARCHIVE: %v", err)
	}
}

func TestApp_Exclude(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"default list", nil, []string{"lib/net.c", "mqtt.c"}},
		{"flag replaces defaults", []string{"--exclude", "lib"}, []string{"mqtt.c", "node_modules/x/index.js", "package.json"}},
		{"repeated flag", []string{"--exclude", "lib", "--exclude", "package.json"}, []string{"mqtt.c", "node_modules/x/index.js"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t)
			args := append([]string{"--root", dir}, tt.args...)
			if _, err := runApp(t, args...); err != nil {
				t.Fatalf("run failed: %v", err)
			}

			entries, err := archive.List(osfs.New(dir), "mqtt.zip")
			if err != nil {
				t.Fatalf("List() failed: %v", err)
			}
			if got := archive.Files(entries); !slices.Equal(got, tt.want) {
				t.Errorf("archive files = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApp_MetricsFile(t *testing.T) {
	dir := writeProject(t)
	metricsFile := filepath.Join(t.TempDir(), "pack.prom")

	if _, err := runApp(t, "--root", dir, "--metrics-file", metricsFile); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), `stage="compress"`) {
		t.Errorf("metrics file has no compress samples:\n%s", data)
	}
}

func TestApp_Errors(t *testing.T) {
	dir := writeProject(t)
	file := filepath.Join(dir, "mqtt.c")

	tests := []struct {
		name     string
		args     []string
		sentinel error
		exitCode int
	}{
		{"unknown task", []string{"--root", dir, "deploy"}, apperrors.ErrUnknownTask, 2},
		{"extra argument", []string{"--root", dir, "thin", "deploy"}, apperrors.ErrUnknownTask, 2},
		{"level out of range", []string{"--root", dir, "--level", "12"}, apperrors.ErrValidation, 2},
		{"level not a number", []string{"--root", dir, "--level", "max"}, apperrors.ErrValidation, 2},
		{"undefined flag", []string{"--root", dir, "--bogus"}, apperrors.ErrValidation, 2},
		{"missing root", []string{"--root", filepath.Join(dir, "missing")}, apperrors.ErrValidation, 2},
		{"root is a file", []string{"--root", file}, apperrors.ErrValidation, 2},
		{"archive inside output", []string{"--root", dir, "--archive", "build/mqtt.zip"}, apperrors.ErrValidation, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("err = %v, want %v", err, tt.sentinel)
			}
			if got := apperrors.ExitCode(err); got != tt.exitCode {
				t.Errorf("ExitCode = %d, want %d", got, tt.exitCode)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, "mqtt.zip")); !os.IsNotExist(err) {
		t.Errorf("no failing invocation should write the archive, stat err = %v", err)
	}
}

func TestApp_ListMissingArchive(t *testing.T) {
	dir := writeProject(t)

	_, err := runApp(t, "--root", dir, "list")
	if err == nil {
		t.Fatal("list should fail without an archive")
	}
	if got := apperrors.ExitCode(err); got != 1 {
		t.Errorf("ExitCode = %d, want 1", got)
	}
}
