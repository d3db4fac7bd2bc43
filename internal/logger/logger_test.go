package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, false)

	l.Info("fetched %d items", 3)
	l.Debug("hidden")
	l.Warn("retrying in %s", "5s")
	l.Error("boom")

	out := buf.String()
	if !strings.Contains(out, "fetched 3 items\n") {
		t.Errorf("missing info line: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line leaked in non-verbose mode: %q", out)
	}
	if !strings.Contains(out, "[WARN] retrying in 5s") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] boom") {
		t.Errorf("missing error line: %q", out)
	}
}

func TestProgressBarSuppressesStdout(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, false)
	l.SetProgressBar(true)
	l.Info("quiet")
	if buf.Len() != 0 {
		t.Errorf("expected no output while bar is active, got %q", buf.String())
	}
}

func TestFileLogIncludesDebugAndRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l := NewWriter(&bytes.Buffer{}, false)
	l.SetRunID("run-1")
	if err := l.SetFileLog(path); err != nil {
		t.Fatal(err)
	}
	l.Debug("detail %d", 7)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != "[run-1] [DEBUG] detail 7\n" {
		t.Errorf("file log = %q", got)
	}
}
