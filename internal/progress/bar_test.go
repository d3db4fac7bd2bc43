package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"spotifydl/internal/model"
)

func TestBarCountsOutcomes(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)
	b.AddTotal(2)
	b.AddTotal(2)

	b.Observe(model.Outcome{Status: model.StatusSucceeded, Size: 3_000_000})
	b.Observe(model.Outcome{Status: model.StatusCached})
	b.Observe(model.Outcome{Status: model.StatusFailed})

	if buf.Len() != 0 {
		t.Errorf("non-terminal writer should not redraw, got %q", buf.String())
	}

	b.Finish()
	b.Finish()

	out := buf.String()
	for _, want := range []string{"3/4", "(75.0%)", "ok 1, cached 1, failed 1", "3.0 MB"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("Finish should print once, got %q", out)
	}
}

func TestBarEmpty(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Finish()
	if !strings.Contains(buf.String(), "0/0 (0.0%)") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 7*time.Second, "3m7s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
