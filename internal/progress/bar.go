// Package progress renders a single-line run progress bar.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"spotifydl/internal/model"
)

const barWidth = 30

// Bar tracks item outcomes across all lists of a run. The total grows as
// lists are expanded.
type Bar struct {
	out       io.Writer
	redraw    bool
	mu        sync.Mutex
	total     int
	counts    map[model.Status]int
	bytes     int64
	startTime time.Time
	lastPrint time.Time
	done      bool
}

// New creates a Bar writing to w. The bar redraws in place only when w is a terminal;
// otherwise it prints nothing until Finish.
func New(w io.Writer) *Bar {
	redraw := false
	if f, ok := w.(*os.File); ok {
		redraw = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Bar{
		out:       w,
		redraw:    redraw,
		counts:    make(map[model.Status]int),
		startTime: time.Now(),
	}
}

// AddTotal grows the expected item count.
func (b *Bar) AddTotal(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += n
}

// Observe records one finished item.
func (b *Bar) Observe(out model.Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts[out.Status]++
	b.bytes += out.Size

	// Update display every 500ms or when complete
	now := time.Now()
	if now.Sub(b.lastPrint) > 500*time.Millisecond || b.current() >= b.total {
		b.render()
		b.lastPrint = now
	}
}

// Finish prints the final state and ends the line.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return
	}
	if !b.redraw {
		fmt.Fprintln(b.out, b.line())
	} else {
		b.render()
		fmt.Fprintln(b.out)
	}
	b.done = true
}

func (b *Bar) current() int {
	return b.counts[model.StatusSucceeded] + b.counts[model.StatusCached] + b.counts[model.StatusFailed]
}

func (b *Bar) render() {
	if b.done || !b.redraw {
		return
	}
	fmt.Fprintf(b.out, "\r%s   ", b.line())
}

func (b *Bar) line() string {
	current := b.current()
	elapsed := time.Since(b.startTime)

	var pct float64
	filled := 0
	if b.total > 0 {
		pct = float64(current) / float64(b.total) * 100
		filled = min(barWidth, barWidth*current/b.total)
	}

	var eta time.Duration
	if current > 0 && b.total > current {
		eta = elapsed / time.Duration(current) * time.Duration(b.total-current)
	}

	return fmt.Sprintf("[%s%s] %d/%d (%.1f%%) ok %d, cached %d, failed %d - %s - Elapsed: %s - ETA: %s",
		strings.Repeat("█", filled),
		strings.Repeat("░", barWidth-filled),
		current, b.total, pct,
		b.counts[model.StatusSucceeded],
		b.counts[model.StatusCached],
		b.counts[model.StatusFailed],
		humanize.Bytes(uint64(b.bytes)),
		formatDuration(elapsed),
		formatDuration(eta),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
