// Package acquire turns an ordered list of candidate sources into one audio
// file, falling back to the next candidate whenever an attempt fails.
package acquire

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"spotifydl/internal/logger"
	"spotifydl/internal/segments"
	"spotifydl/internal/youtube"
	"spotifydl/pkg/utils"
)

// Streamer opens the remote audio stream of a candidate.
type Streamer interface {
	Stream(ctx context.Context, url string) (io.ReadCloser, error)
}

// Transcoder writes in to dest, applying graph when it is not empty.
type Transcoder interface {
	Transcode(ctx context.Context, in io.Reader, graph, dest string) error
}

// Engine drives candidates through stream and transcode.
type Engine struct {
	Streamer   Streamer
	Transcoder Transcoder
	// Segments is optional; without it nothing is suppressed.
	Segments   segments.Provider
	Categories []string
	// Timeout bounds one candidate attempt. Zero means no bound.
	Timeout time.Duration
	Logger  *logger.Logger

	// SourceID maps a candidate URL to the segment provider key.
	SourceID func(url string) string
}

// New creates an Engine for YouTube candidates.
func New(s Streamer, t Transcoder, p segments.Provider, categories []string, timeout time.Duration, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		Streamer:   s,
		Transcoder: t,
		Segments:   p,
		Categories: categories,
		Timeout:    timeout,
		Logger:     log,
		SourceID:   youtube.VideoID,
	}
}

// Acquire tries candidates strictly in order and reports whether one of them
// produced dest. Individual failures are logged, not returned.
func (e *Engine) Acquire(ctx context.Context, candidates []string, dest string) bool {
	for i, url := range candidates {
		if ctx.Err() != nil {
			return false
		}

		graph := e.plan(ctx, url).FilterGraph()
		if err := e.attempt(ctx, url, graph, dest); err != nil {
			e.Logger.Warn("Candidate %d/%d failed (%s): %v", i+1, len(candidates), url, err)
			continue
		}
		e.Logger.Debug("Acquired %s from %s", dest, url)
		return true
	}
	return false
}

// plan computes the suppression plan for a candidate. Provider failures mean
// no suppression.
func (e *Engine) plan(ctx context.Context, url string) segments.Plan {
	if e.Segments == nil || e.SourceID == nil {
		return segments.NewPlan(nil)
	}
	id := e.SourceID(url)
	if id == "" {
		return segments.NewPlan(nil)
	}
	skips, err := e.Segments.Segments(ctx, id, e.Categories)
	if err != nil {
		e.Logger.Debug("No skip segments for %s: %v", id, err)
		return segments.NewPlan(nil)
	}
	p := segments.NewPlan(skips)
	if p.Suppresses() {
		e.Logger.Debug("Suppressing %d skip intervals in %s", len(skips), id)
	}
	return p
}

func (e *Engine) attempt(ctx context.Context, url, graph, dest string) (err error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	tmp := dest + ".part"
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	stream, err := e.Streamer.Stream(ctx, url)
	if err != nil {
		return err
	}
	terr := e.Transcoder.Transcode(ctx, stream, graph, tmp)
	cerr := stream.Close()
	if terr != nil {
		return terr
	}
	if cerr != nil {
		return cerr
	}
	if ctx.Err() != nil {
		return fmt.Errorf("attempt timed out: %w", ctx.Err())
	}
	if err := utils.MoveFile(tmp, dest); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}
