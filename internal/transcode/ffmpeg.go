// Package transcode converts a fetched audio stream with ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"spotifydl/internal/segments"
)

type codec struct {
	muxer   string
	encoder string
	lossy   bool
}

var codecs = map[string]codec{
	"mp3":  {"mp3", "libmp3lame", true},
	"m4a":  {"ipod", "aac", true},
	"aac":  {"adts", "aac", true},
	"opus": {"opus", "libopus", true},
	"ogg":  {"ogg", "libvorbis", true},
	"flac": {"flac", "flac", false},
	"wav":  {"wav", "pcm_s16le", false},
}

// Supported reports whether format can be produced.
func Supported(format string) bool {
	_, ok := codecs[format]
	return ok
}

// FFmpeg transcodes stdin to a file.
type FFmpeg struct {
	Binary  string
	Format  string
	Bitrate string
}

// New creates an FFmpeg transcoder using ffmpeg from PATH.
func New(format, bitrate string) *FFmpeg {
	return &FFmpeg{Binary: "ffmpeg", Format: format, Bitrate: bitrate}
}

// Args builds the ffmpeg command line. graph is a filter_complex description
// whose output label is segments.OutputLabel, or "" for no filtering.
func (f *FFmpeg) Args(graph, dest string) ([]string, error) {
	c, ok := codecs[f.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported output format %q", f.Format)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
	}
	if graph != "" {
		args = append(args, "-filter_complex", graph, "-map", "["+segments.OutputLabel+"]")
	}
	args = append(args, "-c:a", c.encoder)
	if c.lossy && f.Bitrate != "" {
		args = append(args, "-b:a", f.Bitrate)
	}
	args = append(args, "-f", c.muxer, dest)
	return args, nil
}

// Transcode reads the source stream from in and writes dest.
func (f *FFmpeg) Transcode(ctx context.Context, in io.Reader, graph, dest string) error {
	args, err := f.Args(graph, dest)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, f.Binary, args...) //nolint:gosec
	cmd.Stdin = in
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
