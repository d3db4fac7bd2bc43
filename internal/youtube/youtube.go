// Package youtube locates and streams candidate audio sources with yt-dlp.
package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"spotifydl/internal/logger"
)

// SearchResults is how many results one search asks yt-dlp for.
const SearchResults = 10

// Candidate is one search hit.
type Candidate struct {
	URL         string
	Title       string
	Description string
	// Duration in seconds; zero when the provider did not report it.
	Duration float64
}

// ID returns the video identifier of the candidate.
func (c Candidate) ID() string {
	return VideoID(c.URL)
}

// Searcher runs yt-dlp searches.
type Searcher struct {
	Binary string
	Logger *logger.Logger

	// run executes the binary and returns stdout. Replaced in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewSearcher creates a Searcher using yt-dlp from PATH.
func NewSearcher(log *logger.Logger) *Searcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Searcher{Binary: "yt-dlp", Logger: log, run: runCommand}
}

// Search returns up to SearchResults candidates for query, in provider order.
func (s *Searcher) Search(ctx context.Context, query string) ([]Candidate, error) {
	s.Logger.Debug("Searching: %s", query)
	out, err := s.run(ctx, s.Binary,
		"--flat-playlist",
		"--no-warnings",
		"-J",
		fmt.Sprintf("ytsearch%d:%s", SearchResults, query),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("yt-dlp search failed: %w", err)
	}
	return ParseSearch(out)
}

// ParseSearch decodes the JSON yt-dlp prints for a flat search playlist.
func ParseSearch(data []byte) ([]Candidate, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("yt-dlp returned invalid JSON")
	}
	var out []Candidate
	gjson.GetBytes(data, "entries").ForEach(func(_, e gjson.Result) bool {
		u := e.Get("url").String()
		if u == "" || !strings.HasPrefix(u, "http") {
			id := e.Get("id").String()
			if id == "" {
				return true
			}
			u = WatchURL(id)
		}
		out = append(out, Candidate{
			URL:         u,
			Title:       e.Get("title").String(),
			Description: e.Get("description").String(),
			Duration:    e.Get("duration").Float(),
		})
		return true
	})
	return out, nil
}

// Describe fetches the metadata of a single video without downloading it.
func (s *Searcher) Describe(ctx context.Context, videoURL string) (Video, error) {
	out, err := s.run(ctx, s.Binary,
		"--no-playlist",
		"--no-warnings",
		"--skip-download",
		"-J",
		videoURL,
	)
	if err != nil {
		if ctx.Err() != nil {
			return Video{}, ctx.Err()
		}
		return Video{}, fmt.Errorf("yt-dlp metadata failed: %w", err)
	}
	return ParseVideo(out)
}

// ParseVideo decodes the JSON yt-dlp prints for a single video.
func ParseVideo(data []byte) (Video, error) {
	if !gjson.ValidBytes(data) {
		return Video{}, errors.New("yt-dlp returned invalid JSON")
	}
	r := gjson.ParseBytes(data)
	v := Video{
		ID:       r.Get("id").String(),
		Title:    r.Get("track").String(),
		Channel:  r.Get("artist").String(),
		Uploaded: r.Get("upload_date").String(),
		Thumb:    r.Get("thumbnail").String(),
	}
	// Music uploads carry track/artist fields; everything else falls back to title/channel.
	if v.Title == "" {
		v.Title = r.Get("title").String()
	}
	if v.Channel == "" {
		v.Channel = r.Get("channel").String()
	}
	if v.Channel == "" {
		v.Channel = r.Get("uploader").String()
	}
	return v, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w\nDetails: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Streamer pipes the best audio stream of a video to a reader.
type Streamer struct {
	Binary string
	Args   []string
}

// NewStreamer creates a Streamer using yt-dlp from PATH.
func NewStreamer() *Streamer {
	return &Streamer{
		Binary: "yt-dlp",
		Args:   []string{"-f", "bestaudio/best", "--no-playlist", "--quiet", "-o", "-"},
	}
}

// Stream starts the download. Closing the returned reader waits for the
// process and reports its exit error.
func (s *Streamer) Stream(ctx context.Context, videoURL string) (io.ReadCloser, error) {
	args := append(append([]string{}, s.Args...), videoURL)
	cmd := exec.CommandContext(ctx, s.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stream pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", s.Binary, err)
	}
	return &stream{ReadCloser: stdout, cmd: cmd, stderr: &stderr}, nil
}

type stream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

func (s *stream) Close() error {
	// Closing early makes the process exit on a broken pipe instead of blocking.
	s.ReadCloser.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("stream failed: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}

// WatchURL builds the canonical watch link for a video id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// IsYouTubeHost reports whether host serves YouTube videos.
func IsYouTubeHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

// VideoID extracts the video id from a YouTube link, or "" if there is none.
func VideoID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !IsYouTubeHost(u.Host) {
		return ""
	}
	if strings.EqualFold(strings.TrimPrefix(u.Host, "www."), "youtu.be") {
		return firstSegment(u.Path)
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	for _, prefix := range []string{"/shorts/", "/embed/", "/live/", "/v/"} {
		if strings.HasPrefix(u.Path, prefix) {
			return firstSegment(strings.TrimPrefix(u.Path, prefix))
		}
	}
	return ""
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}
