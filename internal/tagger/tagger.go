// Package tagger merges catalog metadata and cover art into an acquired file.
package tagger

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"go.senan.xyz/taglib"
	_ "golang.org/x/image/webp"

	"spotifydl/internal/logger"
	"spotifydl/internal/model"
)

// RatingConstant maps popularity (0-100) onto the 0-255 rating scale.
const RatingConstant = 2.55

// Tag keys that TagLib has no named constant for.
const (
	keyComposer  = "COMPOSER"
	keyPerformer = "PERFORMER"
	keyBPM       = "BPM"
	keyMonthDay  = "MONTHDAY"
	keyRating    = "RATING"
	keyLyrics    = "LYRICS"
)

//go:embed placeholder.png
var placeholder []byte

var datePattern = regexp.MustCompile(`^(\d{4})(?:-(\d{2})(?:-(\d{2}))?)?$`)

// Tagger writes tags in place.
type Tagger struct {
	httpClient *http.Client
	logger     *logger.Logger
	retryWait  time.Duration

	// Placeholder cover used when the item's cover cannot be fetched.
	Placeholder []byte
}

// New creates a Tagger.
func New(log *logger.Logger) *Tagger {
	if log == nil {
		log = logger.Discard()
	}
	return &Tagger{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      log,
		retryWait:   time.Second,
		Placeholder: placeholder,
	}
}

// Tag writes item's metadata and cover into path. Every failure is logged;
// the file is never removed.
func (t *Tagger) Tag(ctx context.Context, path string, item model.Item) {
	coverPath := t.prepareCover(ctx, path, item)
	if coverPath != "" {
		defer os.Remove(coverPath)
	}

	if err := taglib.WriteTags(path, Tags(item), 0); err != nil {
		t.logger.Warn("Failed to write tags to %s: %v", path, err)
		return
	}

	if coverPath == "" {
		return
	}
	data, err := os.ReadFile(coverPath)
	if err != nil {
		t.logger.Warn("Failed to read cover for %s: %v", item, err)
		return
	}
	if err := taglib.WriteImage(path, data); err != nil {
		t.logger.Warn("Failed to embed cover into %s: %v", path, err)
	}
}

// Tags builds the tag set for item.
func Tags(item model.Item) map[string][]string {
	artists := item.ArtistList()
	tags := map[string][]string{
		taglib.Artist:      {item.PrimaryArtist()},
		taglib.AlbumArtist: {artists},
		keyComposer:        {artists},
		keyPerformer:       {artists},
		taglib.Album:       {item.AlbumName},
		taglib.Title:       {item.Name},
		taglib.TrackNumber: {fmt.Sprintf("%d/%d", max(item.TrackNumber, 1), max(item.TotalTracks, 1))},
		keyRating:          {strconv.Itoa(Rating(item.Popularity))},
	}

	year, monthDay := SplitDate(item.ReleaseDate)
	tags[taglib.Date] = []string{year}
	tags[keyMonthDay] = []string{monthDay}

	if item.BPM > 0 {
		tags[keyBPM] = []string{strconv.Itoa(int(math.Round(item.BPM)))}
	}
	if item.Lyrics != "" {
		tags[keyLyrics] = []string{item.Lyrics}
	}
	return tags
}

// Rating converts popularity to the rating tag value.
func Rating(popularity int) int {
	return int(math.Round(float64(popularity) * RatingConstant))
}

// SplitDate splits a YYYY, YYYY-MM or YYYY-MM-DD date into the year and a
// "MM-DD" part. Missing or malformed parts are empty.
func SplitDate(date string) (year, monthDay string) {
	m := datePattern.FindStringSubmatch(date)
	if m == nil {
		return "", ""
	}
	if m[2] != "" && m[3] != "" {
		monthDay = m[2] + "-" + m[3]
	}
	return m[1], monthDay
}

// prepareCover writes a JPEG cover next to path and returns its location, or
// "" when no cover could be produced.
func (t *Tagger) prepareCover(ctx context.Context, path string, item model.Item) string {
	coverPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".cover.jpg")

	if item.CoverURL != "" {
		var err error
		for attempt := 1; attempt <= 2; attempt++ {
			if err = t.fetchCover(ctx, item.CoverURL, coverPath); err == nil {
				return coverPath
			}
			t.logger.Debug("Cover fetch for %s failed (attempt %d/2): %v", item, attempt, err)
			if attempt == 1 && !sleep(ctx, t.retryWait) {
				break
			}
		}
		t.logger.Warn("Using placeholder cover for %s: %v", item, err)
	}

	if err := writeJPEG(bytes.NewReader(t.Placeholder), coverPath); err != nil {
		t.logger.Warn("No cover for %s: %v", item, err)
		os.Remove(coverPath)
		return ""
	}
	return coverPath
}

func (t *Tagger) fetchCover(ctx context.Context, coverURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create cover request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cover download returned %d", resp.StatusCode)
	}
	return writeJPEG(resp.Body, dest)
}

// writeJPEG decodes any supported image format from r and stores it as JPEG.
func writeJPEG(r io.Reader, dest string) error {
	img, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create cover file: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode cover: %w", err)
	}
	return f.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
