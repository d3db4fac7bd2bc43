package segments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultCategories are the SponsorBlock categories skipped when none are configured.
var DefaultCategories = []string{
	"sponsor", "selfpromo", "interaction", "intro", "outro", "preview", "music_offtopic", "filler",
}

// Provider returns the skip intervals known for a source.
type Provider interface {
	Segments(ctx context.Context, sourceID string, categories []string) ([]Interval, error)
}

// SponsorBlock queries the public SponsorBlock API.
type SponsorBlock struct {
	httpClient *http.Client
	apiURL     string
}

// NewSponsorBlock creates a client for sponsor.ajay.app.
func NewSponsorBlock() *SponsorBlock {
	return &SponsorBlock{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://sponsor.ajay.app/api/skipSegments",
	}
}

// Segments returns the skip intervals for a video. A video without any
// submitted segments yields an empty result, not an error.
func (s *SponsorBlock) Segments(ctx context.Context, videoID string, categories []string) ([]Interval, error) {
	if videoID == "" {
		return nil, nil
	}
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	cats, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("failed to encode categories: %w", err)
	}

	params := url.Values{}
	params.Set("videoID", videoID)
	params.Set("categories", string(cats))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sponsorblock request: %w", err)
	}
	req.Header.Set("User-Agent", "spotifydl/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sponsorblock request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sponsorblock returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sponsorblock response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("sponsorblock returned invalid json")
	}

	var intervals []Interval
	gjson.GetBytes(body, "#.segment").ForEach(func(_, seg gjson.Result) bool {
		bounds := seg.Array()
		if len(bounds) != 2 {
			return true
		}
		start, end := bounds[0].Float(), bounds[1].Float()
		if start < end {
			intervals = append(intervals, Interval{Start: start, End: end})
		}
		return true
	})
	return intervals, nil
}
