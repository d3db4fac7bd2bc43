// Package lyrics fetches plain lyrics from LRCLib. Lookups are best effort.
package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spotifydl/internal/logger"
)

type Client struct {
	httpClient *http.Client
	apiURL     string
	logger     *logger.Logger
	retryWait  time.Duration
}

func NewClient(log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://lrclib.net/api/search",
		logger:     log,
		retryWait:  2 * time.Second,
	}
}

// Search returns the lyrics of the first match for query, or "" when there is
// no match or the lookup fails for any reason.
func (c *Client) Search(ctx context.Context, query string) string {
	text, err := c.search(ctx, query)
	if err != nil && isTransient(err) {
		select {
		case <-ctx.Done():
		case <-time.After(c.retryWait):
			text, err = c.search(ctx, query)
		}
	}
	if err != nil {
		c.logger.Debug("Lyrics lookup for %q failed: %v", query, err)
		return ""
	}
	return text
}

// Only network-level errors are retried; API errors would fail identically.
func isTransient(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *Client) search(ctx context.Context, query string) (string, error) {
	reqURL := fmt.Sprintf("%s?%s", c.apiURL, url.Values{"q": {query}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create lrclib request: %w", err)
	}
	req.Header.Set("User-Agent", "spotifydl/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lrclib request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lrclib returned status %d", resp.StatusCode)
	}

	var matches []apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return "", fmt.Errorf("failed to decode lrclib response: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	first := matches[0]
	if first.PlainLyrics != "" {
		return strings.TrimSpace(first.PlainLyrics), nil
	}
	return strings.TrimSpace(first.SyncedLyrics), nil
}

type apiResponse struct {
	TrackName    string `json:"trackName"`
	ArtistName   string `json:"artistName"`
	SyncedLyrics string `json:"syncedLyrics"`
	PlainLyrics  string `json:"plainLyrics"`
}
