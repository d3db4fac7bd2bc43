// Package ranker picks candidate sources for an item from search results.
package ranker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"spotifydl/internal/logger"
	"spotifydl/internal/model"
	"spotifydl/internal/youtube"
)

// MaxCandidates bounds the ranked result.
const MaxCandidates = 10

// Searcher is the external search provider.
type Searcher interface {
	Search(ctx context.Context, query string) ([]youtube.Candidate, error)
}

// Ranker filters search results into ordered candidate URLs.
type Ranker struct {
	searcher Searcher
	logger   *logger.Logger

	// MaxSongDuration in seconds applies to song searches only. Zero disables it.
	MaxSongDuration float64
}

// New creates a Ranker.
func New(s Searcher, maxSongDuration float64, log *logger.Logger) *Ranker {
	if log == nil {
		log = logger.Discard()
	}
	return &Ranker{searcher: s, logger: log, MaxSongDuration: maxSongDuration}
}

// Rank searches for terms and returns up to MaxCandidates URLs in provider
// order. Candidates are dropped when title or description contains an
// exclusion filter, when the duration is missing, and for songs when the
// duration exceeds MaxSongDuration. No matches is not an error.
func (r *Ranker) Rank(ctx context.Context, terms string, kind model.ListType, exclusions []string) ([]string, error) {
	results, err := r.searcher.Search(ctx, terms)
	if err != nil {
		return nil, err
	}

	filters := lo.FilterMap(exclusions, func(f string, _ int) (string, bool) {
		f = fold(strings.TrimSpace(f))
		return f, f != ""
	})

	var urls []string
	for _, c := range results {
		if excluded(c, filters) {
			r.logger.Debug("  excluded by filter: %s", c.Title)
			continue
		}
		if c.Duration <= 0 {
			continue
		}
		if kind == model.TypeSong && r.MaxSongDuration > 0 && c.Duration > r.MaxSongDuration {
			r.logger.Debug("  too long for a song (%.0fs): %s", c.Duration, c.Title)
			continue
		}
		urls = append(urls, c.URL)
		if len(urls) == MaxCandidates {
			break
		}
	}
	return urls, nil
}

func excluded(c youtube.Candidate, filters []string) bool {
	title, desc := fold(c.Title), fold(c.Description)
	return lo.SomeBy(filters, func(f string) bool {
		return strings.Contains(title, f) || strings.Contains(desc, f)
	})
}

// Query describes one item to resolve.
type Query struct {
	ItemName    string
	AlbumName   string
	ArtistName  string
	ExtraSearch string
	// Template is an optional custom search format.
	Template   string
	Kind       model.ListType
	Exclusions []string
}

// Resolve runs the search tiers in order and returns the first non-empty
// result: the custom template, then "{album} - {item} {extra}" when the item
// and album names differ enough, then "{artist} - {item} {extra}".
func (r *Ranker) Resolve(ctx context.Context, q Query) ([]string, error) {
	if q.Template != "" {
		terms, err := Render(q.Template, Values{Item: q.ItemName, Album: q.AlbumName, Artist: q.ArtistName})
		if err != nil {
			r.logger.Warn("Search format %q: %v", q.Template, err)
		} else if urls := r.tier(ctx, terms, q); len(urls) > 0 {
			return urls, nil
		}
	}

	if q.AlbumName != "" && Similarity(q.ItemName, q.AlbumName) < SimilarityThreshold {
		if urls := r.tier(ctx, joinTerms(q.AlbumName, q.ItemName, q.ExtraSearch), q); len(urls) > 0 {
			return urls, nil
		}
	}

	if q.ArtistName != "" {
		if urls := r.tier(ctx, joinTerms(q.ArtistName, q.ItemName, q.ExtraSearch), q); len(urls) > 0 {
			return urls, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

// tier runs one ranked search. Search failures count as an empty tier.
func (r *Ranker) tier(ctx context.Context, terms string, q Query) []string {
	urls, err := r.Rank(ctx, terms, q.Kind, q.Exclusions)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Warn("Search %q failed: %v", terms, err)
		}
		return nil
	}
	r.logger.Debug("Search %q: %d candidates", terms, len(urls))
	return urls
}

func joinTerms(prefix, item, extra string) string {
	return strings.TrimSpace(fmt.Sprintf("%s - %s %s", prefix, item, extra))
}
