// Package pipeline drives lists of items through search, acquisition and
// tagging, one item at a time.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spotifydl/internal/logger"
	"spotifydl/internal/model"
	"spotifydl/internal/ranker"
	"spotifydl/internal/spotify"
	"spotifydl/internal/youtube"
	"spotifydl/pkg/utils"
)

// Catalog expands an input into lists.
type Catalog interface {
	Lists(ctx context.Context, in spotify.Input) ([]model.List, error)
}

// Resolver finds candidate source URLs for an item.
type Resolver interface {
	Resolve(ctx context.Context, q ranker.Query) ([]string, error)
}

// Acquirer produces dest from the first working candidate.
type Acquirer interface {
	Acquire(ctx context.Context, candidates []string, dest string) bool
}

// Tagger writes metadata into an acquired file.
type Tagger interface {
	Tag(ctx context.Context, path string, item model.Item)
}

// Lyrics looks up lyrics; "" means none.
type Lyrics interface {
	Search(ctx context.Context, query string) string
}

// Describer fetches source metadata for direct links.
type Describer interface {
	Describe(ctx context.Context, url string) (youtube.Video, error)
}

// Cache is the per-directory ledger of acquired items.
type Cache interface {
	Has(dir, key string) bool
	Record(dir, key string)
}

type Hooks struct {
	OnListStart func(l model.List)
	OnItemDone  func(item model.Item, out model.Outcome)
	OnWarning   func(msg string)
}

// Options are the per-run settings of the orchestrator.
type Options struct {
	OutputDir      string
	PathTemplate   string
	Format         string
	SearchTemplate string
	ExtraSearch    string
	Exclusions     []string
	Lyrics         bool
}

// Deps are the collaborators of the orchestrator. Lyrics and Describer may be nil.
type Deps struct {
	Catalog   Catalog
	Resolver  Resolver
	Acquirer  Acquirer
	Tagger    Tagger
	Lyrics    Lyrics
	Describer Describer
	Cache     Cache
}

// ListResult is the outcome of every item of one list. Outcomes[i] belongs
// to List.Items[i]; an interrupted list has fewer outcomes than items.
type ListResult struct {
	List     model.List
	Outcomes model.Outcomes
}

// InputError records an input that could not be processed at all.
type InputError struct {
	Input string
	Err   error
}

func (e InputError) Error() string {
	return fmt.Sprintf("%s: %v", e.Input, e.Err)
}

// Result is the outcome of a whole run.
type Result struct {
	Lists  []ListResult
	Errors []InputError
}

// Orchestrator sequences items within lists and lists within a run.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *logger.Logger
	hooks  Hooks

	// claims maps each destination written this run to the ledger key of
	// the item that produced it.
	claims map[string]string
}

// New validates the path template and creates an Orchestrator.
func New(deps Deps, opts Options, log *logger.Logger, hooks Hooks) (*Orchestrator, error) {
	if log == nil {
		log = logger.Discard()
	}
	if _, err := ranker.Render(opts.PathTemplate, ranker.Values{}); err != nil {
		return nil, fmt.Errorf("invalid output template: %w", err)
	}
	if opts.Format == "" {
		return nil, fmt.Errorf("output format is required")
	}
	return &Orchestrator{deps: deps, opts: opts, logger: log, hooks: hooks, claims: make(map[string]string)}, nil
}

// Run processes every input in order. An input that fails to parse or list
// is recorded and skipped; item failures never abort a list.
func (o *Orchestrator) Run(ctx context.Context, inputs []string) Result {
	var res Result
	for _, raw := range inputs {
		if ctx.Err() != nil {
			break
		}

		lists, err := o.expand(ctx, raw)
		if err != nil {
			o.logger.Error("Skipping %s: %v", raw, err)
			o.warn(fmt.Sprintf("%s: %v", raw, err))
			res.Errors = append(res.Errors, InputError{Input: raw, Err: err})
			continue
		}
		res.Lists = append(res.Lists, o.RunLists(ctx, lists)...)
	}
	return res
}

func (o *Orchestrator) expand(ctx context.Context, raw string) ([]model.List, error) {
	in, err := spotify.ParseInput(raw)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("Input %s: %s %s", raw, in.Type, in.ID)
	if in.Type == model.TypeDirectURL {
		l := spotify.DirectList(in)
		if o.deps.Describer != nil {
			l.Items[0] = o.describe(ctx, l.Items[0])
		}
		return []model.List{l}, nil
	}
	return o.deps.Catalog.Lists(ctx, in)
}

// describe names a direct-link item after its video. On failure the item
// keeps the video id as its name.
func (o *Orchestrator) describe(ctx context.Context, item model.Item) model.Item {
	v, err := o.deps.Describer.Describe(ctx, item.SourceURL)
	if err != nil {
		o.logger.Warn("No metadata for %s, naming it %s: %v", item.SourceURL, item.ID, err)
		return item
	}
	name, artists := youtube.SplitTitle(v.Title, v.Channel)
	if name != "" {
		item.Name = name
	}
	item.Artists = model.NormalizeArtists(artists)
	item.ReleaseDate = v.ReleaseDate()
	item.CoverURL = v.Thumb
	return item
}

// RunLists processes lists strictly in order.
func (o *Orchestrator) RunLists(ctx context.Context, lists []model.List) []ListResult {
	results := make([]ListResult, 0, len(lists))
	for _, l := range lists {
		if ctx.Err() != nil {
			break
		}
		results = append(results, ListResult{List: l, Outcomes: o.processList(ctx, l)})
	}
	return results
}

func (o *Orchestrator) processList(ctx context.Context, l model.List) model.Outcomes {
	o.logger.Info("=== %s (%s, %d items) ===", l.Name, l.Type, len(l.Items))
	if o.hooks.OnListStart != nil {
		o.hooks.OnListStart(l)
	}

	outcomes := make(model.Outcomes, 0, len(l.Items))
	for i, item := range l.Items {
		if ctx.Err() != nil {
			break
		}
		out := o.processItem(ctx, item, l.Type.SearchKind())
		outcomes = append(outcomes, out)

		switch out.Status {
		case model.StatusFailed:
			o.logger.Warn("[%d/%d] %s: %s", i+1, len(l.Items), item, out.Reason)
		case model.StatusCached:
			o.logger.Debug("[%d/%d] %s: already downloaded", i+1, len(l.Items), item)
		default:
			o.logger.Info("[%d/%d] %s", i+1, len(l.Items), item)
		}
		if o.hooks.OnItemDone != nil {
			o.hooks.OnItemDone(item, out)
		}
	}
	return outcomes
}

// processItem runs one item through the fixed step order.
func (o *Orchestrator) processItem(ctx context.Context, item model.Item, kind model.ListType) model.Outcome {
	dest, err := o.Destination(item)
	if err != nil {
		return model.Outcome{Status: model.StatusFailed, Reason: err.Error()}
	}
	dir := filepath.Dir(dest)

	if o.deps.Cache.Has(dir, item.Key()) {
		return model.Outcome{Status: model.StatusCached, Path: dest}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return model.Outcome{Status: model.StatusFailed, Path: dest, Reason: fmt.Sprintf("cannot create directory: %v", err)}
	}

	if o.opts.Lyrics && o.deps.Lyrics != nil {
		item.Lyrics = o.deps.Lyrics.Search(ctx, item.PrimaryArtist()+" - "+item.Name)
	}

	candidates, err := o.candidates(ctx, item, kind)
	if err != nil {
		return model.Outcome{Status: model.StatusFailed, Path: dest, Reason: err.Error()}
	}
	if len(candidates) == 0 {
		return model.Outcome{Status: model.StatusFailed, Path: dest, Reason: "no matching sources found"}
	}

	if prev, ok := o.claims[dest]; ok && prev != item.Key() {
		msg := fmt.Sprintf("%s (%s) replaces %s at %s", item, item.Key(), prev, dest)
		o.logger.Warn("Destination collision: %s", msg)
		o.warn(msg)
	}

	if !o.deps.Acquirer.Acquire(ctx, candidates, dest) {
		return model.Outcome{Status: model.StatusFailed, Path: dest, Reason: fmt.Sprintf("all %d sources failed", len(candidates))}
	}
	o.claims[dest] = item.Key()

	o.deps.Tagger.Tag(ctx, dest, item)
	o.deps.Cache.Record(dir, item.Key())

	out := model.Outcome{Status: model.StatusSucceeded, Path: dest}
	if info, err := os.Stat(dest); err == nil {
		out.Size = info.Size()
	}
	return out
}

// candidates returns the item's direct source or the ranked search results.
func (o *Orchestrator) candidates(ctx context.Context, item model.Item, kind model.ListType) ([]string, error) {
	if item.SourceURL != "" {
		return []string{item.SourceURL}, nil
	}
	return o.deps.Resolver.Resolve(ctx, ranker.Query{
		ItemName:    item.Name,
		AlbumName:   item.AlbumName,
		ArtistName:  item.PrimaryArtist(),
		ExtraSearch: o.opts.ExtraSearch,
		Template:    o.opts.SearchTemplate,
		Kind:        kind,
		Exclusions:  o.opts.Exclusions,
	})
}

// Destination renders the output path template for item. Each placeholder
// value is sanitized as a single path component.
func (o *Orchestrator) Destination(item model.Item) (string, error) {
	album := item.AlbumName
	if album == "" {
		album = "Unknown Album"
	}
	rel, err := ranker.Render(o.opts.PathTemplate, ranker.Values{
		Item:   utils.SanitizeName(item.Name),
		Album:  utils.SanitizeName(album),
		Artist: utils.SanitizeName(item.PrimaryArtist()),
	})
	if err != nil {
		return "", err
	}
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("output template produced an empty path")
	}
	return filepath.Join(o.opts.OutputDir, filepath.FromSlash(rel)+"."+o.opts.Format), nil
}

func (o *Orchestrator) warn(msg string) {
	if o.hooks.OnWarning != nil {
		o.hooks.OnWarning(msg)
	}
}
