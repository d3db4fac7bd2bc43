// Package spotify is the catalog client. Every request goes through the
// credential gate, so each one is authorized, refreshed and retried there.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"spotifydl/internal/gate"
	"spotifydl/internal/logger"
	"spotifydl/internal/model"
)

const (
	// PageSize is the fixed page size used for every paginated listing.
	PageSize = 50
	// MaxBulkIDs is the largest id batch accepted by bulk lookups.
	MaxBulkIDs = 20
)

// Client is a Spotify Web API catalog client.
type Client struct {
	session    *gate.Session
	httpClient *http.Client
	logger     *logger.Logger

	// Overridable for testing
	apiURL string
}

// New creates a catalog client that authorizes through session.
func New(session *gate.Session, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		session:    session,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log,
		apiURL:     "https://api.spotify.com/v1",
	}
}

// StatusError is a non-200 answer from the API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("spotify returned %d: %s", e.Status, e.Body)
}

// get performs one authorized GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, token, path string, query url.Values, out any) error {
	reqURL := c.apiURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// fetch is a gated single-object GET.
func fetch[T any](ctx context.Context, c *Client, op, path string, query url.Values) (T, error) {
	return gate.Call(ctx, c.session, op, func(ctx context.Context, token string) (T, error) {
		var out T
		err := c.get(ctx, token, path, query, &out)
		return out, err
	})
}

// paginate repeats gated page fetches at PageSize until the accumulated count
// reaches the reported total. Null entries are kept in the count and dropped
// from the result.
func paginate[T any](ctx context.Context, c *Client, op, path string, query url.Values) ([]*T, error) {
	var all []*T
	offset := 0
	for {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("limit", strconv.Itoa(PageSize))
		q.Set("offset", strconv.Itoa(offset))

		p, err := fetch[page[T]](ctx, c, fmt.Sprintf("%s (offset %d)", op, offset), path, q)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		offset += PageSize

		c.logger.Debug("%s: fetched %d/%d", op, len(all), p.Total)
		if len(all) >= p.Total || len(p.Items) == 0 {
			break
		}
	}
	return lo.Filter(all, func(it *T, _ int) bool { return it != nil }), nil
}

// Track returns a single track.
func (c *Client) Track(ctx context.Context, id string) (model.Item, error) {
	t, err := fetch[trackItem](ctx, c, "get track "+id, "/tracks/"+url.PathEscape(id), nil)
	if err != nil {
		return model.Item{}, err
	}
	return t.toItem(t.Album), nil
}

// Tracks looks up tracks in batches of MaxBulkIDs. Unknown ids are skipped.
func (c *Client) Tracks(ctx context.Context, ids []string) ([]model.Item, error) {
	var items []model.Item
	for _, chunk := range lo.Chunk(ids, MaxBulkIDs) {
		q := url.Values{"ids": {strings.Join(chunk, ",")}}
		resp, err := fetch[tracksResponse](ctx, c, fmt.Sprintf("get %d tracks", len(chunk)), "/tracks", q)
		if err != nil {
			return nil, err
		}
		for _, t := range resp.Tracks {
			if t != nil {
				items = append(items, t.toItem(t.Album))
			}
		}
	}
	return items, nil
}

// Album returns the album with all of its tracks.
func (c *Client) Album(ctx context.Context, id string) (model.List, error) {
	album, err := fetch[albumInfo](ctx, c, "get album "+id, "/albums/"+url.PathEscape(id), nil)
	if err != nil {
		return model.List{}, err
	}
	return c.albumList(ctx, album)
}

func (c *Client) albumList(ctx context.Context, album albumInfo) (model.List, error) {
	tracks, err := paginate[trackItem](ctx, c, "list album "+album.Name, "/albums/"+url.PathEscape(album.ID)+"/tracks", nil)
	if err != nil {
		return model.List{}, err
	}
	items := lo.Map(tracks, func(t *trackItem, _ int) model.Item { return t.toItem(album) })
	return model.List{Name: album.Name, Type: model.TypeAlbum, Items: items}, nil
}

// Playlist returns the playlist with all of its tracks.
func (c *Client) Playlist(ctx context.Context, id string) (model.List, error) {
	info, err := fetch[playlistInfo](ctx, c, "get playlist "+id, "/playlists/"+url.PathEscape(id), url.Values{"fields": {"id,name"}})
	if err != nil {
		return model.List{}, err
	}
	return c.playlistList(ctx, info)
}

func (c *Client) playlistList(ctx context.Context, info playlistInfo) (model.List, error) {
	entries, err := paginate[savedTrack](ctx, c, "list playlist "+info.Name, "/playlists/"+url.PathEscape(info.ID)+"/tracks", nil)
	if err != nil {
		return model.List{}, err
	}
	return model.List{Name: info.Name, Type: model.TypePlaylist, Items: savedTracksToItems(entries)}, nil
}

func savedTracksToItems(entries []*savedTrack) []model.Item {
	var items []model.Item
	for _, e := range entries {
		if e.Track == nil || e.Track.ID == "" {
			continue
		}
		items = append(items, e.Track.toItem(e.Track.Album))
	}
	return items
}

// ArtistAlbums returns one list per album or single released by the artist.
func (c *Client) ArtistAlbums(ctx context.Context, id string) ([]model.List, error) {
	a, err := fetch[artist](ctx, c, "get artist "+id, "/artists/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	albums, err := paginate[albumInfo](ctx, c, "list artist "+a.Name, "/artists/"+url.PathEscape(id)+"/albums",
		url.Values{"include_groups": {"album,single"}})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Artist %s: %d albums", a.Name, len(albums))

	lists := make([]model.List, 0, len(albums))
	for _, album := range albums {
		// Simplified album objects omit popularity; fetch the full album.
		full, err := fetch[albumInfo](ctx, c, "get album "+album.ID, "/albums/"+url.PathEscape(album.ID), nil)
		if err != nil {
			return nil, err
		}
		l, err := c.albumList(ctx, full)
		if err != nil {
			return nil, err
		}
		l.Type = model.TypeArtist
		lists = append(lists, l)
	}
	return lists, nil
}

// Episode returns a single podcast episode.
func (c *Client) Episode(ctx context.Context, id string) (model.Item, error) {
	e, err := fetch[episodeItem](ctx, c, "get episode "+id, "/episodes/"+url.PathEscape(id), nil)
	if err != nil {
		return model.Item{}, err
	}
	var show showInfo
	if e.Show != nil {
		show = *e.Show
	}
	return e.toItem(show, 1, 1), nil
}

// Show returns the show with all of its episodes.
func (c *Client) Show(ctx context.Context, id string) (model.List, error) {
	show, err := fetch[showInfo](ctx, c, "get show "+id, "/shows/"+url.PathEscape(id), nil)
	if err != nil {
		return model.List{}, err
	}
	return c.showList(ctx, show)
}

func (c *Client) showList(ctx context.Context, show showInfo) (model.List, error) {
	episodes, err := paginate[episodeItem](ctx, c, "list show "+show.Name, "/shows/"+url.PathEscape(show.ID)+"/episodes", nil)
	if err != nil {
		return model.List{}, err
	}
	items := make([]model.Item, 0, len(episodes))
	for i, e := range episodes {
		items = append(items, e.toItem(show, i+1, len(episodes)))
	}
	return model.List{Name: show.Name, Type: model.TypeShow, Items: items}, nil
}

// SavedTracks returns the user's liked songs.
func (c *Client) SavedTracks(ctx context.Context) (model.List, error) {
	entries, err := paginate[savedTrack](ctx, c, "list saved tracks", "/me/tracks", nil)
	if err != nil {
		return model.List{}, err
	}
	return model.List{Name: "Saved Tracks", Type: model.TypeSavedTracks, Items: savedTracksToItems(entries)}, nil
}

// SavedAlbums returns one list per album in the user's library.
func (c *Client) SavedAlbums(ctx context.Context) ([]model.List, error) {
	saved, err := paginate[savedAlbum](ctx, c, "list saved albums", "/me/albums", nil)
	if err != nil {
		return nil, err
	}
	var lists []model.List
	for _, s := range saved {
		if s.Album == nil {
			continue
		}
		l, err := c.albumList(ctx, *s.Album)
		if err != nil {
			return nil, err
		}
		l.Type = model.TypeSavedAlbums
		lists = append(lists, l)
	}
	return lists, nil
}

// SavedPlaylists returns one list per playlist the user follows or owns.
func (c *Client) SavedPlaylists(ctx context.Context) ([]model.List, error) {
	playlists, err := paginate[playlistInfo](ctx, c, "list saved playlists", "/me/playlists", nil)
	if err != nil {
		return nil, err
	}
	lists := make([]model.List, 0, len(playlists))
	for _, p := range playlists {
		l, err := c.playlistList(ctx, *p)
		if err != nil {
			return nil, err
		}
		l.Type = model.TypeSavedPlaylists
		lists = append(lists, l)
	}
	return lists, nil
}

// SavedShows returns one list per show the user follows.
func (c *Client) SavedShows(ctx context.Context) ([]model.List, error) {
	saved, err := paginate[savedShow](ctx, c, "list saved shows", "/me/shows", nil)
	if err != nil {
		return nil, err
	}
	var lists []model.List
	for _, s := range saved {
		if s.Show == nil {
			continue
		}
		l, err := c.showList(ctx, *s.Show)
		if err != nil {
			return nil, err
		}
		l.Type = model.TypeSavedShows
		lists = append(lists, l)
	}
	return lists, nil
}
