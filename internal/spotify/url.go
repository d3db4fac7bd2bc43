package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"spotifydl/internal/model"
	"spotifydl/internal/youtube"
)

// ErrUnsupportedURL is returned for inputs that name no known collection.
var ErrUnsupportedURL = errors.New("unsupported url")

// Input is one parsed command-line input.
type Input struct {
	Raw  string
	Type model.ListType
	ID   string
}

var (
	webPattern = regexp.MustCompile(`^/(?:intl-[a-z-]+/)?(track|album|playlist|artist|episode|show)/([A-Za-z0-9]+)`)
	uriPattern = regexp.MustCompile(`^spotify:(track|album|playlist|artist|episode|show):([A-Za-z0-9]+)$`)
)

var savedKeywords = map[string]model.ListType{
	"saved-tracks":    model.TypeSavedTracks,
	"saved-albums":    model.TypeSavedAlbums,
	"saved-playlists": model.TypeSavedPlaylists,
	"saved-shows":     model.TypeSavedShows,
}

// ParseInput classifies a Spotify link or URI, a saved-* keyword, or a
// YouTube link.
func ParseInput(raw string) (Input, error) {
	s := strings.TrimSpace(raw)
	in := Input{Raw: s}

	if t, ok := savedKeywords[strings.ToLower(s)]; ok {
		in.Type = t
		return in, nil
	}

	if m := uriPattern.FindStringSubmatch(s); m != nil {
		in.Type = model.ParseListType(m[1])
		in.ID = m[2]
		return in, nil
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return in, fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch {
	case host == "open.spotify.com":
		m := webPattern.FindStringSubmatch(u.Path)
		if m == nil {
			return in, fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
		}
		in.Type = model.ParseListType(m[1])
		in.ID = m[2]
		return in, nil
	case youtube.IsYouTubeHost(host):
		id := youtube.VideoID(s)
		if id == "" {
			return in, fmt.Errorf("%w: no video id in %q", ErrUnsupportedURL, raw)
		}
		in.Type = model.TypeDirectURL
		in.ID = id
		return in, nil
	}
	return in, fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
}

// Lists expands one input into the lists it names. Artists and saved
// albums/playlists/shows produce one list per collection.
func (c *Client) Lists(ctx context.Context, in Input) ([]model.List, error) {
	c.session.RequirePersonalized(in.Type.Personalized())

	switch in.Type {
	case model.TypeSong:
		item, err := c.Track(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		return []model.List{{Name: item.Name, Type: model.TypeSong, Items: []model.Item{item}}}, nil
	case model.TypeEpisode:
		item, err := c.Episode(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		return []model.List{{Name: item.Name, Type: model.TypeEpisode, Items: []model.Item{item}}}, nil
	case model.TypeAlbum:
		return single(c.Album(ctx, in.ID))
	case model.TypePlaylist:
		return single(c.Playlist(ctx, in.ID))
	case model.TypeShow:
		return single(c.Show(ctx, in.ID))
	case model.TypeArtist:
		return c.ArtistAlbums(ctx, in.ID)
	case model.TypeSavedTracks:
		return single(c.SavedTracks(ctx))
	case model.TypeSavedAlbums:
		return c.SavedAlbums(ctx)
	case model.TypeSavedPlaylists:
		return c.SavedPlaylists(ctx)
	case model.TypeSavedShows:
		return c.SavedShows(ctx)
	case model.TypeDirectURL:
		return []model.List{DirectList(in)}, nil
	case model.TypeUnknown:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, in.Raw)
	default:
		return nil, fmt.Errorf("%w: type %s", ErrUnsupportedURL, in.Type)
	}
}

// DirectList wraps a raw external link. No catalog call is made; the item
// carries its source URL so ranking is bypassed.
func DirectList(in Input) model.List {
	item := model.Item{
		ID:          in.ID,
		Scheme:      "youtube",
		Name:        in.ID,
		Artists:     model.NormalizeArtists(nil),
		TrackNumber: 1,
		TotalTracks: 1,
		SourceURL:   in.Raw,
	}
	return model.List{Name: in.Raw, Type: model.TypeDirectURL, Items: []model.Item{item}}
}

func single(l model.List, err error) ([]model.List, error) {
	if err != nil {
		return nil, err
	}
	return []model.List{l}, nil
}
