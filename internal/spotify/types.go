package spotify

import (
	"github.com/samber/lo"

	"spotifydl/internal/model"
)

// Spotify API response types

type page[T any] struct {
	Items  []*T `json:"items"`
	Total  int  `json:"total"`
	Offset int  `json:"offset"`
	Limit  int  `json:"limit"`
}

type artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type albumInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []artist `json:"artists"`
	ReleaseDate string   `json:"release_date"`
	TotalTracks int      `json:"total_tracks"`
	Images      []image  `json:"images"`
	Popularity  int      `json:"popularity"`
}

type trackItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Artists     []artist  `json:"artists"`
	Album       albumInfo `json:"album"`
	TrackNumber int       `json:"track_number"`
	Popularity  int       `json:"popularity"`
}

type savedTrack struct {
	Track *trackItem `json:"track"`
}

type savedAlbum struct {
	Album *albumInfo `json:"album"`
}

type playlistInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type showInfo struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Publisher string  `json:"publisher"`
	Images    []image `json:"images"`
}

type savedShow struct {
	Show *showInfo `json:"show"`
}

type episodeItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ReleaseDate string    `json:"release_date"`
	Images      []image   `json:"images"`
	Show        *showInfo `json:"show"`
}

type tracksResponse struct {
	Tracks []*trackItem `json:"tracks"`
}

func artistNames(artists []artist) []string {
	return model.NormalizeArtists(lo.Map(artists, func(a artist, _ int) string { return a.Name }))
}

// largestImage picks the widest cover, or "" when there are none.
func largestImage(images []image) string {
	if len(images) == 0 {
		return ""
	}
	return lo.MaxBy(images, func(a, b image) bool { return a.Width > b.Width }).URL
}

func positive(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

func (t trackItem) toItem(album albumInfo) model.Item {
	popularity := t.Popularity
	if popularity == 0 {
		popularity = album.Popularity
	}
	return model.Item{
		ID:          t.ID,
		Scheme:      "spotify",
		Name:        t.Name,
		Artists:     artistNames(t.Artists),
		AlbumName:   album.Name,
		ReleaseDate: album.ReleaseDate,
		TrackNumber: positive(t.TrackNumber, 1),
		TotalTracks: positive(album.TotalTracks, 1),
		CoverURL:    largestImage(album.Images),
		Popularity:  popularity,
	}
}

func (e episodeItem) toItem(show showInfo, position, total int) model.Item {
	cover := largestImage(e.Images)
	if cover == "" {
		cover = largestImage(show.Images)
	}
	return model.Item{
		ID:          e.ID,
		Scheme:      "spotify",
		Name:        e.Name,
		Artists:     model.NormalizeArtists([]string{show.Publisher}),
		AlbumName:   show.Name,
		ReleaseDate: e.ReleaseDate,
		TrackNumber: positive(position, 1),
		TotalTracks: positive(total, 1),
		CoverURL:    cover,
	}
}
