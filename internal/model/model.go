// Package model holds the value types shared by the acquisition pipeline.
package model

import (
	"fmt"
	"strings"
)

// UnknownArtist is used when a catalog record carries no artist names.
const UnknownArtist = "Unknown Artist"

// ListType tags the kind of collection a List was built from.
type ListType int

const (
	TypeUnknown ListType = iota
	TypeSong
	TypePlaylist
	TypeAlbum
	TypeArtist
	TypeEpisode
	TypeShow
	TypeSavedShows
	TypeSavedAlbums
	TypeSavedPlaylists
	TypeSavedTracks
	TypeDirectURL
)

var listTypeNames = map[ListType]string{
	TypeSong:           "song",
	TypePlaylist:       "playlist",
	TypeAlbum:          "album",
	TypeArtist:         "artist",
	TypeEpisode:        "episode",
	TypeShow:           "show",
	TypeSavedShows:     "saved-shows",
	TypeSavedAlbums:    "saved-albums",
	TypeSavedPlaylists: "saved-playlists",
	TypeSavedTracks:    "saved-tracks",
	TypeDirectURL:      "direct-url",
}

func (t ListType) String() string {
	if name, ok := listTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseListType maps a type tag back to its ListType. Unknown tags yield TypeUnknown.
func ParseListType(s string) ListType {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range listTypeNames {
		if name == s {
			return t
		}
	}
	return TypeUnknown
}

// Personalized reports whether listing this type requires a user-delegated token.
func (t ListType) Personalized() bool {
	switch t {
	case TypeSavedShows, TypeSavedAlbums, TypeSavedPlaylists, TypeSavedTracks:
		return true
	default:
		return false
	}
}

// SearchKind is the item type the ranker filters for. Everything collected from a
// show is searched as an episode; everything else is a song.
func (t ListType) SearchKind() ListType {
	switch t {
	case TypeEpisode, TypeShow, TypeSavedShows:
		return TypeEpisode
	default:
		return TypeSong
	}
}

// Item is one downloadable unit. Items are treated as immutable once built;
// per-run state lives in Outcome.
type Item struct {
	ID          string
	Scheme      string
	Name        string
	Artists     []string
	AlbumName   string
	ReleaseDate string
	TrackNumber int
	TotalTracks int
	CoverURL    string
	Popularity  int
	BPM         float64
	Lyrics      string

	// SourceURL is set for direct links and bypasses ranking entirely.
	SourceURL string
}

// Key is the scheme-qualified identifier recorded in the dedup ledger.
func (i Item) Key() string {
	scheme := i.Scheme
	if scheme == "" {
		scheme = "spotify"
	}
	return scheme + " " + i.ID
}

// PrimaryArtist returns the first artist or the sentinel.
func (i Item) PrimaryArtist() string {
	if len(i.Artists) == 0 || strings.TrimSpace(i.Artists[0]) == "" {
		return UnknownArtist
	}
	return i.Artists[0]
}

// ArtistList joins all artists with "/".
func (i Item) ArtistList() string {
	if len(i.Artists) == 0 {
		return UnknownArtist
	}
	return strings.Join(i.Artists, "/")
}

func (i Item) String() string {
	return fmt.Sprintf("%s - %s", i.PrimaryArtist(), i.Name)
}

// NormalizeArtists drops blank names and falls back to the sentinel.
func NormalizeArtists(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return []string{UnknownArtist}
	}
	return out
}

// List is a named, typed, ordered sequence of items.
type List struct {
	Name  string
	Type  ListType
	Items []Item
}

// Status is the per-item result of a run.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusCached
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusCached:
		return "cached"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Outcome records what happened to one item.
type Outcome struct {
	Status Status
	Path   string
	Reason string
	// Size of the acquired file in bytes, when known.
	Size int64
}

// Outcomes holds one outcome per list position, aligned with List.Items. A
// list may name the same item twice, so outcomes are never keyed by id.
type Outcomes []Outcome

// Count returns how many outcomes have the given status.
func (o Outcomes) Count(s Status) int {
	n := 0
	for _, out := range o {
		if out.Status == s {
			n++
		}
	}
	return n
}
