package youtube

import (
	"regexp"
	"strings"
)

// Video is the metadata of a single video, used to name direct-link items.
type Video struct {
	ID       string
	Title    string
	Channel  string
	Uploaded string // YYYYMMDD
	Thumb    string
}

// Decorations uploaders add to titles: (Official Video), [Lyrics], (HD) and so on.
var titleNoise = regexp.MustCompile(`(?i)\s*[\(\[]\s*(?:` +
	`official\s+(?:music\s+|lyric\s+)?(?:video|audio|visualizer)|` +
	`lyrics?(?:\s+video)?|visual(?:izer)?|audio|hd|hq|4k|explicit|clean|video\s+oficial` +
	`)\s*[\)\]]`)

var (
	featuringPattern = regexp.MustCompile(`(?i)\s*[\(\[]\s*(?:feat\.?|ft\.?|featuring)\s+([^\)\]]+)[\)\]]`)
	channelSuffix    = regexp.MustCompile(`(?i)(?:vevo|\s+-\s+topic)$`)
	artistTitleSplit = regexp.MustCompile(`^(.+?)\s+[-–—]\s+(.+)$`)
	artistSeparator  = regexp.MustCompile(`\s*(?:,|&|\band\b)\s*`)
)

// SplitTitle derives an artist and track name from a video title and its
// channel. "Artist - Title" titles win over the channel name; featured
// artists are appended to the artist list.
func SplitTitle(title, channel string) (name string, artists []string) {
	title = titleNoise.ReplaceAllString(strings.TrimSpace(title), "")

	var featured []string
	for _, m := range featuringPattern.FindAllStringSubmatch(title, -1) {
		featured = append(featured, splitArtists(m[1])...)
	}
	title = strings.TrimSpace(featuringPattern.ReplaceAllString(title, ""))

	artist := strings.TrimSpace(channelSuffix.ReplaceAllString(strings.TrimSpace(channel), ""))
	if m := artistTitleSplit.FindStringSubmatch(title); m != nil {
		artist = strings.TrimSpace(m[1])
		title = strings.TrimSpace(m[2])
	}

	if artist != "" {
		artists = append(artists, artist)
	}
	return title, append(artists, featured...)
}

func splitArtists(s string) []string {
	var out []string
	for _, part := range artistSeparator.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ReleaseDate converts yt-dlp's YYYYMMDD upload date to YYYY-MM-DD.
func (v Video) ReleaseDate() string {
	d := v.Uploaded
	if len(d) != 8 {
		return ""
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}
