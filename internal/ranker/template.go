package ranker

import (
	"fmt"
	"regexp"
)

// Template placeholders.
const (
	ItemName   = "itemName"
	AlbumName  = "albumName"
	ArtistName = "artistName"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]*)\}`)

// TemplateError names a placeholder outside the supported set.
type TemplateError struct {
	Placeholder string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("unknown template placeholder {%s}", e.Placeholder)
}

// Values fills the template placeholders.
type Values struct {
	Item   string
	Album  string
	Artist string
}

func (v Values) lookup(name string) (string, bool) {
	switch name {
	case ItemName:
		return v.Item, true
	case AlbumName:
		return v.Album, true
	case ArtistName:
		return v.Artist, true
	}
	return "", false
}

// Render substitutes {itemName}, {albumName} and {artistName} in format.
// Any other placeholder is an error; nothing is silently dropped.
func Render(format string, v Values) (string, error) {
	for _, m := range placeholderPattern.FindAllStringSubmatch(format, -1) {
		if _, ok := v.lookup(m[1]); !ok {
			return "", &TemplateError{Placeholder: m[1]}
		}
	}
	return placeholderPattern.ReplaceAllStringFunc(format, func(tok string) string {
		s, _ := v.lookup(tok[1 : len(tok)-1])
		return s
	}), nil
}
