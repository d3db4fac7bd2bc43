package ranker

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// SimilarityThreshold gates the album-prefixed search tier.
const SimilarityThreshold = 0.5

// fold case-folds s for comparisons that ignore case. A Caser keeps state,
// so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// normalize folds case and keeps only letters and digits. Whitespace is
// dropped so word boundaries never form bigrams.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity is the Dice coefficient over character bigrams of the
// normalized strings, in [0, 1].
func Similarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == b {
		return 1.0
	}
	if len([]rune(a)) < 2 || len([]rune(b)) < 2 {
		return 0.0
	}

	counts := bigrams(a)
	total := 0
	for _, n := range counts {
		total += n
	}

	matches := 0
	other := bigrams(b)
	for bg, n := range other {
		total += n
		matches += min(n, counts[bg])
	}
	return 2 * float64(matches) / float64(total)
}

func bigrams(s string) map[string]int {
	runes := []rune(s)
	out := make(map[string]int, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])]++
	}
	return out
}
