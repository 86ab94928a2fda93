package labeling

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Limits on an accepted refined label.
const (
	maxRefinedWords = 7
	maxRefinedChars = 60
)

// Refiner turns keyphrases and exemplar texts into a short human-readable label.
// openai.Client implements it.
type Refiner interface {
	RefineLabel(ctx context.Context, keyphrases, exemplars []string) (string, error)
}

// cleanRefinedLabel strips quoting and trailing punctuation from a refiner reply and reports
// whether the result is usable.
func cleanRefinedLabel(reply string) (string, bool) {
	s := strings.TrimSpace(reply)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	s = strings.Trim(s, "\"'`“”‘’")
	s = strings.TrimRight(s, ".")
	s = strings.Join(strings.Fields(s), " ")

	if s == "" {
		return "", false
	}

	if len(strings.Fields(s)) > maxRefinedWords || utf8.RuneCountInString(s) > maxRefinedChars {
		return "", false
	}

	return s, true
}
