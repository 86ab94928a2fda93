package labeling

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/formbricks/themes/internal/embeddings"
	"github.com/formbricks/themes/pkg/vectors"
)

const maxNgram = 3

type candidate struct {
	phrase  string
	docFreq int
	count   int
}

// tokenRuns splits text into lowercase runs of content words. Punctuation, stop words and
// single-character tokens end a run, so n-grams never span them.
func tokenRuns(text string) [][]string {
	var (
		runs [][]string
		run  []string
		word strings.Builder
	)

	flushRun := func() {
		if len(run) > 0 {
			runs = append(runs, run)
			run = nil
		}
	}

	flushWord := func() {
		if word.Len() == 0 {
			return
		}

		w := word.String()
		word.Reset()

		if _, stop := englishStopWords[w]; stop || len([]rune(w)) < 2 {
			flushRun()

			return
		}

		run = append(run, w)
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			flushWord()
		default:
			flushWord()

			if r != '\'' && r != '’' && r != '-' {
				flushRun()
			}
		}
	}

	flushWord()
	flushRun()

	return runs
}

// candidates returns every 1..3-gram of docs, ordered by document frequency, then total count,
// then phrase, truncated to limit.
func candidates(docs []string, limit int) []candidate {
	byPhrase := make(map[string]*candidate)

	for _, doc := range docs {
		seen := make(map[string]bool)

		for _, run := range tokenRuns(doc) {
			for n := 1; n <= maxNgram; n++ {
				for i := 0; i+n <= len(run); i++ {
					phrase := strings.Join(run[i:i+n], " ")

					c, ok := byPhrase[phrase]
					if !ok {
						c = &candidate{phrase: phrase}
						byPhrase[phrase] = c
					}

					c.count++

					if !seen[phrase] {
						seen[phrase] = true
						c.docFreq++
					}
				}
			}
		}
	}

	out := make([]candidate, 0, len(byPhrase))
	for _, c := range byPhrase {
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].docFreq != out[j].docFreq {
			return out[i].docFreq > out[j].docFreq
		}

		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}

		return out[i].phrase < out[j].phrase
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

// rankByEmbedding orders candidates by cosine similarity of their embedding to centroid.
// Equal similarities keep the frequency order.
func rankByEmbedding(ctx context.Context, embedder embeddings.Embedder, centroid []float32, cands []candidate) ([]string, error) {
	phrases := make([]string, len(cands))
	for i, c := range cands {
		phrases[i] = c.phrase
	}

	vecs, err := embedder.Embed(ctx, phrases)
	if err != nil {
		return nil, err
	}

	sims := make(map[string]float64, len(phrases))
	for i, v := range vecs {
		sims[phrases[i]] = vectors.Cosine(v, centroid)
	}

	sort.SliceStable(phrases, func(i, j int) bool {
		return sims[phrases[i]] > sims[phrases[j]]
	})

	return phrases, nil
}

func rankByFrequency(cands []candidate) []string {
	phrases := make([]string, len(cands))
	for i, c := range cands {
		phrases[i] = c.phrase
	}

	return phrases
}

// filterKeyphrase removes names, generic words and bare numbers from a keyphrase. It reports false
// when the phrase names a company or nothing meaningful is left.
func filterKeyphrase(phrase string) (string, bool) {
	words := strings.Fields(strings.ToLower(phrase))

	kept := make([]string, 0, len(words))

	for _, w := range words {
		if _, ok := companySuffixes[w]; ok {
			return "", false
		}

		if _, ok := commonNames[w]; ok {
			continue
		}

		if _, ok := genericWords[w]; ok {
			continue
		}

		if isNumber(w) {
			continue
		}

		kept = append(kept, w)
	}

	out := strings.Join(kept, " ")
	if len(out) <= 2 {
		return "", false
	}

	return out, true
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}

	return w != ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}

	return strings.Join(words, " ")
}
