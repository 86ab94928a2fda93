// Package labeling names clusters. A keyword label is always computed from member texts; an optional
// LLM refiner may replace it with a short phrase.
package labeling

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/formbricks/themes/internal/embeddings"
	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/models"
	"github.com/formbricks/themes/internal/similarity"
)

// Fallback labels.
const (
	LabelUnlabeled      = "Unlabeled Theme"
	LabelFeatureRequest = "Feature Request"
)

// Defaults.
const (
	DefaultTopK           = 5
	DefaultMaxDocuments   = 20
	DefaultMaxCandidates  = 64
	DefaultExemplarCount  = 3
	DefaultRefinerTimeout = 20 * time.Second

	labelKeyphrases = 3
	quoteMaxRunes   = 160
)

// Member is one feedback item of a cluster.
type Member struct {
	ID     uuid.UUID
	Text   string
	Vector []float32
}

// Label is the generated name of a theme.
type Label struct {
	Label       string
	Description string
	Metadata    models.LabelMetadata
	// Exemplars are the member texts closest to the centroid, closest first.
	Exemplars []string
}

// Generator produces theme labels. It is safe for concurrent use.
type Generator struct {
	embedder       embeddings.Embedder
	refiner        Refiner
	refinerTimeout time.Duration
	topK           int
	maxDocuments   int
	maxCandidates  int
	exemplarCount  int
}

// Option configures a Generator.
type Option func(*Generator)

// WithRefiner enables LLM refinement. A nil refiner leaves refinement off.
func WithRefiner(r Refiner, timeout time.Duration) Option {
	return func(g *Generator) {
		g.refiner = r
		if timeout > 0 {
			g.refinerTimeout = timeout
		}
	}
}

// WithTopK sets how many keyphrases are extracted before filtering.
func WithTopK(k int) Option {
	return func(g *Generator) {
		if k > 0 {
			g.topK = k
		}
	}
}

// WithMaxDocuments caps how many member texts feed keyphrase extraction.
func WithMaxDocuments(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxDocuments = n
		}
	}
}

// NewGenerator returns a Generator that ranks keyphrases with embedder. A nil embedder ranks by
// document frequency.
func NewGenerator(embedder embeddings.Embedder, opts ...Option) *Generator {
	g := &Generator{
		embedder:       embedder,
		refinerTimeout: DefaultRefinerTimeout,
		topK:           DefaultTopK,
		maxDocuments:   DefaultMaxDocuments,
		maxCandidates:  DefaultMaxCandidates,
		exemplarCount:  DefaultExemplarCount,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// RefinementAvailable reports whether a refiner is configured.
func (g *Generator) RefinementAvailable() bool {
	return g.refiner != nil
}

// Generate labels one cluster. Keyphrase ranking or refiner failures degrade to the keyword label
// and frequency ranking; only an empty cluster or a cancelled context is an error.
func (g *Generator) Generate(ctx context.Context, members []Member, centroid []float32, refine bool) (Label, error) {
	if len(members) == 0 {
		return Label{}, huberrors.NewValidationError("members", "cannot label an empty cluster")
	}

	ordered := orderByCentroid(members, centroid)

	docs := make([]string, 0, min(len(ordered), g.maxDocuments))
	for _, m := range ordered[:min(len(ordered), g.maxDocuments)] {
		docs = append(docs, m.Text)
	}

	exemplars := docs[:min(len(docs), g.exemplarCount)]

	keyphrases, ranking, err := g.keyphrases(ctx, docs, centroid)
	if err != nil {
		return Label{}, err
	}

	keywordLabel, filtered := keywordLabel(keyphrases)

	out := Label{
		Label:     keywordLabel,
		Exemplars: exemplars,
		Metadata: models.LabelMetadata{
			Method:       models.LabelMethodKeywords,
			Ranking:      ranking,
			Keyphrases:   filtered,
			KeywordLabel: keywordLabel,
		},
	}

	if refine && g.refiner != nil {
		if refined, ok := g.refine(ctx, filtered, exemplars); ok {
			out.Label = refined
			out.Metadata.Method = models.LabelMethodLLM
		}
	}

	if err := ctx.Err(); err != nil {
		return Label{}, fmt.Errorf("label cluster: %w", err)
	}

	out.Description = describe(len(members), filtered, exemplars)

	return out, nil
}

func (g *Generator) keyphrases(ctx context.Context, docs []string, centroid []float32) ([]string, models.KeyphraseRanking, error) {
	cands := candidates(docs, g.maxCandidates)
	if len(cands) == 0 {
		return nil, models.RankingFrequency, nil
	}

	var ranked []string

	ranking := models.RankingFrequency

	if g.embedder != nil && len(centroid) > 0 {
		phrases, err := rankByEmbedding(ctx, g.embedder, centroid, cands)
		switch {
		case err == nil:
			ranked = phrases
			ranking = models.RankingEmbedding
		case ctx.Err() != nil:
			return nil, "", fmt.Errorf("rank keyphrases: %w", ctx.Err())
		default:
			slog.WarnContext(ctx, "keyphrase embedding failed, ranking by frequency", "error", err)
		}
	}

	if ranked == nil {
		ranked = rankByFrequency(cands)
	}

	return ranked[:min(len(ranked), g.topK)], ranking, nil
}

func (g *Generator) refine(ctx context.Context, keyphrases, exemplars []string) (string, bool) {
	rctx, cancel := context.WithTimeout(ctx, g.refinerTimeout)
	defer cancel()

	reply, err := g.refiner.RefineLabel(rctx, keyphrases, exemplars)
	if err != nil {
		slog.WarnContext(ctx, "label refinement failed, keeping keyword label", "error", err)

		return "", false
	}

	label, ok := cleanRefinedLabel(reply)
	if !ok {
		slog.WarnContext(ctx, "label refinement reply rejected", "reply_length", utf8.RuneCountInString(reply))
	}

	return label, ok
}

// keywordLabel builds the label from the first three surviving keyphrases and returns the filtered
// keyphrases in rank order.
func keywordLabel(keyphrases []string) (string, []string) {
	if len(keyphrases) == 0 {
		return LabelUnlabeled, []string{}
	}

	filtered := make([]string, 0, len(keyphrases))
	seen := make(map[string]bool)

	for _, kp := range keyphrases {
		f, ok := filterKeyphrase(kp)
		if !ok || seen[f] {
			continue
		}

		seen[f] = true
		filtered = append(filtered, f)
	}

	if len(filtered) == 0 {
		return LabelFeatureRequest, filtered
	}

	parts := make([]string, 0, labelKeyphrases)
	for _, f := range filtered[:min(len(filtered), labelKeyphrases)] {
		parts = append(parts, titleCase(f))
	}

	return strings.Join(parts, ", "), filtered
}

// orderByCentroid returns members closest to centroid first. Without a centroid, members keep their order.
func orderByCentroid(members []Member, centroid []float32) []Member {
	if len(centroid) == 0 {
		return members
	}

	idx := similarity.NewIndex()
	byID := make(map[uuid.UUID]Member, len(members))

	for _, m := range members {
		if len(m.Vector) == 0 {
			continue
		}

		idx.Add(m.ID, m.Vector)
		byID[m.ID] = m
	}

	ordered := make([]Member, 0, len(members))
	for _, n := range idx.Nearest(centroid, idx.Len()) {
		ordered = append(ordered, byID[n.ID])
	}

	for _, m := range members {
		if len(m.Vector) == 0 {
			ordered = append(ordered, m)
		}
	}

	return ordered
}

func describe(size int, keyphrases, exemplars []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d feedback item", size)

	if size != 1 {
		b.WriteString("s")
	}

	if len(keyphrases) > 0 {
		fmt.Fprintf(&b, " about %s", strings.Join(keyphrases[:min(len(keyphrases), labelKeyphrases)], ", "))
	}

	b.WriteString(".")

	if len(exemplars) > 0 {
		quotes := make([]string, len(exemplars))
		for i, e := range exemplars {
			quotes[i] = fmt.Sprintf("%q", truncateRunes(strings.Join(strings.Fields(e), " "), quoteMaxRunes))
		}

		fmt.Fprintf(&b, " Representative feedback: %s", strings.Join(quotes, "; "))
	}

	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	r := []rune(s)

	return strings.TrimSpace(string(r[:n])) + "…"
}
