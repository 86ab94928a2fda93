package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/formbricks/themes/internal/clustering"
	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/insights"
	"github.com/formbricks/themes/internal/labeling"
	"github.com/formbricks/themes/internal/models"
	"github.com/formbricks/themes/internal/scoring"
	"github.com/formbricks/themes/internal/similarity"
)

type outcome struct {
	insufficient bool
}

// draft is one cluster on its way to becoming a theme.
type draft struct {
	id      uuid.UUID
	cluster clustering.Cluster
	// members are ordered closest to the centroid first.
	members []models.FeedbackItem
	label   labeling.Label
}

// dimensioned is implemented by embedders with a fixed output dimension.
type dimensioned interface {
	Dimensions() int
}

func (p *Pipeline) run(ctx context.Context, runID uuid.UUID, startedAt time.Time, cfg models.RunConfig) (outcome, error) {
	var items []models.FeedbackItem

	if err := p.stage(ctx, "load", func(ctx context.Context) error {
		var err error
		items, err = p.load(ctx)

		return err
	}); err != nil {
		return outcome{}, err
	}

	required := max(p.minFeedbackCount, cfg.MinClusterSize)
	if len(items) < required {
		slog.InfoContext(ctx, "not enough feedback to cluster, keeping the current themes",
			"items", len(items), "required", required, "reason", huberrors.ErrInsufficientData)

		return outcome{insufficient: true}, nil
	}

	if err := p.stage(ctx, "embed", func(ctx context.Context) error {
		n, err := p.embedMissing(ctx, items)
		p.state.update(runID, func(s *models.RunStatus) { s.ItemsEmbedded = n })

		return err
	}); err != nil {
		return outcome{}, err
	}

	var result *clustering.Result

	if err := p.stage(ctx, "cluster", func(ctx context.Context) error {
		var err error
		result, err = p.cluster(ctx, items, cfg)

		return err
	}); err != nil {
		return outcome{}, err
	}

	p.state.update(runID, func(s *models.RunStatus) {
		s.ItemsClustered = len(items) - len(result.NoiseIDs)
		s.NoiseCount = len(result.NoiseIDs)
	})

	drafts := newDrafts(items, result)

	if err := p.stage(ctx, "label", func(ctx context.Context) error {
		return p.label(ctx, drafts, cfg.LLMRefinement)
	}); err != nil {
		return outcome{}, err
	}

	var (
		metrics   []models.ThemeMetrics
		customers map[string]models.Customer
	)

	if err := p.stage(ctx, "score", func(ctx context.Context) error {
		var err error
		metrics, customers, err = p.score(ctx, drafts, cfg, startedAt)

		return err
	}); err != nil {
		return outcome{}, err
	}

	var generated []models.Insight

	if err := p.stage(ctx, "insights", func(context.Context) error {
		generated = generateInsights(drafts, customers, startedAt)

		return nil
	}); err != nil {
		return outcome{}, err
	}

	gen := buildGeneration(runID, startedAt, drafts, metrics, generated)

	if err := verify(ctx, gen); err != nil {
		return outcome{}, err
	}

	if err := p.stage(ctx, "persist", func(ctx context.Context) error {
		return p.deps.Themes.ReplaceGeneration(ctx, gen)
	}); err != nil {
		return outcome{}, err
	}

	p.state.update(runID, func(s *models.RunStatus) {
		s.ThemesCreated = len(gen.Themes)
		s.InsightsCreated = len(gen.Insights)
	})

	if p.metrics != nil {
		p.metrics.RecordRunOutput(ctx, len(gen.Themes), len(result.NoiseIDs))
	}

	return outcome{}, nil
}

// load returns the feedback with non-blank text, ordered by id.
func (p *Pipeline) load(ctx context.Context) ([]models.FeedbackItem, error) {
	all, err := p.deps.Feedback.ListForClustering(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]models.FeedbackItem, 0, len(all))

	for _, it := range all {
		if strings.TrimSpace(it.Text) != "" {
			items = append(items, it)
		}
	}

	slog.InfoContext(ctx, "feedback loaded", "items", len(items), "skipped_blank", len(all)-len(items))

	return items, nil
}

// embedMissing embeds items without a usable embedding and stores the vectors right away.
// Items are updated in place. Returns the number of items embedded.
func (p *Pipeline) embedMissing(ctx context.Context, items []models.FeedbackItem) (int, error) {
	want := 0
	if d, ok := p.deps.Embedder.(dimensioned); ok {
		want = d.Dimensions()
	}

	var missing []int

	for i, it := range items {
		if len(it.Embedding) == 0 || (want > 0 && len(it.Embedding) != want) {
			missing = append(missing, i)
		}
	}

	if len(missing) == 0 {
		return 0, nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = items[i].Text
	}

	vecs, err := p.deps.Embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	if len(vecs) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	updates := make(map[uuid.UUID][]float32, len(missing))

	for j, i := range missing {
		items[i].Embedding = vecs[j]
		updates[items[i].ID] = vecs[j]
	}

	if err := p.deps.Feedback.UpdateEmbeddings(ctx, updates); err != nil {
		return 0, fmt.Errorf("store embeddings: %w", err)
	}

	slog.InfoContext(ctx, "feedback embedded", "items", len(missing))

	return len(missing), nil
}

func (p *Pipeline) cluster(ctx context.Context, items []models.FeedbackItem, cfg models.RunConfig) (*clustering.Result, error) {
	engine, err := clustering.NewEngine(clustering.Config{
		MinClusterSize:   cfg.MinClusterSize,
		MinSamples:       cfg.MinSamples,
		OutlierThreshold: p.clusterDefaults.OutlierThreshold,
	})
	if err != nil {
		return nil, err
	}

	points := make([]clustering.Point, len(items))
	for i, it := range items {
		points[i] = clustering.Point{ID: it.ID, Vector: it.Embedding}
	}

	result, err := engine.Cluster(ctx, points)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "feedback clustered",
		"items", len(points), "clusters", len(result.Clusters), "noise", len(result.NoiseIDs))

	return result, nil
}

// newDrafts pairs every cluster with its member items, ordered closest to the centroid first.
func newDrafts(items []models.FeedbackItem, result *clustering.Result) []draft {
	byID := make(map[uuid.UUID]models.FeedbackItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	drafts := make([]draft, len(result.Clusters))

	for i, c := range result.Clusters {
		idx := similarity.NewIndex()
		for _, id := range c.MemberIDs {
			idx.Add(id, byID[id].Embedding)
		}

		members := make([]models.FeedbackItem, 0, len(c.MemberIDs))
		for _, n := range idx.Nearest(c.Centroid, idx.Len()) {
			members = append(members, byID[n.ID])
		}

		// Degenerate centroid: keep id order.
		if len(members) != len(c.MemberIDs) {
			members = members[:0]
			for _, id := range c.MemberIDs {
				members = append(members, byID[id])
			}
		}

		drafts[i] = draft{id: uuid.Must(uuid.NewV7()), cluster: c, members: members}
	}

	return drafts
}

// label names every draft, several clusters at a time.
func (p *Pipeline) label(ctx context.Context, drafts []draft, refine bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.labelConcurrency)

	for i := range drafts {
		g.Go(func() error {
			members := make([]labeling.Member, len(drafts[i].members))
			for j, it := range drafts[i].members {
				members[j] = labeling.Member{ID: it.ID, Text: it.Text, Vector: it.Embedding}
			}

			lbl, err := p.deps.Labeler.Generate(gctx, members, drafts[i].cluster.Centroid, refine)
			if err != nil {
				return fmt.Errorf("cluster %d: %w", drafts[i].cluster.Label, err)
			}

			drafts[i].label = lbl

			if p.metrics != nil {
				p.metrics.RecordLabel(gctx, string(lbl.Metadata.Method))
			}

			return nil
		})
	}

	return g.Wait()
}

// score measures every theme in parallel, then ranks and applies the duplicate penalty once all
// raw scores are known.
func (p *Pipeline) score(
	ctx context.Context, drafts []draft, cfg models.RunConfig, asOf time.Time,
) ([]models.ThemeMetrics, map[string]models.Customer, error) {
	scorer, err := scoring.NewScorer(scoring.Config{Weights: cfg.Weights, SegmentPriorities: cfg.SegmentPriorities})
	if err != nil {
		return nil, nil, err
	}

	var names []string

	for _, d := range drafts {
		for _, it := range d.members {
			names = append(names, it.AccountKey())
		}
	}

	customers, err := p.deps.Customers.Resolve(ctx, names)
	if err != nil {
		return nil, nil, err
	}

	measurements := make([]scoring.Measurement, len(drafts))

	var g errgroup.Group

	for i := range drafts {
		g.Go(func() error {
			m, err := scorer.Measure(drafts[i].id, drafts[i].cluster.Centroid, drafts[i].members, customers, asOf)
			if err != nil {
				return err
			}

			measurements[i] = m

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var iv *huberrors.InvariantViolationError
		if errors.As(err, &iv) {
			slog.ErrorContext(ctx, "invariant violation", "record_id", iv.RecordID, "error", iv.Message)
		}

		return nil, nil, err
	}

	return scorer.ApplyDuplicatePenalty(scorer.Rank(measurements), asOf), customers, nil
}

func generateInsights(drafts []draft, customers map[string]models.Customer, createdAt time.Time) []models.Insight {
	out := make([]models.Insight, 0, len(drafts))

	for _, d := range drafts {
		var themeCustomers []models.Customer

		seen := make(map[string]struct{})

		for _, it := range d.members {
			c, ok := customers[it.AccountKey()]
			if !ok {
				continue
			}

			if _, dup := seen[c.Name]; !dup {
				seen[c.Name] = struct{}{}
				themeCustomers = append(themeCustomers, c)
			}
		}

		out = append(out, insights.Generate(insights.Theme{
			ID:        d.id,
			Label:     d.label.Label,
			Items:     d.members,
			Customers: themeCustomers,
		}, createdAt))
	}

	return insights.Deduplicate(out)
}

func buildGeneration(
	runID uuid.UUID, startedAt time.Time, drafts []draft, metrics []models.ThemeMetrics, generated []models.Insight,
) models.Generation {
	gen := models.Generation{
		Version:  startedAt.Unix(),
		RunID:    runID,
		Themes:   make([]models.Theme, len(drafts)),
		Metrics:  metrics,
		Insights: generated,
	}

	for i, d := range drafts {
		gen.Themes[i] = models.Theme{
			ID:          d.id,
			Label:       d.label.Label,
			Description: d.label.Description,
			Centroid:    d.cluster.Centroid,
			Version:     gen.Version,
			LabelMeta:   d.label.Metadata,
			CreatedAt:   startedAt,
			UpdatedAt:   startedAt,
		}

		for j, id := range d.cluster.MemberIDs {
			gen.Links = append(gen.Links, models.FeedbackThemeLink{
				FeedbackID: id,
				ThemeID:    d.id,
				Confidence: d.cluster.Probabilities[j],
			})
		}
	}

	return gen
}

// verify checks the generation before it is written. The first violation fails the run.
func verify(ctx context.Context, gen models.Generation) error {
	for _, l := range gen.Links {
		if math.IsNaN(l.Confidence) || l.Confidence < 0 || l.Confidence > 1 {
			return violation(ctx, l.FeedbackID.String(),
				fmt.Sprintf("link confidence %v outside [0,1] for theme %s", l.Confidence, l.ThemeID))
		}
	}

	for _, m := range gen.Metrics {
		if math.IsNaN(m.ACVSum) || m.ACVSum < 0 {
			return violation(ctx, m.ThemeID.String(), fmt.Sprintf("theme ACV sum %v is negative", m.ACVSum))
		}

		if math.IsNaN(m.Score) || m.Score < 0 || m.Score > 100 {
			return violation(ctx, m.ThemeID.String(), fmt.Sprintf("theme score %v outside [0,100]", m.Score))
		}
	}

	return nil
}

func violation(ctx context.Context, recordID, msg string) error {
	slog.ErrorContext(ctx, "invariant violation", "record_id", recordID, "error", msg)

	return huberrors.NewInvariantViolationError(recordID, msg)
}
