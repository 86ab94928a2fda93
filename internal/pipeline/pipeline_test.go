package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/labeling"
	"github.com/formbricks/themes/internal/models"
	"github.com/formbricks/themes/internal/scoring"
)

const testDims = 16

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeFeedbackStore struct {
	mu      sync.Mutex
	updated map[uuid.UUID][]float32
	listFn  func(ctx context.Context) ([]models.FeedbackItem, error)
}

func (f *fakeFeedbackStore) ListForClustering(ctx context.Context) ([]models.FeedbackItem, error) {
	return f.listFn(ctx)
}

func (f *fakeFeedbackStore) UpdateEmbeddings(_ context.Context, embeddings map[uuid.UUID][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updated == nil {
		f.updated = map[uuid.UUID][]float32{}
	}

	for id, v := range embeddings {
		f.updated[id] = v
	}

	return nil
}

type fakeThemeStore struct {
	mu          sync.Mutex
	generations []models.Generation
	replaceFn   func(ctx context.Context, gen models.Generation) error
}

func (f *fakeThemeStore) ReplaceGeneration(ctx context.Context, gen models.Generation) error {
	if f.replaceFn != nil {
		if err := f.replaceFn(ctx, gen); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.generations = append(f.generations, gen)

	return nil
}

type fakeResolver struct {
	customers map[string]models.Customer
}

func (f *fakeResolver) Resolve(_ context.Context, names []string) (map[string]models.Customer, error) {
	out := map[string]models.Customer{}

	for _, n := range names {
		if c, ok := f.customers[n]; ok {
			out[n] = c
		}
	}

	return out, nil
}

type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	return f.embedFn(ctx, texts)
}

type fakeLabeler struct {
	generateFn func(ctx context.Context, members []labeling.Member, refine bool) (labeling.Label, error)
}

func (f *fakeLabeler) Generate(
	ctx context.Context, members []labeling.Member, _ []float32, refine bool,
) (labeling.Label, error) {
	return f.generateFn(ctx, members, refine)
}

func (f *fakeLabeler) RefinementAvailable() bool { return false }

// labelByTopic names a cluster after the topic prefix of its first member.
func labelByTopic(_ context.Context, members []labeling.Member, _ bool) (labeling.Label, error) {
	label := "Dark Mode"
	if strings.HasPrefix(members[0].Text, "csv") {
		label = "Csv, Export"
	}

	return labeling.Label{
		Label:       label,
		Description: fmt.Sprintf("%d feedback items", len(members)),
		Metadata:    models.LabelMetadata{Method: models.LabelMethodKeywords, Ranking: models.RankingEmbedding},
	}, nil
}

func topicVector(rng *rand.Rand, axis int) []float32 {
	v := make([]float32, testDims)
	v[axis] = 1

	for d := 4; d < testDims; d++ {
		v[d] = 0.05 * float32(rng.NormFloat64())
	}

	return v
}

// twoTopics returns 12 csv-export items (axis 0) and 12 dark-mode items (axis 1). The first
// `unembedded` export items have no embedding yet; vectors holds what the embedder should return.
func twoTopics(unembedded int) (items []models.FeedbackItem, vectors map[string][]float32) {
	rng := rand.New(rand.NewPCG(3, 5))
	vectors = map[string][]float32{}

	accounts := []string{"acme", "globex", "initech"}

	for topic, prefix := range []string{"csv export", "dark mode"} {
		for i := range 12 {
			account := accounts[i%len(accounts)]
			it := models.FeedbackItem{
				ID:        uuid.Must(uuid.NewV7()),
				Source:    models.SourceChatMessage,
				Text:      fmt.Sprintf("%s request %d", prefix, i),
				Account:   &account,
				CreatedAt: now.Add(-time.Duration(i) * 24 * time.Hour),
			}

			vec := topicVector(rng, topic)
			if topic == 0 && i < unembedded {
				vectors[it.Text] = vec
			} else {
				it.Embedding = vec
			}

			items = append(items, it)
		}
	}

	return items, vectors
}

func mapEmbedder(vectors map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{embedFn: func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))

		for i, t := range texts {
			v, ok := vectors[t]
			if !ok {
				return nil, fmt.Errorf("no vector for %q", t)
			}

			out[i] = v
		}

		return out, nil
	}}
}

var directory = map[string]models.Customer{
	"acme":    {Name: "acme", ACV: 120000, Segment: models.SegmentEnterprise},
	"globex":  {Name: "globex", ACV: 40000, Segment: models.SegmentMidMarket},
	"initech": {Name: "initech", ACV: 5000, Segment: models.SegmentSMB},
}

type fixture struct {
	feedback *fakeFeedbackStore
	themes   *fakeThemeStore
	embedder *fakeEmbedder
	labeler  *fakeLabeler
	resolver *fakeResolver
}

func newFixture(items []models.FeedbackItem, vectors map[string][]float32) *fixture {
	return &fixture{
		feedback: &fakeFeedbackStore{listFn: func(context.Context) ([]models.FeedbackItem, error) {
			return append([]models.FeedbackItem(nil), items...), nil
		}},
		themes:   &fakeThemeStore{},
		embedder: mapEmbedder(vectors),
		labeler:  &fakeLabeler{generateFn: labelByTopic},
		resolver: &fakeResolver{customers: directory},
	}
}

func (f *fixture) pipeline(opts ...Option) *Pipeline {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)

	return New(Dependencies{
		Feedback:  f.feedback,
		Themes:    f.themes,
		Customers: f.resolver,
		Embedder:  f.embedder,
		Labeler:   f.labeler,
	}, opts...)
}

// runConfig keeps each 12-item topic a single cluster.
func runConfig(p *Pipeline) models.RunConfig {
	cfg := p.DefaultRunConfig()
	cfg.MinClusterSize = 10
	cfg.MinSamples = 3
	cfg.Trigger = models.TriggerCLI

	return cfg
}

func TestRun_HappyPath(t *testing.T) {
	items, vectors := twoTopics(3)
	f := newFixture(items, vectors)
	p := f.pipeline()

	st, err := p.Run(context.Background(), runConfig(p))
	require.NoError(t, err)

	assert.Equal(t, models.RunStateCompleted, st.State)
	assert.Nil(t, st.Error)
	assert.Equal(t, 2, st.ThemesCreated)
	assert.Equal(t, 2, st.InsightsCreated)
	assert.Equal(t, 3, st.ItemsEmbedded)
	assert.Equal(t, 24, st.ItemsClustered)
	assert.Equal(t, 0, st.NoiseCount)
	assert.Equal(t, models.TriggerCLI, st.Trigger)
	require.NotNil(t, st.StartedAt)
	require.NotNil(t, st.CompletedAt)

	// Embeddings are stored for exactly the items that lacked one.
	assert.Len(t, f.feedback.updated, 3)

	require.Len(t, f.themes.generations, 1)
	gen := f.themes.generations[0]

	assert.Equal(t, now.Unix(), gen.Version)
	assert.Equal(t, st.RunID, gen.RunID)
	require.Len(t, gen.Themes, 2)
	assert.Len(t, gen.Metrics, 2)
	assert.Len(t, gen.Links, 24)
	assert.Len(t, gen.Insights, 2)

	labels := []string{gen.Themes[0].Label, gen.Themes[1].Label}
	assert.ElementsMatch(t, []string{"Csv, Export", "Dark Mode"}, labels)

	for _, l := range gen.Links {
		assert.GreaterOrEqual(t, l.Confidence, 0.0)
		assert.LessOrEqual(t, l.Confidence, 1.0)
	}

	for i, m := range gen.Metrics {
		assert.Equal(t, gen.Themes[i].ID, m.ThemeID)
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 100.0)
		assert.Zero(t, m.DuplicatePenalty)
		assert.InDelta(t, 165000.0, m.ACVSum, 1e-9)
		assert.Equal(t, 3, m.Accounts30d)
		assert.Len(t, m.WeeklyCounts, 12)
	}

	latest := p.Latest()
	assert.Equal(t, st.RunID, latest.RunID)
	assert.False(t, latest.IsRunning())
}

func TestRun_IsDeterministicAcrossRuns(t *testing.T) {
	items, vectors := twoTopics(0)
	f := newFixture(items, vectors)
	p := f.pipeline()

	_, err := p.Run(context.Background(), runConfig(p))
	require.NoError(t, err)

	_, err = p.Run(context.Background(), runConfig(p))
	require.NoError(t, err)

	require.Len(t, f.themes.generations, 2)

	a, b := f.themes.generations[0], f.themes.generations[1]
	require.Len(t, b.Metrics, len(a.Metrics))

	for i := range a.Metrics {
		assert.Equal(t, a.Themes[i].Label, b.Themes[i].Label)
		assert.Equal(t, a.Metrics[i].Score, b.Metrics[i].Score)
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	items, vectors := twoTopics(0)
	f := newFixture(items, vectors)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.feedback.listFn = func(context.Context) ([]models.FeedbackItem, error) {
		close(entered)
		<-release

		return items, nil
	}

	p := f.pipeline()
	cfg := runConfig(p)

	handle, err := p.Start(context.Background(), cfg)
	require.NoError(t, err)

	<-entered

	assert.True(t, p.Latest().IsRunning())

	_, err = p.Start(context.Background(), cfg)
	require.ErrorIs(t, err, huberrors.ErrAlreadyRunning)
	assert.ErrorIs(t, err, huberrors.ErrConflict)

	_, err = p.Run(context.Background(), cfg)
	require.ErrorIs(t, err, huberrors.ErrAlreadyRunning)

	close(release)
	p.Wait()

	st, err := p.Status(context.Background(), handle.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCompleted, st.State)
	assert.Len(t, f.themes.generations, 1)
}

func TestRun_InsufficientDataLeavesStoreUntouched(t *testing.T) {
	items, vectors := twoTopics(0)
	f := newFixture(items[:8], vectors)
	p := f.pipeline()

	st, err := p.Run(context.Background(), runConfig(p))
	require.NoError(t, err)

	assert.Equal(t, models.RunStateCompleted, st.State)
	assert.Zero(t, st.ThemesCreated)
	assert.Empty(t, f.themes.generations)
	assert.Zero(t, f.embedder.calls)
}

func TestRun_MinFeedbackCount(t *testing.T) {
	items, vectors := twoTopics(0)
	f := newFixture(items, vectors)
	p := f.pipeline(WithMinFeedbackCount(30))

	st, err := p.Run(context.Background(), runConfig(p))
	require.NoError(t, err)

	assert.Equal(t, models.RunStateCompleted, st.State)
	assert.Empty(t, f.themes.generations)
}

func TestRun_BlankTextIsSkipped(t *testing.T) {
	items, vectors := twoTopics(0)
	items = append(items, models.FeedbackItem{ID: uuid.Must(uuid.NewV7()), Text: "   ", CreatedAt: now})
	f := newFixture(items, vectors)
	p := f.pipeline()

	st, err := p.Run(context.Background(), runConfig(p))
	require.NoError(t, err)

	assert.Equal(t, 24, st.ItemsClustered)
	assert.Zero(t, f.embedder.calls)
}

func TestRun_ProviderFailureFailsRun(t *testing.T) {
	items, vectors := twoTopics(3)
	f := newFixture(items, vectors)
	f.embedder.embedFn = func(context.Context, []string) ([][]float32, error) {
		return nil, huberrors.NewProviderUnavailableError("openai", errors.New("503 service unavailable"))
	}
	p := f.pipeline()

	st, err := p.Run(context.Background(), runConfig(p))
	require.Error(t, err)
	require.ErrorIs(t, err, huberrors.ErrProviderUnavailable)

	assert.Equal(t, models.RunStateFailed, st.State)
	require.NotNil(t, st.Error)
	assert.Contains(t, *st.Error, "openai provider unavailable")
	assert.Empty(t, f.themes.generations)
}

func TestRun_LabelFailureKeepsPreviousGeneration(t *testing.T) {
	items, vectors := twoTopics(0)
	f := newFixture(items, vectors)
	f.labeler.generateFn = func(ctx context.Context, members []labeling.Member, refine bool) (labeling.Label, error) {
		if strings.HasPrefix(members[0].Text, "dark") {
			return labeling.Label{}, context.Canceled
		}

		return labelByTopic(ctx, members, refine)
	}
	p := f.pipeline()

	st, err := p.Run(context.Background(), runConfig(p))
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, models.RunStateFailed, st.State)
	assert.Empty(t, f.themes.generations)
}

func TestRun_WriteFailureFailsRun(t *testing.T) {
	items, vectors := twoTopics(0)
	f := newFixture(items, vectors)
	f.themes.replaceFn = func(context.Context, models.Generation) error {
		return errors.New("connection reset")
	}
	p := f.pipeline()

	st, err := p.Run(context.Background(), runConfig(p))
	require.Error(t, err)

	assert.Equal(t, models.RunStateFailed, st.State)
	assert.Contains(t, *st.Error, "persist: connection reset")
	assert.Zero(t, st.ThemesCreated)
}

func TestRun_NegativeACVIsInvariantViolation(t *testing.T) {
	items, vectors := twoTopics(0)
	f := newFixture(items, vectors)
	f.resolver.customers = map[string]models.Customer{
		"acme": {Name: "acme", ACV: -1, Segment: models.SegmentEnterprise},
	}
	p := f.pipeline()

	st, err := p.Run(context.Background(), runConfig(p))

	var iv *huberrors.InvariantViolationError
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "acme", iv.RecordID)
	assert.Equal(t, models.RunStateFailed, st.State)
	assert.Empty(t, f.themes.generations)
}

func TestRun_Timeout(t *testing.T) {
	items, vectors := twoTopics(0)
	f := newFixture(items, vectors)
	f.feedback.listFn = func(ctx context.Context) ([]models.FeedbackItem, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	}
	p := f.pipeline(WithTimeout(20 * time.Millisecond))

	st, err := p.Run(context.Background(), runConfig(p))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, models.RunStateFailed, st.State)
	assert.Contains(t, *st.Error, "timed out")

	// The pipeline accepts new runs after a timeout.
	f.feedback.listFn = func(context.Context) ([]models.FeedbackItem, error) { return items, nil }

	st, err = p.Run(context.Background(), runConfig(p))
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCompleted, st.State)
}

func TestRun_InvalidConfig(t *testing.T) {
	f := newFixture(nil, nil)
	p := f.pipeline()

	cfg := runConfig(p)
	cfg.MinClusterSize = 1

	_, err := p.Run(context.Background(), cfg)
	require.ErrorIs(t, err, huberrors.ErrValidation)

	cfg = runConfig(p)
	cfg.Weights = models.ScoreWeights{}

	_, err = p.Start(context.Background(), cfg)
	require.ErrorIs(t, err, huberrors.ErrValidation)

	assert.Equal(t, models.RunStateIdle, p.Latest().State)
}

func TestDefaultRunConfig_UsesScoringOverride(t *testing.T) {
	f := newFixture(nil, nil)
	p := f.pipeline()

	weights := models.DefaultScoreWeights()
	weights.Trend = 0.5

	require.NoError(t, p.ScoringConfig().Set(scoringConfig(weights)))

	assert.InDelta(t, 0.5, p.DefaultRunConfig().Weights.Trend, 1e-12)
	assert.False(t, p.DefaultRunConfig().LLMRefinement)
}

func scoringConfig(w models.ScoreWeights) scoring.Config {
	return scoring.Config{Weights: w, SegmentPriorities: models.DefaultSegmentPriorities()}
}

type fakeRunStore struct {
	mu    sync.Mutex
	saved []models.RunStatus
	getFn func(ctx context.Context, id uuid.UUID) (models.RunStatus, error)
}

func (f *fakeRunStore) Save(_ context.Context, s models.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saved = append(f.saved, s)

	return nil
}

func (f *fakeRunStore) Get(ctx context.Context, id uuid.UUID) (models.RunStatus, error) {
	return f.getFn(ctx, id)
}

func TestStatus(t *testing.T) {
	items, vectors := twoTopics(0)
	f := newFixture(items, vectors)

	t.Run("unknown run without a store", func(t *testing.T) {
		p := f.pipeline()

		_, err := p.Status(context.Background(), uuid.New())
		require.ErrorIs(t, err, huberrors.ErrNotFound)
	})

	t.Run("persists and falls back to the store", func(t *testing.T) {
		archived := models.RunStatus{RunID: uuid.New(), State: models.RunStateCompleted}
		store := &fakeRunStore{getFn: func(_ context.Context, id uuid.UUID) (models.RunStatus, error) {
			if id == archived.RunID {
				return archived, nil
			}

			return models.RunStatus{}, huberrors.NewNotFoundError("clustering_run", "run not found")
		}}
		p := f.pipeline(WithRunStore(store))

		st, err := p.Run(context.Background(), runConfig(p))
		require.NoError(t, err)

		require.Len(t, store.saved, 2)
		assert.Equal(t, models.RunStateRunning, store.saved[0].State)
		assert.Equal(t, models.RunStateCompleted, store.saved[1].State)
		assert.Equal(t, st.RunID, store.saved[1].RunID)

		got, err := p.Status(context.Background(), archived.RunID)
		require.NoError(t, err)
		assert.Equal(t, archived, got)

		_, err = p.Status(context.Background(), uuid.New())
		require.ErrorIs(t, err, huberrors.ErrNotFound)
	})
}
