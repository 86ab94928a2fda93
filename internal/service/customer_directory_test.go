package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/themes/internal/models"
)

type fakeCustomersRepo struct {
	calls      [][]string
	getByNames func(ctx context.Context, names []string) (map[string]models.Customer, error)
}

func (f *fakeCustomersRepo) GetByNames(ctx context.Context, names []string) (map[string]models.Customer, error) {
	f.calls = append(f.calls, names)

	return f.getByNames(ctx, names)
}

type recordingCacheMetrics struct {
	mu           sync.Mutex
	hits, misses map[string]int
}

func newRecordingCacheMetrics() *recordingCacheMetrics {
	return &recordingCacheMetrics{hits: map[string]int{}, misses: map[string]int{}}
}

func (r *recordingCacheMetrics) RecordHit(_ context.Context, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[name]++
}

func (r *recordingCacheMetrics) RecordMiss(_ context.Context, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses[name]++
}

var directory = map[string]models.Customer{
	"acme":    {Name: "acme", ACV: 120000, Segment: models.SegmentEnterprise},
	"globex":  {Name: "globex", ACV: 40000, Segment: models.SegmentMidMarket},
	"initech": {Name: "initech", ACV: 5000, Segment: models.SegmentSMB},
}

func lookupDirectory(_ context.Context, names []string) (map[string]models.Customer, error) {
	out := map[string]models.Customer{}

	for _, n := range names {
		if c, ok := directory[n]; ok {
			out[n] = c
		}
	}

	return out, nil
}

func TestCustomerDirectory_Resolve(t *testing.T) {
	repo := &fakeCustomersRepo{getByNames: lookupDirectory}
	metrics := newRecordingCacheMetrics()
	dir := NewCustomerDirectory(repo, 100, time.Minute, metrics)
	ctx := context.Background()

	got, err := dir.Resolve(ctx, []string{"acme", "globex", "acme", models.UnknownAccount, "nobody", ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]models.Customer{"acme": directory["acme"], "globex": directory["globex"]}, got)

	require.Len(t, repo.calls, 1)
	assert.ElementsMatch(t, []string{"acme", "globex", "nobody"}, repo.calls[0])
	assert.Equal(t, 3, metrics.misses[cacheNameCustomerDirectory])

	got, err = dir.Resolve(ctx, []string{"acme", "initech"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.Len(t, repo.calls, 2)
	assert.Equal(t, []string{"initech"}, repo.calls[1])
	assert.Equal(t, 1, metrics.hits[cacheNameCustomerDirectory])
}

func TestCustomerDirectory_OnlyUnknownAccounts(t *testing.T) {
	repo := &fakeCustomersRepo{getByNames: lookupDirectory}
	dir := NewCustomerDirectory(repo, 100, time.Minute, nil)

	got, err := dir.Resolve(context.Background(), []string{models.UnknownAccount})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, repo.calls)
}

func TestCustomerDirectory_RepositoryError(t *testing.T) {
	errDown := errors.New("connection refused")
	repo := &fakeCustomersRepo{getByNames: func(context.Context, []string) (map[string]models.Customer, error) {
		return nil, errDown
	}}
	dir := NewCustomerDirectory(repo, 100, time.Minute, nil)

	_, err := dir.Resolve(context.Background(), []string{"acme"})
	require.ErrorIs(t, err, errDown)
}
