package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/models"
)

func TestRunState_Lifecycle(t *testing.T) {
	s := NewRunState(2)

	assert.Equal(t, models.RunStateIdle, s.Latest().State)
	assert.False(t, s.IsRunning())

	first := uuid.New()

	st, err := s.begin(first, models.TriggerAPI, now)
	require.NoError(t, err)
	assert.True(t, st.IsRunning())
	assert.True(t, s.IsRunning())

	_, err = s.begin(uuid.New(), models.TriggerAPI, now)
	require.ErrorIs(t, err, huberrors.ErrAlreadyRunning)

	s.update(first, func(r *models.RunStatus) { r.ItemsEmbedded = 7 })
	s.update(uuid.New(), func(r *models.RunStatus) { r.ItemsEmbedded = 99 })

	got, ok := s.Get(first)
	require.True(t, ok)
	assert.Equal(t, 7, got.ItemsEmbedded)

	final := s.finish(first, now.Add(time.Minute), nil)
	assert.Equal(t, models.RunStateCompleted, final.State)
	assert.Nil(t, final.Error)
	assert.Equal(t, 7, final.ItemsEmbedded)
	assert.False(t, s.IsRunning())
	assert.Equal(t, first, s.Latest().RunID)

	second := uuid.New()
	_, err = s.begin(second, models.TriggerSchedule, now)
	require.NoError(t, err)

	failed := s.finish(second, now.Add(time.Minute), errors.New("embed: provider down"))
	assert.Equal(t, models.RunStateFailed, failed.State)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "embed: provider down", *failed.Error)
	assert.Equal(t, second, s.Latest().RunID)
}

func TestRunState_HistoryIsBounded(t *testing.T) {
	s := NewRunState(2)

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		_, err := s.begin(ids[i], models.TriggerAPI, now)
		require.NoError(t, err)
		s.finish(ids[i], now, nil)
	}

	_, ok := s.Get(ids[0])
	assert.False(t, ok)

	for _, id := range ids[1:] {
		_, ok := s.Get(id)
		assert.True(t, ok)
	}
}
