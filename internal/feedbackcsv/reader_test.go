package feedbackcsv

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/themes/internal/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRead(t *testing.T) {
	input := `Text,Account,Source,created_at,sentiment_score,Country
"SSO login keeps failing",Acme,chat_message,2026-01-23 07:08:21,-0.6,DE
"   ",Acme,,,,
"Export to CSV please",,,2026-02-01T10:00:00Z,,
"bad source",,fax,,,
"bad score",,,,2,
`

	items, stats, err := Read(strings.NewReader(input), now)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalRows)
	assert.Equal(t, 1, stats.SkippedEmpty)
	require.Len(t, stats.Failed, 2)
	assert.Equal(t, 5, stats.Failed[0].Row)
	assert.Equal(t, 6, stats.Failed[1].Row)

	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "SSO login keeps failing", first.Text)
	assert.Equal(t, models.SourceChatMessage, first.Source)
	require.NotNil(t, first.Account)
	assert.Equal(t, "Acme", *first.Account)
	assert.Equal(t, time.Date(2026, 1, 23, 7, 8, 21, 0, time.UTC), first.CreatedAt)
	require.NotNil(t, first.SentimentScore)
	assert.InDelta(t, -0.6, *first.SentimentScore, 1e-9)
	assert.InDelta(t, 1.0, first.SourceConfidence, 1e-9)
	assert.JSONEq(t, `{"country":"DE"}`, string(first.Metadata))

	second := items[1]
	assert.Equal(t, models.SourceUpload, second.Source)
	assert.Nil(t, second.Account)
	assert.Nil(t, second.SentimentScore)
	assert.Nil(t, second.Metadata)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), second.CreatedAt.UTC())
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRead_DefaultsCreatedAt(t *testing.T) {
	items, _, err := Read(strings.NewReader("text\nslow dashboard\n"), now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, now, items[0].CreatedAt)
}

func TestRead_MissingTextColumn(t *testing.T) {
	_, _, err := Read(strings.NewReader("body,account\nhello,Acme\n"), now)
	require.ErrorIs(t, err, ErrMissingTextColumn)
}

func TestRead_EmptyInput(t *testing.T) {
	_, _, err := Read(strings.NewReader(""), now)
	require.Error(t, err)
}
