package insights

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/themes/internal/models"
)

func TestTitleSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, TitleSimilarity("Dark mode", "DARK MODE"), 1e-12)
	assert.Greater(t, TitleSimilarity(
		"Data export functionality needs enhancement",
		"Data export functionality needs enhancements"), DuplicateTitleSimilarity)
	assert.Less(t, TitleSimilarity(
		"Search and filter functionality inadequate",
		"Dashboard performance impacting user engagement"), DuplicateTitleSimilarity)
}

func TestDeduplicate(t *testing.T) {
	shared := uuid.New()
	onlyA := uuid.New()
	onlyB := uuid.New()

	a := models.Insight{
		ID:                    uuid.New(),
		Title:                 "Data export functionality needs enhancement",
		PriorityScore:         50,
		SupportingFeedbackIDs: []uuid.UUID{shared, onlyA},
		AffectedCustomers:     []models.AffectedCustomer{{Name: "acme"}},
	}
	b := models.Insight{
		ID:                    uuid.New(),
		Title:                 "Data export functionality needs enhancements",
		PriorityScore:         62,
		SupportingFeedbackIDs: []uuid.UUID{onlyB, shared},
		AffectedCustomers:     []models.AffectedCustomer{{Name: "globex"}, {Name: "acme"}},
	}
	c := models.Insight{
		ID:            uuid.New(),
		Title:         "Mobile responsiveness limiting field team usage",
		PriorityScore: 25,
	}

	out := Deduplicate([]models.Insight{a, b, c})
	require.Len(t, out, 2)

	assert.Equal(t, b.ID, out[0].ID)
	assert.Equal(t, []uuid.UUID{onlyB, shared, onlyA}, out[0].SupportingFeedbackIDs)
	assert.Equal(t, []models.AffectedCustomer{{Name: "globex"}, {Name: "acme"}}, out[0].AffectedCustomers)
	assert.Equal(t, c.ID, out[1].ID)

	// Inputs are not mutated.
	assert.Equal(t, []uuid.UUID{onlyB, shared}, b.SupportingFeedbackIDs)
}

func TestDeduplicate_TieKeepsEarlier(t *testing.T) {
	first := models.Insight{ID: uuid.New(), Title: "Add dark mode theme", PriorityScore: 50}
	second := models.Insight{ID: uuid.New(), Title: "Add dark mode themes", PriorityScore: 50}

	out := Deduplicate([]models.Insight{first, second})
	require.Len(t, out, 1)
	assert.Equal(t, first.ID, out[0].ID)
}

func TestDeduplicate_Empty(t *testing.T) {
	assert.Empty(t, Deduplicate(nil))
}
