package insights

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/formbricks/themes/internal/models"
)

// DuplicateTitleSimilarity is the title similarity above which two insights are merged.
const DuplicateTitleSimilarity = 0.85

// TitleSimilarity is the Ratcliff/Obershelp ratio of the lowercased titles, compared by character.
func TitleSimilarity(a, b string) float64 {
	return difflib.NewMatcher(
		strings.Split(strings.ToLower(a), ""),
		strings.Split(strings.ToLower(b), ""),
	).Ratio()
}

// Deduplicate merges insights with near-identical titles. The one with the higher priority survives
// (the earlier one on ties) and absorbs the other's supporting feedback and affected customers.
// Survivors keep their input order.
func Deduplicate(insights []models.Insight) []models.Insight {
	merged := make([]models.Insight, len(insights))
	copy(merged, insights)

	dropped := make([]bool, len(merged))

	for i := range merged {
		if dropped[i] {
			continue
		}

		for j := i + 1; j < len(merged); j++ {
			if dropped[j] {
				continue
			}

			sim := TitleSimilarity(merged[i].Title, merged[j].Title)
			if sim <= DuplicateTitleSimilarity {
				continue
			}

			keep, drop := i, j
			if merged[j].PriorityScore > merged[i].PriorityScore {
				keep, drop = j, i
			}

			slog.Debug("merging duplicate insight",
				"kept", merged[keep].Title, "dropped", merged[drop].Title, "similarity", sim)

			absorb(&merged[keep], merged[drop])
			dropped[drop] = true

			if drop == i {
				break
			}
		}
	}

	out := make([]models.Insight, 0, len(merged))

	for i, in := range merged {
		if !dropped[i] {
			out = append(out, in)
		}
	}

	return out
}

func absorb(keep *models.Insight, drop models.Insight) {
	seen := make(map[uuid.UUID]bool, len(keep.SupportingFeedbackIDs))
	ids := append([]uuid.UUID(nil), keep.SupportingFeedbackIDs...)

	for _, id := range ids {
		seen[id] = true
	}

	for _, id := range drop.SupportingFeedbackIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	keep.SupportingFeedbackIDs = ids

	names := make(map[string]bool, len(keep.AffectedCustomers))
	customers := append([]models.AffectedCustomer(nil), keep.AffectedCustomers...)

	for _, c := range customers {
		names[c.Name] = true
	}

	for _, c := range drop.AffectedCustomers {
		if !names[c.Name] {
			names[c.Name] = true
			customers = append(customers, c)
		}
	}

	keep.AffectedCustomers = customers
}
