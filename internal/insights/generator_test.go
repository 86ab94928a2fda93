package insights

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/themes/internal/models"
)

var createdAt = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func feedback(account, text string) models.FeedbackItem {
	fi := models.FeedbackItem{ID: uuid.New(), Text: text, CreatedAt: createdAt}
	if account != "" {
		fi.Account = &account
	}

	return fi
}

func itemsFrom(accounts ...string) []models.FeedbackItem {
	out := make([]models.FeedbackItem, len(accounts))
	for i, a := range accounts {
		out[i] = feedback(a, fmt.Sprintf("feedback %d", i))
	}

	return out
}

func TestGenerate_RuleTable(t *testing.T) {
	tests := []struct {
		name         string
		label        string
		items        []models.FeedbackItem
		wantTitle    string
		wantSeverity models.Severity
		wantEffort   models.Effort
		wantPriority int
	}{
		{
			name:         "sso is always high severity",
			label:        "Sso Login, Okta",
			items:        itemsFrom("acme", "acme", "globex"),
			wantTitle:    "Enterprise SSO/SAML integration blocking deals",
			wantSeverity: models.SeverityHigh,
			wantEffort:   models.EffortMedium,
			wantPriority: 62,
		},
		{
			name:         "export with moderate reach",
			label:        "Csv, Exports",
			items:        itemsFrom("a", "b", "c", "c", "c"),
			wantTitle:    "Data export functionality needs enhancement",
			wantSeverity: models.SeverityMedium,
			wantEffort:   models.EffortMedium,
			wantPriority: 50,
		},
		{
			name:         "mobile is high effort",
			label:        "Mobile Layout",
			items:        itemsFrom("a"),
			wantTitle:    "Mobile responsiveness limiting field team usage",
			wantSeverity: models.SeverityLow,
			wantEffort:   models.EffortHigh,
			wantPriority: 25,
		},
		{
			name:         "dark mode is low effort",
			label:        "Dark Mode, Night Colors",
			items:        itemsFrom("a", "b"),
			wantTitle:    "Add dark mode theme for reduced eye strain",
			wantSeverity: models.SeverityLow,
			wantEffort:   models.EffortLow,
			wantPriority: 50,
		},
		{
			name:         "many items raise severity",
			label:        "Dashboard Loading",
			items:        itemsFrom("a", "a", "a", "a", "a", "a", "a", "a", "a", "a"),
			wantTitle:    "Dashboard performance impacting user engagement",
			wantSeverity: models.SeverityHigh,
			wantEffort:   models.EffortMedium,
			wantPriority: 62,
		},
		{
			name:         "fallback uses the cleaned label",
			label:        "12 Onboarding, Checklist",
			items:        itemsFrom("a", ""),
			wantTitle:    "Onboarding & Checklist",
			wantSeverity: models.SeverityLow,
			wantEffort:   models.EffortMedium,
			wantPriority: 37,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			themeID := uuid.New()

			in := Generate(Theme{ID: themeID, Label: tt.label, Items: tt.items}, createdAt)

			assert.Equal(t, tt.wantTitle, in.Title)
			assert.Equal(t, tt.wantSeverity, in.Severity)
			assert.Equal(t, tt.wantEffort, in.Effort)
			assert.Equal(t, tt.wantPriority, in.PriorityScore)
			assert.Equal(t, themeID, in.ThemeID)
			assert.Equal(t, createdAt, in.CreatedAt)
			assert.Len(t, in.SupportingFeedbackIDs, len(tt.items))
			assert.NotEmpty(t, in.Description)
			assert.NotEmpty(t, in.Impact)
			assert.NotEmpty(t, in.Recommendation)
			assert.NotEqual(t, uuid.Nil, in.ID)
		})
	}
}

func TestGenerate_FallbackDescriptionCountsNamedAccounts(t *testing.T) {
	in := Generate(Theme{Label: "Onboarding, Checklist", Items: itemsFrom("a", "b", "", "b")}, createdAt)

	assert.Equal(t,
		"2 customer(s) have provided feedback on onboarding & checklist. This pattern suggests a consistent user need that should be evaluated for roadmap inclusion.",
		in.Description)
	assert.Contains(t, in.Recommendation, "Review all 4 feedback items")
}

func TestGenerate_LongFallbackTitleIsShortened(t *testing.T) {
	label := "Onboarding Checklist Confusing, Welcome Tour Skipped, Setup Wizard Unclear"

	in := Generate(Theme{Label: label, Items: itemsFrom("a")}, createdAt)

	assert.True(t, strings.HasSuffix(in.Title, "..."))
	assert.LessOrEqual(t, utf8.RuneCountInString(in.Title), maxTitleRunes)
	assert.True(t, strings.HasPrefix(in.Title, "Onboarding Checklist Confusing & Welcome"))
}

func TestGenerate_TitleOmitsCustomerNames(t *testing.T) {
	in := Generate(Theme{
		Label:     "Globex, Onboarding Checklist",
		Items:     itemsFrom("globex", "initech"),
		Customers: []models.Customer{{Name: "Globex", ACV: 1000, Segment: models.SegmentSMB}},
	}, createdAt)

	assert.Equal(t, "Onboarding Checklist", in.Title)
	assert.NotContains(t, strings.ToLower(in.Description), "globex")
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		names []string
		want  string
	}{
		{"case insensitive", "ACME onboarding checklist", []string{"Acme"}, "onboarding checklist"},
		{"whole words only", "Acmefoods export", []string{"acme"}, "Acmefoods export"},
		{"punctuated name", "Export for Acme Inc. users", []string{"Acme Inc."}, "Export for users"},
		{"separators trimmed", "Initech & Csv Export", []string{"initech"}, "Csv Export"},
		{"blank names ignored", "Csv Export", []string{"", "  "}, "Csv Export"},
		{"only names left", "Globex", []string{"globex"}, untitled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeTitle(tt.title, tt.names))
		})
	}
}

func TestGenerate_AffectedCustomersSortedByACV(t *testing.T) {
	in := Generate(Theme{
		Label: "Csv Export",
		Items: itemsFrom("small", "big"),
		Customers: []models.Customer{
			{Name: "small", ACV: 1000, Segment: models.SegmentSMB},
			{Name: "big", ACV: 250000, Segment: models.SegmentEnterprise},
		},
	}, createdAt)

	require.Len(t, in.AffectedCustomers, 2)
	assert.Equal(t, "big", in.AffectedCustomers[0].Name)
	assert.Equal(t, models.SegmentEnterprise, in.AffectedCustomers[0].Segment)
}

func TestKeyQuotes(t *testing.T) {
	items := []models.FeedbackItem{
		feedback("a", "CSV export broken"),
		feedback("a", "Need data export for reports"),
		feedback("a", "love the product"),
		feedback("a", "Export data functionality missing"),
	}

	quotes := KeyQuotes("Data export functionality needs enhancement", items)
	assert.Equal(t, []string{
		"Export data functionality missing",
		"Need data export for reports",
		"CSV export broken",
	}, quotes)

	quotes = KeyQuotes("Mobile responsiveness limiting field team usage", items)
	assert.Equal(t, []string{"CSV export broken", "Need data export for reports", "love the product"}, quotes)

	assert.Empty(t, KeyQuotes("Anything", nil))
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 75, Priority(models.SeverityHigh, models.EffortLow))
	assert.Equal(t, 50, Priority(models.SeverityHigh, models.EffortHigh))
	assert.Equal(t, 25, Priority(models.SeverityLow, models.EffortHigh))
	assert.Equal(t, 50, Priority(models.SeverityMedium, models.EffortMedium))
}

func TestMatchRule(t *testing.T) {
	r, ok := matchRule("Authentication Errors")
	require.True(t, ok)
	assert.Equal(t, "Enterprise SSO/SAML integration blocking deals", r.title)

	r, ok = matchRule("Public Api Limits")
	require.True(t, ok)
	assert.Equal(t, "Build webhook and API integration capabilities", r.title)

	// Substrings inside other words do not match.
	_, ok = matchRule("Rapid Capital Planning")
	assert.False(t, ok)
}
