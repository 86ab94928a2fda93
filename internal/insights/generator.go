// Package insights derives one deterministic, actionable insight per theme from its label, members
// and affected customers, and merges insights whose titles are near duplicates.
package insights

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/formbricks/themes/internal/models"
)

const (
	maxKeyQuotes   = 3
	maxTitleRunes  = 60
	truncatedRunes = 57
	// untitled replaces a label that consisted only of customer names.
	untitled = "Recurring customer feedback"
)

var (
	enterpriseKeywords = []string{"enterprise", "security", "compliance", "sso", "saml"}

	severityScores = map[models.Severity]int{
		models.SeverityLow:    25,
		models.SeverityMedium: 50,
		models.SeverityHigh:   75,
	}
	effortScores = map[models.Effort]int{
		models.EffortLow:    75,
		models.EffortMedium: 50,
		models.EffortHigh:   25,
	}

	// Words ignored when matching key quotes against a title.
	quoteStopWords = map[string]bool{
		"a": true, "an": true, "the": true, "in": true, "on": true, "at": true, "to": true, "for": true,
		"of": true, "with": true, "by": true, "from": true, "is": true, "are": true, "was": true,
		"were": true, "be": true, "been": true, "being": true, "have": true, "has": true, "had": true,
		"needs": true, "need": true, "require": true, "requires": true, "required": true,
		"attention": true, "improvement": true, "enhancement": true, "better": true, "improved": true,
		"new": true, "add": true, "added": true, "adding": true,
	}

	wordPattern    = regexp.MustCompile(`\w+`)
	leadingNumbers = regexp.MustCompile(`^\d+\s+`)
)

// Theme is the input for one insight.
type Theme struct {
	ID    uuid.UUID
	Label string
	// Items are the theme's members, most representative first.
	Items []models.FeedbackItem
	// Customers are the resolved customers of the members' accounts.
	Customers []models.Customer
}

// Generate builds the insight for one theme.
func Generate(theme Theme, createdAt time.Time) models.Insight {
	affected := affectedAccounts(theme.Items)
	customersPhrase := fmt.Sprintf("%d customer(s)", affected)

	names := customerNames(theme)
	clean := sanitizeTitle(cleanLabel(theme.Label), names)

	var title, description, impact, recommendation string

	effort := models.EffortMedium

	if r, ok := matchRule(theme.Label); ok {
		title, description, impact = r.render(affected, customersPhrase)
		title = sanitizeTitle(title, names)
		recommendation = r.recommendation
		effort = r.effort
	} else {
		title = shortenTitle(clean)
		description = fmt.Sprintf("%d customer(s) have provided feedback on %s. This pattern suggests a consistent "+
			"user need that should be evaluated for roadmap inclusion.", affected, strings.ToLower(clean))
		impact = fmt.Sprintf(genericImpact, affected, customersPhrase)
		recommendation = fmt.Sprintf("1) Conduct user interviews with %s to understand root cause and specific pain points. "+
			"2) Review all %d feedback items to identify common patterns. 3) Draft technical requirements and an effort "+
			"estimate. 4) Present findings to the product team for roadmap prioritization.", customersPhrase, len(theme.Items))
	}

	severity := Severity(theme.Label, affected, len(theme.Items))

	ids := make([]uuid.UUID, len(theme.Items))
	for i, it := range theme.Items {
		ids[i] = it.ID
	}

	return models.Insight{
		ID:                    uuid.Must(uuid.NewV7()),
		ThemeID:               theme.ID,
		Title:                 title,
		Description:           description,
		Impact:                impact,
		Recommendation:        recommendation,
		Severity:              severity,
		Effort:                effort,
		PriorityScore:         Priority(severity, effort),
		KeyQuotes:             KeyQuotes(title, theme.Items),
		SupportingFeedbackIDs: ids,
		AffectedCustomers:     snapshot(theme.Customers),
		CreatedAt:             createdAt,
	}
}

// Severity is high for broad or enterprise-flavored themes, medium for moderate reach, else low.
func Severity(label string, affected, items int) models.Severity {
	lower := strings.ToLower(label)

	for _, kw := range enterpriseKeywords {
		if strings.Contains(lower, kw) {
			return models.SeverityHigh
		}
	}

	switch {
	case affected >= 5 || items >= 10:
		return models.SeverityHigh
	case affected >= 3 || items >= 5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Priority averages the severity and effort scores; low effort ranks higher.
func Priority(severity models.Severity, effort models.Effort) int {
	s, ok := severityScores[severity]
	if !ok {
		s = 50
	}

	e, ok := effortScores[effort]
	if !ok {
		e = 50
	}

	return (s + e) / 2
}

// KeyQuotes returns up to three member texts that mention the most title keywords, or the first
// three texts when none match.
func KeyQuotes(title string, items []models.FeedbackItem) []string {
	var keywords []string

	for _, w := range wordPattern.FindAllString(strings.ToLower(title), -1) {
		if !quoteStopWords[w] && len(w) > 2 {
			keywords = append(keywords, w)
		}
	}

	type scored struct {
		idx     int
		matches int
	}

	scores := make([]scored, 0, len(items))

	for i, it := range items {
		text := strings.ToLower(it.Text)

		n := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				n++
			}
		}

		if n > 0 {
			scores = append(scores, scored{idx: i, matches: n})
		}
	}

	sort.SliceStable(scores, func(a, b int) bool { return scores[a].matches > scores[b].matches })

	quotes := make([]string, 0, maxKeyQuotes)

	if len(scores) == 0 {
		for _, it := range items[:min(len(items), maxKeyQuotes)] {
			quotes = append(quotes, it.Text)
		}

		return quotes
	}

	for _, s := range scores[:min(len(scores), maxKeyQuotes)] {
		quotes = append(quotes, items[s.idx].Text)
	}

	return quotes
}

// affectedAccounts counts distinct named accounts; items without an account are not counted.
func affectedAccounts(items []models.FeedbackItem) int {
	seen := make(map[string]struct{})

	for _, it := range items {
		if it.Account != nil && strings.TrimSpace(*it.Account) != "" {
			seen[*it.Account] = struct{}{}
		}
	}

	return len(seen)
}

func snapshot(customers []models.Customer) []models.AffectedCustomer {
	out := make([]models.AffectedCustomer, 0, len(customers))
	for _, c := range customers {
		out = append(out, models.AffectedCustomer{Name: c.Name, Segment: c.Segment, ACV: c.ACV})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ACV != out[j].ACV {
			return out[i].ACV > out[j].ACV
		}

		return out[i].Name < out[j].Name
	})

	return out
}

// customerNames lists the resolved customers and the raw member accounts of a theme.
func customerNames(theme Theme) []string {
	names := make([]string, 0, len(theme.Customers)+len(theme.Items))
	for _, c := range theme.Customers {
		names = append(names, c.Name)
	}

	for _, it := range theme.Items {
		if it.Account != nil {
			names = append(names, *it.Account)
		}
	}

	return names
}

// sanitizeTitle removes every customer name from title as a whole word, ignoring case, and
// collapses the whitespace and separators left behind.
func sanitizeTitle(title string, names []string) string {
	for _, name := range names {
		if p := namePattern(name); p != nil {
			title = p.ReplaceAllString(title, " ")
		}
	}

	title = strings.Trim(strings.Join(strings.Fields(title), " "), " ,-&")
	if title == "" {
		return untitled
	}

	return title
}

func namePattern(name string) *regexp.Regexp {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	expr := regexp.QuoteMeta(name)

	// \b is ASCII only and anchors next to word characters; names like "Acme Inc." end in punctuation.
	if r, _ := utf8.DecodeRuneInString(name); r < utf8.RuneSelf && !isSeparator(r) {
		expr = `\b` + expr
	}

	if r, _ := utf8.DecodeLastRuneInString(name); r < utf8.RuneSelf && !isSeparator(r) {
		expr += `\b`
	}

	return regexp.MustCompile(`(?i)` + expr)
}

func cleanLabel(label string) string {
	s := leadingNumbers.ReplaceAllString(strings.TrimSpace(label), "")
	s = strings.ReplaceAll(s, ", ", " & ")

	return strings.Join(strings.Fields(s), " ")
}

// shortenTitle keeps titles within 60 runes, cutting at a word boundary.
func shortenTitle(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleRunes {
		return s
	}

	r := []rune(s)[:truncatedRunes]

	cut := len(r)
	for i := len(r) - 1; i > 0; i-- {
		if unicode.IsSpace(r[i]) {
			cut = i

			break
		}
	}

	return strings.TrimSpace(string(r[:cut])) + "..."
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
