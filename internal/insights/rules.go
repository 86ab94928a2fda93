package insights

import (
	"fmt"
	"strings"

	"github.com/formbricks/themes/internal/models"
)

// rule is one row of the insight rule table. A rule matches when any of its keywords appears in
// the theme label; the first matching rule wins.
type rule struct {
	keywords       []string
	title          string
	description    string // %d is the affected account count
	impact         string // %s is the affected-customers phrase
	recommendation string
	effort         models.Effort
}

var rules = []rule{
	{
		keywords:    []string{"sso", "saml", "auth"},
		title:       "Enterprise SSO/SAML integration blocking deals",
		description: "Enterprise customers across %d accounts are blocked from deploying due to lack of SSO/SAML authentication. Security teams require enterprise SSO for compliance, making this a deployment blocker rather than a feature request.",
		impact:      "Blocking enterprise sales. Affects %s. Security compliance is non-negotiable for enterprise buyers. Each delayed deal represents significant ARR loss.",
		recommendation: "1) Conduct technical scoping for SAML 2.0 integration with major IdPs (Okta, Azure AD, Google Workspace). " +
			"2) Evaluate build vs buy to accelerate delivery. 3) Prioritize on the next roadmap cycle given enterprise pipeline impact. " +
			"4) Set up a design partnership with 2-3 blocked accounts to validate requirements.",
		effort: models.EffortMedium,
	},
	{
		keywords:    []string{"export", "excel", "csv"},
		title:       "Data export functionality needs enhancement",
		description: "%d customer(s) report workflow friction with data export functionality. Users need to extract data into Excel/CSV for analysis, reporting, and integration with other tools. Current export capabilities are insufficient for their daily workflows.",
		impact:      "Daily workflow friction for %s. Export is a frequently used feature; limitations here compound user frustration and may drive churn.",
		recommendation: "1) Interview affected users to understand specific export use cases and formats needed. " +
			"2) Prioritize bulk export functionality and format options (Excel, CSV, PDF). " +
			"3) Consider scheduled exports for recurring reporting needs. 4) Add export progress indicators for large datasets.",
		effort: models.EffortMedium,
	},
	{
		keywords:    []string{"mobile", "responsive"},
		title:       "Mobile responsiveness limiting field team usage",
		description: "%d customer(s) report usability issues on mobile devices. The application is not optimized for mobile/tablet usage, affecting field workers and remote teams who rely on mobile access.",
		impact:      "Excluding mobile users from effective product usage. Affects field teams and remote workers at %s. Growing mobile usage makes this increasingly critical.",
		recommendation: "1) Conduct a mobile usability audit to identify critical UI breakpoints. " +
			"2) Prioritize responsive design for the most-used features. 3) Weigh a Progressive Web App against native apps. " +
			"4) Test with actual mobile users from affected accounts.",
		effort: models.EffortHigh,
	},
	{
		keywords:    []string{"search", "filter"},
		title:       "Search and filter functionality inadequate",
		description: "%d customer(s) struggle to find information efficiently. Search and filtering functionality is inadequate, forcing users to manually browse through data, impacting productivity.",
		recommendation: "1) Analyze search analytics to understand search patterns and failure cases. " +
			"2) Implement fuzzy matching and better tokenization. 3) Add advanced filters for common use cases. " +
			"4) Consider a full-text search engine if the current approach is insufficient.",
		effort: models.EffortMedium,
	},
	{
		keywords:    []string{"dashboard", "performance", "loading"},
		title:       "Dashboard performance impacting user engagement",
		description: "%d customer(s) experience performance issues with dashboard loading times. Slow page loads and sluggish interactions are frustrating daily users and reducing platform engagement.",
		impact:      "Performance issues create daily friction for %s. Slow experiences reduce engagement and may push users toward alternative solutions.",
		recommendation: "1) Profile dashboard queries and identify slow database queries. 2) Cache expensive computations. " +
			"3) Add skeleton loaders and progressive loading for better perceived performance. " +
			"4) Consider pagination or virtualization for large datasets.",
		effort: models.EffortMedium,
	},
	{
		keywords:    []string{"webhook", "api", "integration"},
		title:       "Build webhook and API integration capabilities",
		description: "%d customer(s) require integration capabilities to connect with their existing tech stack. Lack of webhook/API functionality prevents automation and forces manual workflows.",
		impact:      "Limits enterprise adoption at %s. Integration capabilities are table-stakes for mid-market and enterprise customers who need to connect their tech stack.",
		recommendation: "1) Survey affected customers to understand integration needs and target systems. " +
			"2) Design a webhook event schema and API endpoints for common workflows. 3) Build self-service webhook configuration. " +
			"4) Write integration guides for popular tools.",
		effort: models.EffortMedium,
	},
	{
		keywords:    []string{"dark mode", "theme"},
		title:       "Add dark mode theme for reduced eye strain",
		description: "%d customer(s) have requested dark mode for reduced eye strain. This is particularly important for users who spend extended hours in the application daily.",
		recommendation: "1) Audit the design system for dark mode compatibility. 2) Implement a theme toggle with persisted user preference. " +
			"3) Ensure WCAG contrast standards in both modes. 4) Consider auto-switching based on system preferences.",
		effort: models.EffortLow,
	},
}

const genericImpact = "Affects %d customer(s) including %s. Addressing this issue could improve user satisfaction and reduce friction in their workflows."

// matchRule returns the first rule whose keyword prefixes a word of label, or whose multi-word
// keyword appears in it.
func matchRule(label string) (rule, bool) {
	lower := strings.ToLower(label)
	words := strings.FieldsFunc(lower, isSeparator)

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(strings.Join(words, " "), kw) {
					return r, true
				}

				continue
			}

			for _, w := range words {
				if strings.HasPrefix(w, kw) {
					return r, true
				}
			}
		}
	}

	return rule{}, false
}

func (r rule) render(affected int, customers string) (title, description, impact string) {
	impact = fmt.Sprintf(genericImpact, affected, customers)
	if r.impact != "" {
		impact = fmt.Sprintf(r.impact, customers)
	}

	return r.title, fmt.Sprintf(r.description, affected), impact
}
