package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity of an insight.
type Severity string

// Severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Effort estimate of an insight.
type Effort string

// Efforts.
const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// AffectedCustomer is a snapshot of a customer at insight generation time.
type AffectedCustomer struct {
	Name    string  `json:"name"`
	Segment Segment `json:"segment"`
	ACV     float64 `json:"acv"`
}

// Insight is an actionable summary generated for one theme.
type Insight struct {
	ID                    uuid.UUID          `json:"id"`
	ThemeID               uuid.UUID          `json:"theme_id"`
	Title                 string             `json:"title"`
	Description           string             `json:"description"`
	Impact                string             `json:"impact"`
	Recommendation        string             `json:"recommendation"`
	Severity              Severity           `json:"severity"`
	Effort                Effort             `json:"effort"`
	PriorityScore         int                `json:"priority_score"`
	KeyQuotes             []string           `json:"key_quotes"`
	SupportingFeedbackIDs []uuid.UUID        `json:"supporting_feedback_ids"`
	AffectedCustomers     []AffectedCustomer `json:"affected_customers"`
	CreatedAt             time.Time          `json:"created_at"`
}

// ListInsightsFilters are the query parameters of the insight listing.
type ListInsightsFilters struct {
	Limit    int        `form:"limit" validate:"omitempty,gte=1,lte=500"`
	Severity *Severity  `form:"severity" validate:"omitempty,oneof=low medium high"`
	ThemeID  *uuid.UUID `form:"theme_id"`
}
