package models

import (
	"fmt"
	"strings"
)

// Segment is a customer size tier.
type Segment string

// Customer segments.
const (
	SegmentEnterprise Segment = "ENT"
	SegmentMidMarket  Segment = "MM"
	SegmentSMB        Segment = "SMB"
)

// Segments lists every segment in priority order.
var Segments = []Segment{SegmentEnterprise, SegmentMidMarket, SegmentSMB}

// ParseSegment accepts the short codes and the long names (enterprise, mid-market, smb), case-insensitive.
func ParseSegment(s string) (Segment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ent", "enterprise":
		return SegmentEnterprise, nil
	case "mm", "mid-market", "midmarket", "mid_market":
		return SegmentMidMarket, nil
	case "smb", "small business", "small_business":
		return SegmentSMB, nil
	default:
		return "", fmt.Errorf("invalid segment: %q", s)
	}
}

// Customer is read-only reference data resolved from the account directory.
type Customer struct {
	Name    string  `json:"name"`
	ACV     float64 `json:"acv"`
	Segment Segment `json:"segment"`
}
