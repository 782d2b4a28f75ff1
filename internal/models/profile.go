package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Risk labels
const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// Escalation trends
const (
	TrendStable       = "STABLE"
	TrendEscalating   = "ESCALATING"
	TrendDeEscalating = "DE-ESCALATING"
	TrendUnknown      = "UNKNOWN"
)

// Relationship attaches tags to contacts whose name, or its first word,
// equals Name ignoring case
type Relationship struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// ContactProfile is the aggregated summary for one phone number
type ContactProfile struct {
	PhoneNumber       string            `json:"phone_number"`
	ContactName       string            `json:"contact_name"`
	TotalMessages     int               `json:"total_messages"`
	TotalCalls        int               `json:"total_calls"`
	TotalFlags        int               `json:"total_flags"`
	FlagRate          float64           `json:"flag_rate"`
	HighCount         int               `json:"high_count"`
	MediumCount       int               `json:"medium_count"`
	LowCount          int               `json:"low_count"`
	RiskScore         float64           `json:"risk_score"`
	RiskLabel         string            `json:"risk_label"`
	CategoryBreakdown CategoryBreakdown `json:"category_breakdown"`
	FirstContactMs    *int64            `json:"first_contact_ms"`
	LastContactMs     *int64            `json:"last_contact_ms"`
	EscalationTrend   string            `json:"escalation_trend"`
	RelationshipTags  []string          `json:"relationship_tags"`
	GeneratedAt       string            `json:"generated_at"`
}

// CategoryCount is one entry of a category histogram
type CategoryCount struct {
	Category string
	Count    int
}

// CategoryBreakdown is an ordered category histogram. It encodes as a JSON
// object whose key order follows the slice order.
type CategoryBreakdown []CategoryCount

// Get returns the count for category, 0 when absent
func (b CategoryBreakdown) Get(category string) int {
	for _, c := range b {
		if c.Category == category {
			return c.Count
		}
	}
	return 0
}

func (b CategoryBreakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Category)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", c.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (b *CategoryBreakdown) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*b = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("category breakdown: expected object, got %v", tok)
	}

	out := CategoryBreakdown{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("category breakdown: unexpected key %v", tok)
		}
		var count int
		if err := dec.Decode(&count); err != nil {
			return fmt.Errorf("category breakdown: %s: %w", key, err)
		}
		out = append(out, CategoryCount{Category: key, Count: count})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*b = out
	return nil
}
