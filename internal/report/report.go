// Package report builds the content-free summary used for legal review and
// its signed export form.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
)

// GeneratedAtLayout is the UTC timestamp format of reports
const GeneratedAtLayout = "2006-01-02T15:04:05Z"

type Summary struct {
	MessageCount       int    `json:"message_count"`
	CallCount          int    `json:"call_count"`
	IntentFlaggedCount int    `json:"intent_flagged_count"`
	DateRangeMinMs     *int64 `json:"date_range_min_ms"`
	DateRangeMaxMs     *int64 `json:"date_range_max_ms"`
}

type SeverityDistribution struct {
	HighCount   int `json:"high_count"`
	MediumCount int `json:"medium_count"`
	LowCount    int `json:"low_count"`
}

type EscalationIndicator struct {
	ContactIdentifier string `json:"contact_identifier"`
	Trend             string `json:"trend"`
}

// ContactRiskSummary identifies a contact by phone number only
type ContactRiskSummary struct {
	ContactIdentifier string  `json:"contact_identifier"`
	RiskScore         float64 `json:"risk_score"`
	RiskLabel         string  `json:"risk_label"`
	HighCount         int     `json:"high_count"`
	MediumCount       int     `json:"medium_count"`
	LowCount          int     `json:"low_count"`
	EscalationTrend   string  `json:"escalation_trend"`
	TotalMessages     int     `json:"total_messages"`
	TotalCalls        int     `json:"total_calls"`
	TotalFlags        int     `json:"total_flags"`
	FlagRate          float64 `json:"flag_rate"`
}

// Report carries scores, patterns and metadata. It never holds message
// bodies, quotes or contact names.
type Report struct {
	Summary                   Summary               `json:"summary"`
	SeverityDistribution      SeverityDistribution  `json:"severity_distribution"`
	EscalationTrendIndicators []EscalationIndicator `json:"escalation_trend_indicators"`
	ContactRiskProfiles       []ContactRiskSummary  `json:"contact_risk_profiles"`
	GeneratedAt               string                `json:"generated_at"`
	ReportVersion             string                `json:"report_version"`
}

// Build summarizes profiles and intents. Profile order is kept.
func Build(profiles []models.ContactProfile, intents []models.IntentResult, version string, now time.Time) Report {
	r := Report{
		EscalationTrendIndicators: make([]EscalationIndicator, 0, len(profiles)),
		ContactRiskProfiles:       make([]ContactRiskSummary, 0, len(profiles)),
		GeneratedAt:               now.UTC().Format(GeneratedAtLayout),
		ReportVersion:             version,
	}

	var mins, maxs []int64
	for _, p := range profiles {
		r.Summary.MessageCount += p.TotalMessages
		r.Summary.CallCount += p.TotalCalls
		if p.FirstContactMs != nil {
			mins = append(mins, *p.FirstContactMs)
		}
		if p.LastContactMs != nil {
			maxs = append(maxs, *p.LastContactMs)
		}

		r.EscalationTrendIndicators = append(r.EscalationTrendIndicators, EscalationIndicator{
			ContactIdentifier: p.PhoneNumber,
			Trend:             p.EscalationTrend,
		})
		r.ContactRiskProfiles = append(r.ContactRiskProfiles, ContactRiskSummary{
			ContactIdentifier: p.PhoneNumber,
			RiskScore:         p.RiskScore,
			RiskLabel:         p.RiskLabel,
			HighCount:         p.HighCount,
			MediumCount:       p.MediumCount,
			LowCount:          p.LowCount,
			EscalationTrend:   p.EscalationTrend,
			TotalMessages:     p.TotalMessages,
			TotalCalls:        p.TotalCalls,
			TotalFlags:        p.TotalFlags,
			FlagRate:          p.FlagRate,
		})
	}

	r.Summary.IntentFlaggedCount = len(intents)
	for _, in := range intents {
		mins = append(mins, in.TimestampMs)
		maxs = append(maxs, in.TimestampMs)

		switch strings.ToUpper(in.EffectiveSeverity()) {
		case models.SeverityHigh:
			r.SeverityDistribution.HighCount++
		case models.SeverityMedium:
			r.SeverityDistribution.MediumCount++
		case models.SeverityLow:
			r.SeverityDistribution.LowCount++
		}
	}

	if len(mins) > 0 {
		sort.Slice(mins, func(i, j int) bool { return mins[i] < mins[j] })
		r.Summary.DateRangeMinMs = &mins[0]
	}
	if len(maxs) > 0 {
		sort.Slice(maxs, func(i, j int) bool { return maxs[i] > maxs[j] })
		r.Summary.DateRangeMaxMs = &maxs[0]
	}
	return r
}
