package aggregator

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/metrics"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"go.uber.org/zap"
)

const (
	escalationMinMessages = 5
	escalationThreshold   = 0.25
)

// ContactAggregator folds messages, calls and intents into per-number
// profiles. Profiles are rebuilt from scratch on every call.
type ContactAggregator struct {
	relationships []models.Relationship
	logger        *zap.Logger
	now           func() time.Time
}

// NewContactAggregator creates an aggregator; relationships may be nil
func NewContactAggregator(relationships []models.Relationship, logger *zap.Logger) *ContactAggregator {
	return &ContactAggregator{
		relationships: relationships,
		logger:        logger,
		now:           time.Now,
	}
}

type contactStats struct {
	name          string
	messages      int
	calls         int
	flags         int
	high          int
	medium        int
	low           int
	categories    models.CategoryBreakdown
	messageTimes  []int64
	flagTimes     []int64
	firstCallName string
}

// Build returns profiles sorted by risk score, highest first
func (a *ContactAggregator) Build(
	messages []models.MessageRecord,
	calls []models.CallRecord,
	intents []models.IntentResult,
) []models.ContactProfile {
	stats := make(map[string]*contactStats)
	var order []string

	get := func(phone string) *contactStats {
		key := models.PhoneKey(phone)
		s, ok := stats[key]
		if !ok {
			s = &contactStats{}
			stats[key] = s
			order = append(order, key)
		}
		return s
	}

	for _, m := range messages {
		s := get(m.PhoneNumber)
		s.messages++
		s.messageTimes = append(s.messageTimes, m.TimestampMs)
		if s.name == "" && m.ContactName != "" {
			s.name = m.ContactName
		}
	}

	for _, c := range calls {
		s := get(c.PhoneNumber)
		s.calls++
		if s.firstCallName == "" && c.ContactName != "" {
			s.firstCallName = c.ContactName
		}
	}

	for _, r := range intents {
		s := get(r.PhoneNumber)
		s.flags++
		s.flagTimes = append(s.flagTimes, r.TimestampMs)

		switch r.EffectiveSeverity() {
		case models.SeverityHigh:
			s.high++
		case models.SeverityMedium:
			s.medium++
		default:
			s.low++
		}

		for _, cat := range r.EffectiveCategories() {
			s.categories = addCategory(s.categories, cat)
		}
	}

	generatedAt := a.now().UTC().Format(time.RFC3339)

	profiles := make([]models.ContactProfile, 0, len(order))
	for _, phone := range order {
		s := stats[phone]
		profiles = append(profiles, a.profile(phone, s, generatedAt))
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].RiskScore > profiles[j].RiskScore
	})

	metrics.ContactProfiles.Set(float64(len(profiles)))
	a.logger.Info("Contact profiles built",
		zap.Int("contacts", len(profiles)),
		zap.Int("messages", len(messages)),
		zap.Int("calls", len(calls)),
		zap.Int("intents", len(intents)))

	return profiles
}

func (a *ContactAggregator) profile(phone string, s *contactStats, generatedAt string) models.ContactProfile {
	name := s.name
	if name == "" {
		name = s.firstCallName
	}
	if name == "" {
		name = "Unknown"
	}

	flagRate := 0.0
	if s.messages > 0 {
		flagRate = float64(s.flags) / float64(s.messages)
	}

	score := RiskScore(s.high, s.medium, s.low, s.messages)

	breakdown := append(models.CategoryBreakdown{}, s.categories...)
	sort.SliceStable(breakdown, func(i, j int) bool {
		return breakdown[i].Count > breakdown[j].Count
	})

	p := models.ContactProfile{
		PhoneNumber:       phone,
		ContactName:       name,
		TotalMessages:     s.messages,
		TotalCalls:        s.calls,
		TotalFlags:        s.flags,
		FlagRate:          round(flagRate, 4),
		HighCount:         s.high,
		MediumCount:       s.medium,
		LowCount:          s.low,
		RiskScore:         score,
		RiskLabel:         RiskLabel(score),
		CategoryBreakdown: breakdown,
		EscalationTrend:   EscalationTrend(s.messageTimes, s.flagTimes),
		RelationshipTags:  a.tags(name),
		GeneratedAt:       generatedAt,
	}

	if len(s.messageTimes) > 0 {
		first, last := s.messageTimes[0], s.messageTimes[0]
		for _, ts := range s.messageTimes[1:] {
			if ts < first {
				first = ts
			}
			if ts > last {
				last = ts
			}
		}
		p.FirstContactMs = &first
		p.LastContactMs = &last
	}

	return p
}

// tags returns the tags of the first relationship, in configured order,
// equal to the full name or to its first word
func (a *ContactAggregator) tags(name string) []string {
	full := strings.ToLower(strings.TrimSpace(name))
	if full == "" || len(a.relationships) == 0 {
		return []string{}
	}
	first := strings.Fields(full)[0]

	for _, rel := range a.relationships {
		key := strings.ToLower(strings.TrimSpace(rel.Name))
		if key == full || key == first {
			return append([]string{}, rel.Tags...)
		}
	}
	return []string{}
}

// RiskScore is the severity-weighted flag density, capped at 100
func RiskScore(high, medium, low, messages int) float64 {
	denom := messages
	if denom < 1 {
		denom = 1
	}
	raw := float64(high*3+medium*2+low) / float64(denom) * 100
	return round(math.Min(100.0, raw), 2)
}

// RiskLabel maps a score to its band; lower bounds are inclusive
func RiskLabel(score float64) string {
	switch {
	case score < 15:
		return models.RiskLow
	case score < 35:
		return models.RiskMedium
	case score < 60:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}

// EscalationTrend compares flag density before and after the positional
// midpoint of the sorted message timeline.
func EscalationTrend(messageTimes, flagTimes []int64) string {
	n := len(messageTimes)
	if n < escalationMinMessages {
		return models.TrendUnknown
	}

	sorted := append([]int64(nil), messageTimes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	midpoint := sorted[n/2]

	firstMsgs, secondMsgs := 0, 0
	for _, ts := range sorted {
		if ts < midpoint {
			firstMsgs++
		} else {
			secondMsgs++
		}
	}
	firstFlags, secondFlags := 0, 0
	for _, ts := range flagTimes {
		if ts < midpoint {
			firstFlags++
		} else {
			secondFlags++
		}
	}

	rateFirst := float64(firstFlags) / float64(max(firstMsgs, 1))
	rateSecond := float64(secondFlags) / float64(max(secondMsgs, 1))

	if rateFirst == 0 && rateSecond == 0 {
		return models.TrendStable
	}
	if rateFirst == 0 {
		return models.TrendEscalating
	}

	change := (rateSecond - rateFirst) / rateFirst
	switch {
	case change > escalationThreshold:
		return models.TrendEscalating
	case change < -escalationThreshold:
		return models.TrendDeEscalating
	default:
		return models.TrendStable
	}
}

func addCategory(b models.CategoryBreakdown, category string) models.CategoryBreakdown {
	for i := range b {
		if b[i].Category == category {
			b[i].Count++
			return b
		}
	}
	return append(b, models.CategoryCount{Category: category, Count: 1})
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
