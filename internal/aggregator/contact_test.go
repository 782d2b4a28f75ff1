package aggregator

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/detector"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"go.uber.org/zap"
)

func newAggregator(rel []models.Relationship) *ContactAggregator {
	a := NewContactAggregator(rel, zap.NewNop())
	a.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func sms(ts int64, phone, name, body string) models.MessageRecord {
	return models.MessageRecord{
		TimestampMs: ts,
		PhoneNumber: phone,
		ContactName: name,
		Direction:   models.DirectionReceived,
		MsgType:     models.MsgTypeSMS,
		Body:        body,
	}
}

func flag(ts int64, phone, severity string, cats ...string) models.IntentResult {
	return models.IntentResult{
		TimestampMs:  ts,
		PhoneNumber:  phone,
		KwSeverity:   severity,
		KwCategories: cats,
	}
}

func TestEndToEndKeywordOnly(t *testing.T) {
	messages := []models.MessageRecord{
		sms(1000, "+1555", "", "you will regret this"),
		sms(2000, "+1555", "", "see you at noon"),
		sms(3000, "+1555", "", "custody papers are ready"),
		sms(4000, "+1555", "", "ok sounds fine"),
		sms(5000, "+1555", "", "you will regret that too"),
	}

	analyzer := detector.NewIntentAnalyzer(detector.NewKeywordDetector(nil, 2), zap.NewNop())
	intents := analyzer.Analyze(context.Background(), messages, nil, nil)

	if len(intents) != 3 {
		t.Fatalf("got %d intents, want 3", len(intents))
	}
	for _, r := range intents {
		if !r.Confirmed || r.DetectionMode != models.DetectionKeyword {
			t.Errorf("intent %d confirmed=%v mode=%q", r.TimestampMs, r.Confirmed, r.DetectionMode)
		}
	}

	profiles := newAggregator(nil).Build(messages, nil, intents)
	if len(profiles) != 1 {
		t.Fatalf("got %d profiles, want 1", len(profiles))
	}
	p := profiles[0]

	if p.PhoneNumber != "+1555" || p.TotalMessages != 5 || p.TotalFlags != 3 {
		t.Errorf("counts = %+v", p)
	}
	if p.HighCount != 2 || p.MediumCount != 0 || p.LowCount != 1 {
		t.Errorf("severity buckets = %d/%d/%d, want 2/0/1", p.HighCount, p.MediumCount, p.LowCount)
	}
	if p.RiskScore != 100.0 {
		t.Errorf("RiskScore = %v, want 100", p.RiskScore)
	}
	if p.RiskLabel != models.RiskCritical {
		t.Errorf("RiskLabel = %q, want CRITICAL", p.RiskLabel)
	}
	if p.FlagRate != 0.6 {
		t.Errorf("FlagRate = %v, want 0.6", p.FlagRate)
	}
	if p.ContactName != "Unknown" {
		t.Errorf("ContactName = %q, want Unknown", p.ContactName)
	}
	if p.FirstContactMs == nil || *p.FirstContactMs != 1000 || p.LastContactMs == nil || *p.LastContactMs != 5000 {
		t.Errorf("first/last contact = %v/%v", p.FirstContactMs, p.LastContactMs)
	}
	if p.GeneratedAt != "2024-05-01T12:00:00Z" {
		t.Errorf("GeneratedAt = %q", p.GeneratedAt)
	}
	want := models.CategoryBreakdown{{Category: "THREAT", Count: 2}, {Category: "CUSTODY", Count: 1}}
	if !reflect.DeepEqual(p.CategoryBreakdown, want) {
		t.Errorf("CategoryBreakdown = %v, want %v", p.CategoryBreakdown, want)
	}
}

func TestBuildProfileSetIsUnion(t *testing.T) {
	messages := []models.MessageRecord{sms(1, "+1", "A", "hi")}
	calls := []models.CallRecord{{TimestampMs: 2, PhoneNumber: "+2", ContactName: "Caller"}}
	intents := []models.IntentResult{flag(3, "+3", "HIGH", "THREAT")}

	profiles := newAggregator(nil).Build(messages, calls, intents)
	if len(profiles) != 3 {
		t.Fatalf("got %d profiles, want 3", len(profiles))
	}

	byPhone := map[string]models.ContactProfile{}
	for _, p := range profiles {
		byPhone[p.PhoneNumber] = p
	}

	intentOnly := byPhone["+3"]
	if intentOnly.TotalMessages != 0 || intentOnly.TotalFlags != 1 || intentOnly.FlagRate != 0 {
		t.Errorf("intent-only profile = %+v", intentOnly)
	}
	if intentOnly.FirstContactMs != nil || intentOnly.LastContactMs != nil {
		t.Error("intent-only profile should have no contact range")
	}
	if intentOnly.RiskScore != 100 {
		t.Errorf("intent-only RiskScore = %v, want 100 (denominator floor of 1)", intentOnly.RiskScore)
	}
	if byPhone["+2"].ContactName != "Caller" || byPhone["+2"].TotalCalls != 1 {
		t.Errorf("call-only profile = %+v", byPhone["+2"])
	}
	if profiles[0].PhoneNumber != "+3" {
		t.Errorf("highest risk first, got %q", profiles[0].PhoneNumber)
	}
}

func TestBuildNameResolution(t *testing.T) {
	messages := []models.MessageRecord{
		sms(1, "+1", "", "a"),
		sms(2, "+1", "First", "b"),
		sms(3, "+1", "Second", "c"),
		sms(4, "", "", "d"),
	}
	calls := []models.CallRecord{
		{TimestampMs: 5, PhoneNumber: "+1", ContactName: "FromCall"},
	}

	profiles := newAggregator(nil).Build(messages, calls, nil)
	byPhone := map[string]models.ContactProfile{}
	for _, p := range profiles {
		byPhone[p.PhoneNumber] = p
	}

	if got := byPhone["+1"].ContactName; got != "First" {
		t.Errorf("ContactName = %q, want First", got)
	}
	if _, ok := byPhone[models.UnknownPhone]; !ok {
		t.Error("message without phone should aggregate under UNKNOWN")
	}
}

func TestBuildSeverityBuckets(t *testing.T) {
	intents := []models.IntentResult{
		{PhoneNumber: "+1", AISeverity: "high", KwSeverity: "LOW"},
		{PhoneNumber: "+1", KwSeverity: "medium"},
		{PhoneNumber: "+1", AISeverity: "AMBIGUOUS"},
		{PhoneNumber: "+1", AISeverity: "weird"},
	}
	p := newAggregator(nil).Build(nil, nil, intents)[0]
	if p.HighCount != 1 || p.MediumCount != 1 || p.LowCount != 2 {
		t.Errorf("buckets = %d/%d/%d, want 1/1/2", p.HighCount, p.MediumCount, p.LowCount)
	}
}

func TestCategoryBreakdownTieKeepsFirstSeen(t *testing.T) {
	intents := []models.IntentResult{
		flag(1, "+1", "LOW", "CUSTODY"),
		flag(2, "+1", "LOW", "POSITIVE"),
		flag(3, "+1", "HIGH", "THREAT", "POSITIVE"),
		flag(4, "+1", "HIGH", "THREAT"),
		{TimestampMs: 5, PhoneNumber: "+1", AICategories: []string{"INSULT"}, KwCategories: []string{"THREAT"}},
	}
	p := newAggregator(nil).Build(nil, nil, intents)[0]

	want := models.CategoryBreakdown{
		{Category: "POSITIVE", Count: 2},
		{Category: "THREAT", Count: 2},
		{Category: "CUSTODY", Count: 1},
		{Category: "INSULT", Count: 1},
	}
	if !reflect.DeepEqual(p.CategoryBreakdown, want) {
		t.Errorf("CategoryBreakdown = %v, want %v", p.CategoryBreakdown, want)
	}
}

func TestRiskScoreCap(t *testing.T) {
	if got := RiskScore(1000, 0, 0, 1); got != 100.0 {
		t.Errorf("RiskScore = %v, want 100", got)
	}
	if got := RiskScore(0, 1, 1, 7); got != 42.86 {
		t.Errorf("RiskScore = %v, want 42.86", got)
	}
	if got := RiskScore(0, 0, 0, 0); got != 0 {
		t.Errorf("RiskScore = %v, want 0", got)
	}
}

func TestRiskLabelBands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "LOW"},
		{14.99, "LOW"},
		{15.0, "MEDIUM"},
		{34.99, "MEDIUM"},
		{35.0, "HIGH"},
		{59.99, "HIGH"},
		{60.0, "CRITICAL"},
		{100, "CRITICAL"},
	}
	for _, tt := range tests {
		if got := RiskLabel(tt.score); got != tt.want {
			t.Errorf("RiskLabel(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestEscalationTrend(t *testing.T) {
	tests := []struct {
		name     string
		messages []int64
		flags    []int64
		want     string
	}{
		{"four messages", []int64{1, 2, 3, 4}, []int64{4}, "UNKNOWN"},
		{"no flags", []int64{1, 2, 3, 4, 5}, nil, "STABLE"},
		// midpoint = 3: first half {1,2}, second half {3,4,5}
		{"silence then flags", []int64{1, 2, 3, 4, 5}, []int64{5}, "ESCALATING"},
		// rates 1/2 and 1/3: change = -1/3
		{"decreasing", []int64{1, 2, 3, 4, 5}, []int64{1, 3}, "DE-ESCALATING"},
		// rates 1/2 and 2/3: change = 1/3
		{"increasing", []int64{1, 2, 3, 4, 5}, []int64{1, 3, 4}, "ESCALATING"},
		// six messages, midpoint = 4: rates 1/3 and 1/3
		{"equal rates", []int64{6, 5, 4, 3, 2, 1}, []int64{1, 4}, "STABLE"},
		// flag exactly at midpoint counts in the second half
		{"flag at midpoint", []int64{10, 20, 30, 40, 50}, []int64{30}, "ESCALATING"},
		// rates 1/2 and 0: change = -1
		{"flags stop", []int64{1, 2, 3, 4, 5}, []int64{2}, "DE-ESCALATING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EscalationTrend(tt.messages, tt.flags); got != tt.want {
				t.Errorf("EscalationTrend = %q, want %q", got, tt.want)
			}
		})
	}
}

func repeatTS(ts int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = ts
	}
	return out
}

func TestEscalationTrendBandEdges(t *testing.T) {
	// ten messages, midpoint = 3: first half {1,2}, second half eight at ts 3.
	// First half rate is 1/2, so the second half is compared against 0.5.
	messages := append([]int64{1, 2}, repeatTS(3, 8)...)

	tests := []struct {
		name        string
		secondFlags int
		want        string
	}{
		{"change +0.25 stays stable", 5, "STABLE"},
		{"change +0.5 escalates", 6, "ESCALATING"},
		{"change -0.25 stays stable", 3, "STABLE"},
		{"change -0.5 de-escalates", 2, "DE-ESCALATING"},
		{"no change", 4, "STABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := append([]int64{1}, repeatTS(3, tt.secondFlags)...)
			if got := EscalationTrend(messages, flags); got != tt.want {
				t.Errorf("EscalationTrend = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRelationshipTags(t *testing.T) {
	rel := []models.Relationship{
		{Name: "Mom", Tags: []string{"family"}},
		{Name: "Dr Lee", Tags: []string{"medical"}},
	}
	messages := []models.MessageRecord{
		sms(1, "+1", "Mom", "a"),
		sms(2, "+2", "Mom Smith", "b"),
		sms(3, "+3", "Grandma", "c"),
		sms(4, "+4", "dr lee", "d"),
		sms(5, "+5", "", "e"),
	}

	profiles := newAggregator(rel).Build(messages, nil, nil)
	got := map[string][]string{}
	for _, p := range profiles {
		got[p.PhoneNumber] = p.RelationshipTags
	}

	want := map[string][]string{
		"+1": {"family"},
		"+2": {"family"},
		"+3": {},
		"+4": {"medical"},
		"+5": {},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
}

func TestRelationshipTagsFirstEntryWins(t *testing.T) {
	tests := []struct {
		name string
		rel  []models.Relationship
		want []string
	}{
		{
			"first word listed first",
			[]models.Relationship{
				{Name: "Mom", Tags: []string{"family"}},
				{Name: "Mom Smith", Tags: []string{"stepmother"}},
			},
			[]string{"family"},
		},
		{
			"full name listed first",
			[]models.Relationship{
				{Name: "Mom Smith", Tags: []string{"stepmother"}},
				{Name: "Mom", Tags: []string{"family"}},
			},
			[]string{"stepmother"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newAggregator(tt.rel).Build([]models.MessageRecord{sms(1, "+1", "Mom Smith", "a")}, nil, nil)[0]
			if !reflect.DeepEqual(p.RelationshipTags, tt.want) {
				t.Errorf("RelationshipTags = %v, want %v", p.RelationshipTags, tt.want)
			}
		})
	}
}

func TestRelationshipTagsWithoutMapping(t *testing.T) {
	p := newAggregator(nil).Build([]models.MessageRecord{sms(1, "+1", "Mom", "a")}, nil, nil)[0]
	if p.RelationshipTags == nil || len(p.RelationshipTags) != 0 {
		t.Errorf("RelationshipTags = %#v, want empty slice", p.RelationshipTags)
	}
}

func TestBuildStableOrderForTies(t *testing.T) {
	messages := []models.MessageRecord{
		sms(1, "+b", "", "x"),
		sms(2, "+a", "", "y"),
		sms(3, "+c", "", "z"),
	}
	profiles := newAggregator(nil).Build(messages, nil, nil)
	var order []string
	for _, p := range profiles {
		order = append(order, p.PhoneNumber)
	}
	if want := []string{"+b", "+a", "+c"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}
