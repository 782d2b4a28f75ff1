package models

import "strings"

// DetectionMode records which phase produced an intent result
type DetectionMode string

const (
	DetectionKeyword    DetectionMode = "KEYWORD"
	DetectionAI         DetectionMode = "AI"
	DetectionAIFallback DetectionMode = "AI_FALLBACK"
)

// Severity labels
const (
	SeverityHigh      = "HIGH"
	SeverityMedium    = "MEDIUM"
	SeverityLow       = "LOW"
	SeverityAmbiguous = "AMBIGUOUS"
)

// Provenance values for IntentResult.LLMModel
const (
	ModelKeywordOnly = "keyword-only"
	ModelFallback    = "fallback"
)

// IntentResult is the analysis output for one message.
// Transitions between phases produce new values; see Clone.
type IntentResult struct {
	RecordID    int64     `json:"record_id,omitempty"`
	TimestampMs int64     `json:"timestamp_ms"`
	DateStr     string    `json:"date_str"`
	Direction   Direction `json:"direction"`
	ContactName string    `json:"contact_name"`
	PhoneNumber string    `json:"phone_number"`
	MsgType     MsgType   `json:"msg_type"`
	Body        string    `json:"body"`
	SourceFile  string    `json:"source_file"`

	KwCategories   []string      `json:"kw_categories"`
	KwSeverity     string        `json:"kw_severity"`
	Confirmed      bool          `json:"confirmed"`
	AICategories   []string      `json:"ai_categories"`
	AISeverity     string        `json:"ai_severity"`
	FlaggedQuote   string        `json:"flagged_quote"`
	ContextSummary string        `json:"context_summary"`
	ContextBefore  []string      `json:"context_before"`
	ContextAfter   []string      `json:"context_after"`
	LLMModel       string        `json:"llm_model"`
	DetectionMode  DetectionMode `json:"detection_mode"`
}

// NewIntentResult copies the identity fields of msg into a pending result
func NewIntentResult(msg MessageRecord) IntentResult {
	return IntentResult{
		RecordID:      msg.ID,
		TimestampMs:   msg.TimestampMs,
		DateStr:       msg.DateStr,
		Direction:     msg.Direction,
		ContactName:   msg.ContactName,
		PhoneNumber:   msg.PhoneNumber,
		MsgType:       msg.MsgType,
		Body:          msg.Body,
		SourceFile:    msg.SourceFile,
		KwCategories:  []string{},
		KwSeverity:    SeverityLow,
		AICategories:  []string{},
		ContextBefore: []string{},
		ContextAfter:  []string{},
		LLMModel:      ModelKeywordOnly,
		DetectionMode: DetectionKeyword,
	}
}

// Clone returns a copy that shares no slices with r
func (r IntentResult) Clone() IntentResult {
	r.KwCategories = cloneStrings(r.KwCategories)
	r.AICategories = cloneStrings(r.AICategories)
	r.ContextBefore = cloneStrings(r.ContextBefore)
	r.ContextAfter = cloneStrings(r.ContextAfter)
	return r
}

// EffectiveSeverity is the AI severity when present, else the keyword
// severity, upper-cased.
func (r IntentResult) EffectiveSeverity() string {
	sev := r.AISeverity
	if sev == "" {
		sev = r.KwSeverity
	}
	return strings.ToUpper(sev)
}

// EffectiveCategories prefers AI categories over keyword categories
func (r IntentResult) EffectiveCategories() []string {
	if len(r.AICategories) > 0 {
		return r.AICategories
	}
	return r.KwCategories
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
