package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
)

const (
	bodyLimit    = 1500
	quoteLimit   = 500
	summaryLimit = 1000
	rawLimit     = 500
)

// SystemInstruction is sent as the system message to chat-style backends
const SystemInstruction = `You are a forensic communication analyst. You review SMS messages for harmful, manipulative, or legally relevant intent and answer with a single JSON object only.`

// BuildPrompt renders the analysis prompt for one target message
func BuildPrompt(req models.AnalysisRequest) string {
	var ctx strings.Builder
	if len(req.ContextBefore) > 0 {
		ctx.WriteString("PRIOR MESSAGES (same contact):\n")
		ctx.WriteString(strings.Join(req.ContextBefore, "\n"))
		ctx.WriteString("\n\n")
	}

	fmt.Fprintf(&ctx, "TARGET MESSAGE (%s):\n\"%s\"\n\n", req.Direction, models.Truncate(req.Body, bodyLimit))

	if len(req.ContextAfter) > 0 {
		ctx.WriteString("FOLLOWING MESSAGES (same contact):\n")
		ctx.WriteString(strings.Join(req.ContextAfter, "\n"))
		ctx.WriteString("\n")
	}

	contact := req.ContactName
	if contact == "" {
		contact = "Unknown"
	}

	return fmt.Sprintf(`You are a forensic communication analyst. Analyze the target SMS message for harmful, manipulative, or legally relevant intent.

Contact: %s
Keyword pre-scan flagged: %s

%s
Respond ONLY with a valid JSON object. No markdown, no explanation.

{
  "confirmed": true or false,
  "categories": ["INSULT","THREAT","MANIPULATION","CUSTODY","POSITIVE"],
  "severity": "HIGH" or "MEDIUM" or "LOW",
  "flagged_quote": "most significant 1-2 sentences from the message",
  "context_summary": "1-2 sentence plain English summary of intent"
}

CATEGORY DEFINITIONS:
- INSULT: Personal attacks, name-calling, degrading language
- THREAT: Explicit or implied threats (physical, legal, financial)
- MANIPULATION: Gaslighting, guilt-tripping, blame-shifting, coercion
- CUSTODY: Any reference to children, parenting, custody, visitation, child support
- POSITIVE: Genuine affection, apology, support, encouragement

Set confirmed=false ONLY if the message is clearly benign and keyword match was a false positive.
LEGAL NOTE: This analysis is an inference. Do not present as a legal conclusion.`,
		contact,
		strings.Join(req.KwCategories, ", "),
		ctx.String())
}

// StripCodeFence removes a markdown code fence wrapped around a payload
func StripCodeFence(text string) string {
	clean := strings.TrimSpace(text)
	if strings.HasPrefix(clean, "```") {
		parts := strings.Split(clean, "```")
		if len(parts) >= 2 {
			clean = parts[1]
		}
		clean = strings.TrimPrefix(clean, "json")
	}
	return strings.TrimSpace(clean)
}

type rawVerdict struct {
	Confirmed      *bool             `json:"confirmed"`
	Categories     []json.RawMessage `json:"categories"`
	Severity       json.RawMessage   `json:"severity"`
	FlaggedQuote   json.RawMessage   `json:"flagged_quote"`
	ContextSummary json.RawMessage   `json:"context_summary"`
}

// ParseResponse decodes a model answer into a response. Categories and
// severity are upper-cased; non-string categories are skipped. A missing
// severity stays empty so callers decide their own default.
func ParseResponse(text, model string) (*models.AnalysisResponse, error) {
	clean := StripCodeFence(text)

	var v rawVerdict
	if err := json.Unmarshal([]byte(clean), &v); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	resp := &models.AnalysisResponse{
		Categories:  []string{},
		ModelUsed:   model,
		RawResponse: models.Truncate(text, rawLimit),
	}
	if v.Confirmed != nil {
		resp.Confirmed = *v.Confirmed
	}
	for _, raw := range v.Categories {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			resp.Categories = append(resp.Categories, strings.ToUpper(s))
		}
	}
	if sev, ok := stringify(v.Severity); ok {
		resp.Severity = strings.ToUpper(sev)
	}
	if q, ok := stringify(v.FlaggedQuote); ok {
		resp.FlaggedQuote = models.Truncate(q, quoteLimit)
	}
	if s, ok := stringify(v.ContextSummary); ok {
		resp.ContextSummary = models.Truncate(s, summaryLimit)
	}

	return resp, nil
}

// stringify renders a JSON scalar as text; absent and null report false
func stringify(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return strings.TrimSpace(string(raw)), true
}
