package models

// AnalysisRequest is the input for single-message LLM analysis
type AnalysisRequest struct {
	Body          string
	Direction     Direction
	ContactName   string
	KwCategories  []string
	ContextBefore []string
	ContextAfter  []string
}

// AnalysisResponse is the parsed LLM verdict for one message
type AnalysisResponse struct {
	Confirmed      bool     `json:"confirmed"`
	Categories     []string `json:"categories"`
	Severity       string   `json:"severity"`
	FlaggedQuote   string   `json:"flagged_quote"`
	ContextSummary string   `json:"context_summary"`
	ModelUsed      string   `json:"model_used"`
	// RawResponse is kept for severity re-parsing, never persisted
	RawResponse string `json:"-"`
}
