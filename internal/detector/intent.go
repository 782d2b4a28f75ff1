package detector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/llm"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/metrics"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"go.uber.org/zap"
)

const (
	keywordQuoteLimit = 300
	fallbackSummary   = "LLM call failed; keyword detection only."
)

// ProgressFunc receives 1-indexed progress once per candidate
type ProgressFunc func(current, total int, label string)

// IntentAnalyzer runs the keyword pass followed by optional LLM confirmation
type IntentAnalyzer struct {
	detector *KeywordDetector
	logger   *zap.Logger
}

// NewIntentAnalyzer creates an analyzer around a keyword detector
func NewIntentAnalyzer(detector *KeywordDetector, logger *zap.Logger) *IntentAnalyzer {
	if detector == nil {
		detector = NewKeywordDetector(nil, DefaultContextWindow)
	}
	return &IntentAnalyzer{detector: detector, logger: logger}
}

// Analyze returns confirmed intent results sorted by timestamp. A nil
// adapter, or one that reports itself unavailable, selects keyword-only
// mode for the whole batch. Adapter failures never surface as errors.
func (a *IntentAnalyzer) Analyze(
	ctx context.Context,
	messages []models.MessageRecord,
	adapter llm.Adapter,
	progress ProgressFunc,
) []models.IntentResult {
	start := time.Now()

	live := make([]models.MessageRecord, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Body) == "" || m.TimestampMs <= 0 {
			continue
		}
		live = append(live, m)
	}
	ghosts := len(messages) - len(live)
	metrics.GhostRecords.Add(float64(ghosts))
	metrics.MessagesAnalyzed.Add(float64(len(live)))

	candidates := a.detector.Scan(live)
	metrics.Candidates.Add(float64(len(candidates)))

	a.logger.Info("Keyword scan finished",
		zap.Int("messages", len(live)),
		zap.Int("ghost_records", ghosts),
		zap.Int("candidates", len(candidates)))

	if len(candidates) == 0 {
		return []models.IntentResult{}
	}

	useLLM := adapter != nil && a.available(ctx, adapter)
	if adapter != nil && !useLLM {
		a.logger.Warn("LLM unavailable, running keyword-only analysis")
	}

	results := make([]models.IntentResult, 0, len(candidates))
	dismissed, fallbacks := 0, 0
	total := len(candidates)

	for i, c := range candidates {
		if progress != nil {
			progress(i+1, total, progressLabel(c))
		}

		if !useLLM {
			results = append(results, confirmKeywordOnly(c))
			continue
		}

		resp, err := a.analyzeSafely(ctx, adapter, models.AnalysisRequest{
			Body:          c.Body,
			Direction:     c.Direction,
			ContactName:   c.ContactName,
			KwCategories:  c.KwCategories,
			ContextBefore: c.ContextBefore,
			ContextAfter:  c.ContextAfter,
		})

		switch {
		case err != nil || resp == nil:
			if err != nil {
				a.logger.Debug("LLM analysis failed, keeping keyword result",
					zap.Int("candidate", i+1),
					zap.Error(err))
			}
			fallbacks++
			results = append(results, confirmFallback(c))
		case !resp.Confirmed:
			dismissed++
		default:
			results = append(results, confirmAI(c, resp))
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TimestampMs < results[j].TimestampMs
	})

	for _, r := range results {
		metrics.Intents.WithLabelValues(string(r.DetectionMode)).Inc()
	}
	metrics.Dismissed.Add(float64(dismissed))

	a.logger.Info("Intent analysis complete",
		zap.Bool("llm", useLLM),
		zap.Int("candidates", total),
		zap.Int("confirmed", len(results)),
		zap.Int("dismissed", dismissed),
		zap.Int("fallbacks", fallbacks),
		zap.Duration("elapsed", time.Since(start)))

	return results
}

func (a *IntentAnalyzer) available(ctx context.Context, adapter llm.Adapter) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("LLM availability check panicked", zap.Any("panic", r))
			ok = false
		}
	}()
	return adapter.IsAvailable(ctx)
}

func (a *IntentAnalyzer) analyzeSafely(
	ctx context.Context,
	adapter llm.Adapter,
	req models.AnalysisRequest,
) (resp *models.AnalysisResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return adapter.Analyze(ctx, req)
}

func progressLabel(c models.IntentResult) string {
	if c.ContactName != "" {
		return "Analyzing: " + c.ContactName
	}
	return "Analyzing: " + c.PhoneNumber
}

// confirmKeywordOnly promotes a candidate without LLM involvement
func confirmKeywordOnly(c models.IntentResult) models.IntentResult {
	r := copyKeywordFields(c)
	r.ContextSummary = fmt.Sprintf(
		"Keyword detection: %s. No LLM available for deeper analysis.",
		strings.Join(c.KwCategories, ", "))
	r.DetectionMode = models.DetectionKeyword
	return r
}

// confirmFallback keeps the keyword verdict after a failed LLM call
func confirmFallback(c models.IntentResult) models.IntentResult {
	r := copyKeywordFields(c)
	r.ContextSummary = fallbackSummary
	r.LLMModel = models.ModelFallback
	r.DetectionMode = models.DetectionAIFallback
	return r
}

// confirmAI takes the LLM verdict
func confirmAI(c models.IntentResult, resp *models.AnalysisResponse) models.IntentResult {
	r := c.Clone()
	r.Confirmed = true
	r.AICategories = append([]string{}, resp.Categories...)
	r.AISeverity = resp.Severity
	if r.AISeverity == "" {
		r.AISeverity = c.KwSeverity
	}
	r.FlaggedQuote = resp.FlaggedQuote
	r.ContextSummary = resp.ContextSummary
	r.LLMModel = resp.ModelUsed
	r.DetectionMode = models.DetectionAI
	return r
}

func copyKeywordFields(c models.IntentResult) models.IntentResult {
	r := c.Clone()
	r.Confirmed = true
	r.AICategories = append([]string{}, c.KwCategories...)
	r.AISeverity = c.KwSeverity
	r.FlaggedQuote = models.Truncate(c.Body, keywordQuoteLimit)
	return r
}
