package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/llm"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/metrics"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/prompt"

	"go.uber.org/zap"
)

// ProgressFunc receives 1-indexed progress once per message
type ProgressFunc func(current, total int)

// Scorer assigns a severity to every message through an LLM and fails
// closed to AMBIGUOUS when no valid severity comes back.
type Scorer struct {
	adapter llm.Adapter
	logger  *zap.Logger
}

// NewScorer creates a scorer around a required adapter
func NewScorer(adapter llm.Adapter, logger *zap.Logger) *Scorer {
	return &Scorer{adapter: adapter, logger: logger}
}

// ScoreMessage scores one message. It never returns an error; every
// failure is expressed as AMBIGUOUS severity.
func (s *Scorer) ScoreMessage(ctx context.Context, msg models.MessageRecord) models.IntentResult {
	result := models.NewIntentResult(msg)
	result.AISeverity = models.SeverityAmbiguous

	if strings.TrimSpace(msg.Body) == "" {
		result.DetectionMode = models.DetectionAIFallback
		return result
	}

	resp, err := s.analyzeSafely(ctx, models.AnalysisRequest{
		Body:          msg.Body,
		Direction:     msg.Direction,
		ContactName:   msg.ContactName,
		KwCategories:  []string{},
		ContextBefore: []string{},
		ContextAfter:  []string{},
	})
	if err != nil || resp == nil {
		result.DetectionMode = models.DetectionAIFallback
		result.LLMModel = models.ModelFallback
		return result
	}

	severity, ok := validSeverity(resp.Severity)
	if !ok {
		severity = ParseSeverity(resp.RawResponse)
	}

	result.AISeverity = severity
	result.LLMModel = resp.ModelUsed
	result.Confirmed = severity != models.SeverityAmbiguous
	if result.Confirmed {
		result.DetectionMode = models.DetectionAI
	} else {
		result.DetectionMode = models.DetectionAIFallback
	}
	return result
}

// ScoreMessages scores every message; the output has one entry per input
func (s *Scorer) ScoreMessages(ctx context.Context, messages []models.MessageRecord, progress ProgressFunc) []models.IntentResult {
	if len(messages) == 0 {
		s.logger.Info("Scorer: nothing to score")
		return []models.IntentResult{}
	}

	start := time.Now()
	results := make([]models.IntentResult, 0, len(messages))
	ambiguous := 0

	for i, m := range messages {
		if progress != nil {
			progress(i+1, len(messages))
		}
		r := s.ScoreMessage(ctx, m)
		if r.AISeverity == models.SeverityAmbiguous {
			ambiguous++
		}
		metrics.Scored.WithLabelValues(r.AISeverity).Inc()
		results = append(results, r)
	}

	s.logger.Info("Scorer complete",
		zap.Int("count", len(results)),
		zap.Int("ambiguous", ambiguous),
		zap.Duration("latency", time.Since(start)))

	return results
}

func (s *Scorer) analyzeSafely(ctx context.Context, req models.AnalysisRequest) (resp *models.AnalysisResponse, err error) {
	if s.adapter == nil {
		return nil, fmt.Errorf("no LLM adapter configured")
	}
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return s.adapter.Analyze(ctx, req)
}

// ParseSeverity extracts the severity field from a raw JSON answer,
// tolerating a surrounding markdown fence. Anything else is AMBIGUOUS.
func ParseSeverity(raw string) string {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(prompt.StripCodeFence(raw)), &data); err != nil {
		return models.SeverityAmbiguous
	}

	v, ok := data["severity"]
	if !ok || v == nil {
		return models.SeverityAmbiguous
	}

	var text string
	switch val := v.(type) {
	case string:
		text = val
	default:
		text = fmt.Sprint(val)
	}

	if sev, ok := validSeverity(text); ok {
		return sev
	}
	return models.SeverityAmbiguous
}

func validSeverity(s string) (string, bool) {
	sev := strings.ToUpper(strings.TrimSpace(s))
	switch sev {
	case models.SeverityHigh, models.SeverityMedium, models.SeverityLow:
		return sev, true
	}
	return "", false
}
