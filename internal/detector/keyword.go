package detector

import (
	"fmt"
	"strings"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
)

// DefaultContextWindow is the number of neighbouring messages captured on
// each side of a match
const DefaultContextWindow = 2

const contextBodyLimit = 200

// KeywordDetector is the offline first pass over a message set
type KeywordDetector struct {
	dict          *Dictionary
	contextWindow int
}

// NewKeywordDetector creates a detector. A nil dictionary selects the
// built-in one; a negative window is treated as zero.
func NewKeywordDetector(dict *Dictionary, contextWindow int) *KeywordDetector {
	if dict == nil {
		dict = DefaultDictionary()
	}
	if contextWindow < 0 {
		contextWindow = 0
	}
	return &KeywordDetector{dict: dict, contextWindow: contextWindow}
}

// Scan returns one pending candidate per matching message, in input order
func (d *KeywordDetector) Scan(messages []models.MessageRecord) []models.IntentResult {
	// per-contact positions, preserving message order
	byContact := make(map[string][]int)
	position := make([]int, len(messages))
	for i, m := range messages {
		key := contactKey(m)
		position[i] = len(byContact[key])
		byContact[key] = append(byContact[key], i)
	}

	var results []models.IntentResult
	for i, m := range messages {
		if strings.TrimSpace(m.Body) == "" {
			continue
		}

		matched := d.dict.Match(m.Body)
		if len(matched) == 0 {
			continue
		}

		thread := byContact[contactKey(m)]
		p := position[i]

		lo := p - d.contextWindow
		if lo < 0 {
			lo = 0
		}
		hi := p + 1 + d.contextWindow
		if hi > len(thread) {
			hi = len(thread)
		}

		before := make([]string, 0, p-lo)
		for _, idx := range thread[lo:p] {
			before = append(before, renderContext(messages[idx]))
		}
		after := make([]string, 0, hi-p-1)
		for _, idx := range thread[p+1 : hi] {
			after = append(after, renderContext(messages[idx]))
		}

		r := models.NewIntentResult(m)
		r.KwCategories = matched
		r.KwSeverity = d.dict.Severity(matched)
		r.ContextBefore = before
		r.ContextAfter = after
		results = append(results, r)
	}

	return results
}

func contactKey(m models.MessageRecord) string {
	if m.PhoneNumber != "" {
		return m.PhoneNumber
	}
	return m.ContactName
}

func renderContext(m models.MessageRecord) string {
	return fmt.Sprintf("[%s] %s", m.Direction, models.Truncate(m.Body, contextBodyLimit))
}
