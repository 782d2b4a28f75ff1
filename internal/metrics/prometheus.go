package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesAnalyzed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_messages_analyzed_total",
			Help: "Messages passed to intent analysis after the ghost filter",
		},
	)

	GhostRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_ghost_records_total",
			Help: "Messages dropped for empty body or non-positive timestamp",
		},
	)

	Candidates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_keyword_candidates_total",
			Help: "Keyword candidates produced by the first pass",
		},
	)

	Intents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_intents_total",
			Help: "Intent results emitted, by detection mode",
		},
		[]string{"mode"},
	)

	Dismissed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_candidates_dismissed_total",
			Help: "Candidates the LLM judged benign",
		},
	)

	Scored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_scored_messages_total",
			Help: "Messages scored by the severity scorer, by severity",
		},
		[]string{"severity"},
	)

	LLMDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_llm_request_duration_seconds",
			Help:    "LLM analysis call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	Scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_scans_total",
			Help: "Pipeline scans, by status",
		},
		[]string{"status"},
	)

	ContactProfiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_contact_profiles",
			Help: "Contact profiles produced by the last aggregation",
		},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(MessagesAnalyzed)
		prometheus.MustRegister(GhostRecords)
		prometheus.MustRegister(Candidates)
		prometheus.MustRegister(Intents)
		prometheus.MustRegister(Dismissed)
		prometheus.MustRegister(Scored)
		prometheus.MustRegister(LLMDuration)
		prometheus.MustRegister(Scans)
		prometheus.MustRegister(ContactProfiles)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
