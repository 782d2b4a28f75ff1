package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/aggregator"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/detector"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/llm"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/metrics"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/parser"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/report"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/repository"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/scorer"

	"go.uber.org/zap"
)

var (
	// ErrJobNotFound is returned for an unknown scan job id
	ErrJobNotFound = errors.New("scan job not found")
	// ErrNoAdapter is returned when scoring is requested without an LLM
	ErrNoAdapter = errors.New("no LLM provider configured")
	// ErrNoInput is returned when a directory holds no sms or call backups
	ErrNoInput = errors.New("no sms-*.xml or calls-*.xml records found")
)

const defaultRunLabel = "api-scan"

// Options carries the scan settings that end up in run metadata and reports
type Options struct {
	RunLabel      string
	ReportVersion string
	ContextWindow int
}

// ScanRequest describes one pipeline run
type ScanRequest struct {
	XMLDir      string   `json:"xml_dir"`
	Addresses   []string `json:"addresses,omitempty"`
	KeywordOnly bool     `json:"keyword_only"`
	RunLabel    string   `json:"run_label,omitempty"`
}

// ScanSummary reports the counts of a finished scan
type ScanSummary struct {
	RunID            int64          `json:"run_id"`
	MessagesParsed   int            `json:"messages_parsed"`
	CallsParsed      int            `json:"calls_parsed"`
	IntentsFlagged   int            `json:"intents_flagged"`
	ContactsProfiled int            `json:"contacts_profiled"`
	HighRiskContacts int            `json:"high_risk_contacts"`
	Severities       map[string]int `json:"severities"`
	KeywordOnly      bool           `json:"keyword_only"`
	Elapsed          time.Duration  `json:"elapsed_ns"`
}

// ScoreSummary reports a severity-scoring pass over stored messages
type ScoreSummary struct {
	Scored           int            `json:"scored"`
	Confirmed        int            `json:"confirmed"`
	Ambiguous        int            `json:"ambiguous"`
	AmbiguousRate    float64        `json:"ambiguous_rate"`
	Severities       map[string]int `json:"severities"`
	ContactsProfiled int            `json:"contacts_profiled"`
	ProfilesSaved    bool           `json:"profiles_saved"`
}

// Sentinel wires parsing, analysis, aggregation and storage together
type Sentinel struct {
	repo       repository.Repository
	parser     *parser.Parser
	analyzer   *detector.IntentAnalyzer
	aggregator *aggregator.ContactAggregator
	adapter    llm.Adapter
	opts       Options
	logger     *zap.Logger

	jobs sync.WaitGroup
	now  func() time.Time
}

// NewSentinel creates the pipeline service. adapter may be nil, which
// forces keyword-only scans and disables scoring.
func NewSentinel(
	repo repository.Repository,
	p *parser.Parser,
	analyzer *detector.IntentAnalyzer,
	agg *aggregator.ContactAggregator,
	adapter llm.Adapter,
	opts Options,
	logger *zap.Logger,
) *Sentinel {
	if opts.RunLabel == "" {
		opts.RunLabel = defaultRunLabel
	}
	return &Sentinel{
		repo:       repo,
		parser:     p,
		analyzer:   analyzer,
		aggregator: agg,
		adapter:    adapter,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Scan parses the backups in req.XMLDir, analyzes them and stores the run
func (s *Sentinel) Scan(ctx context.Context, req ScanRequest, progress detector.ProgressFunc) (*ScanSummary, error) {
	start := s.now()

	messages, err := s.parser.ParseSMSDir(req.XMLDir)
	if err != nil {
		metrics.Scans.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("parse sms: %w", err)
	}
	calls, err := s.parser.ParseCallDir(req.XMLDir)
	if err != nil {
		metrics.Scans.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("parse calls: %w", err)
	}

	if len(req.Addresses) > 0 {
		messages, calls = filterAddresses(messages, calls, req.Addresses)
	}
	if len(messages) == 0 && len(calls) == 0 {
		metrics.Scans.WithLabelValues("failed").Inc()
		return nil, ErrNoInput
	}

	adapter := s.adapter
	if req.KeywordOnly {
		adapter = nil
	}

	intents := s.analyzer.Analyze(ctx, messages, adapter, progress)
	profiles := s.aggregator.Build(messages, calls, intents)

	label := req.RunLabel
	if label == "" {
		label = s.opts.RunLabel
	}
	meta, err := s.repo.SaveRun(ctx, repository.Run{
		Messages: messages,
		Calls:    calls,
		Intents:  intents,
		Profiles: profiles,
		RunLabel: label,
	})
	if err != nil {
		metrics.Scans.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("save run: %w", err)
	}

	summary := &ScanSummary{
		RunID:            meta.ID,
		MessagesParsed:   len(messages),
		CallsParsed:      len(calls),
		IntentsFlagged:   len(intents),
		ContactsProfiled: len(profiles),
		HighRiskContacts: highRisk(profiles),
		Severities:       severityCounts(intents),
		KeywordOnly:      adapter == nil,
		Elapsed:          s.now().Sub(start),
	}

	metrics.Scans.WithLabelValues("completed").Inc()
	metrics.ContactProfiles.Set(float64(len(profiles)))

	s.logger.Info("Scan complete",
		zap.Int64("run_id", summary.RunID),
		zap.Int("messages", summary.MessagesParsed),
		zap.Int("calls", summary.CallsParsed),
		zap.Int("intents", summary.IntentsFlagged),
		zap.Int("contacts", summary.ContactsProfiled),
		zap.Int("high_risk", summary.HighRiskContacts),
		zap.Duration("elapsed", summary.Elapsed))

	return summary, nil
}

// ScoreStored runs the severity scorer over stored messages and rebuilds
// contact profiles from the confirmed scores. limit <= 0 scores everything.
// Profiles always aggregate every stored message; they are only persisted
// when the scores cover all of them.
func (s *Sentinel) ScoreStored(ctx context.Context, limit int, progress scorer.ProgressFunc) (*ScoreSummary, error) {
	if s.adapter == nil {
		return nil, ErrNoAdapter
	}

	messages, err := s.repo.LoadMessages(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	toScore := messages
	if limit > 0 && limit < len(messages) {
		toScore = messages[:limit]
	}
	calls, err := s.repo.LoadCalls(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calls: %w", err)
	}

	scored := scorer.NewScorer(s.adapter, s.logger).ScoreMessages(ctx, toScore, progress)

	confirmed := make([]models.IntentResult, 0, len(scored))
	for _, r := range scored {
		if r.Confirmed {
			confirmed = append(confirmed, r)
		}
	}

	profiles := s.aggregator.Build(messages, calls, confirmed)
	complete := len(toScore) == len(messages)
	if complete {
		if err := s.repo.SaveContactProfiles(ctx, profiles); err != nil {
			return nil, fmt.Errorf("save profiles: %w", err)
		}
		metrics.ContactProfiles.Set(float64(len(profiles)))
	} else {
		s.logger.Info("Partial scoring, stored profiles left unchanged",
			zap.Int("scored", len(toScore)),
			zap.Int("messages", len(messages)))
	}

	summary := &ScoreSummary{
		Scored:           len(scored),
		Confirmed:        len(confirmed),
		Ambiguous:        len(scored) - len(confirmed),
		Severities:       severityCounts(scored),
		ContactsProfiled: len(profiles),
		ProfilesSaved:    complete,
	}
	if summary.Scored > 0 {
		summary.AmbiguousRate = float64(summary.Ambiguous) / float64(summary.Scored)
	}

	s.logger.Info("Scoring complete",
		zap.Int("scored", summary.Scored),
		zap.Int("ambiguous", summary.Ambiguous),
		zap.Float64("ambiguous_rate", summary.AmbiguousRate),
		zap.Int("contacts", summary.ContactsProfiled))

	return summary, nil
}

// RebuildProfiles re-aggregates stored messages, calls and intents
func (s *Sentinel) RebuildProfiles(ctx context.Context) ([]models.ContactProfile, error) {
	messages, err := s.repo.LoadMessages(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	calls, err := s.repo.LoadCalls(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calls: %w", err)
	}
	intents, err := s.repo.LoadIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load intents: %w", err)
	}

	profiles := s.aggregator.Build(messages, calls, intents)
	if err := s.repo.SaveContactProfiles(ctx, profiles); err != nil {
		return nil, fmt.Errorf("save profiles: %w", err)
	}
	metrics.ContactProfiles.Set(float64(len(profiles)))

	s.logger.Info("Contact profiles rebuilt", zap.Int("contacts", len(profiles)))
	return profiles, nil
}

// BuildReport assembles the export payload from the stored profiles and intents
func (s *Sentinel) BuildReport(ctx context.Context) (*report.Export, error) {
	profiles, err := s.allContacts(ctx)
	if err != nil {
		return nil, err
	}
	intents, err := s.repo.LoadIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load intents: %w", err)
	}

	r := report.Build(profiles, intents, s.opts.ReportVersion, s.now())
	export, err := report.NewExport(r, s.scanParameters(ctx))
	if err != nil {
		return nil, fmt.Errorf("build export: %w", err)
	}
	return export, nil
}

// Contacts returns every stored profile by descending risk
func (s *Sentinel) Contacts(ctx context.Context) ([]models.ContactProfile, error) {
	return s.allContacts(ctx)
}

func (s *Sentinel) allContacts(ctx context.Context) ([]models.ContactProfile, error) {
	const page = 500
	var all []models.ContactProfile
	for offset := 0; ; offset += page {
		batch, err := s.repo.ListContacts(ctx, "", page, offset)
		if err != nil {
			return nil, fmt.Errorf("list contacts: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < page {
			return all, nil
		}
	}
}

func (s *Sentinel) scanParameters(ctx context.Context) map[string]interface{} {
	params := map[string]interface{}{
		"context_window": s.opts.ContextWindow,
		"model":          s.modelName(),
	}
	meta, err := s.repo.LatestMeta(ctx)
	switch {
	case err == nil:
		params["run_label"] = meta.RunLabel
		params["run_at"] = meta.RunAt
		params["schema_version"] = meta.SchemaVersion
	case !errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("Run metadata unavailable for report", zap.Error(err))
	}
	return params
}

func (s *Sentinel) modelName() string {
	if s.adapter == nil {
		return models.ModelKeywordOnly
	}
	if d, ok := s.adapter.(llm.Describer); ok {
		if m, ok := d.GetModelInfo()["model"].(string); ok && m != "" {
			return m
		}
	}
	return "unknown"
}

func filterAddresses(
	messages []models.MessageRecord,
	calls []models.CallRecord,
	addresses []string,
) ([]models.MessageRecord, []models.CallRecord) {
	keep := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		keep[a] = true
	}

	fm := make([]models.MessageRecord, 0, len(messages))
	for _, m := range messages {
		if keep[m.PhoneNumber] {
			fm = append(fm, m)
		}
	}
	fc := make([]models.CallRecord, 0, len(calls))
	for _, c := range calls {
		if keep[c.PhoneNumber] {
			fc = append(fc, c)
		}
	}
	return fm, fc
}

func highRisk(profiles []models.ContactProfile) int {
	n := 0
	for _, p := range profiles {
		if p.RiskLabel == models.RiskHigh || p.RiskLabel == models.RiskCritical {
			n++
		}
	}
	return n
}

func severityCounts(intents []models.IntentResult) map[string]int {
	counts := map[string]int{}
	for _, r := range intents {
		counts[r.EffectiveSeverity()]++
	}
	return counts
}
