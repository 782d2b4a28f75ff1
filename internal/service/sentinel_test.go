package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/aggregator"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/detector"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/llm"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/parser"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/repository"

	"go.uber.org/zap"
)

const backupSMS = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<smses count="4">
  <sms address="+15550100001" date="1700000001000" type="1" body="you will regret this" read="1" contact_name="Alex" />
  <sms address="+15550100001" date="1700000002000" type="2" body="please stop" read="1" contact_name="Alex" />
  <sms address="+15550100001" date="1700000003000" type="1" body="you are stupid" read="1" contact_name="Alex" />
  <sms address="+15550100002" date="1700000004000" type="1" body="dinner at six?" read="1" contact_name="Sam" />
</smses>`

const backupCalls = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<calls count="2">
  <call number="+15550100001" duration="60" date="1700000005000" type="1" contact_name="Alex" />
  <call number="+15550100003" duration="0" date="1700000006000" type="3" contact_name="" />
</calls>`

// fakeAdapter answers by message body; bodies without a response fail
type fakeAdapter struct {
	available bool
	responses map[string]*models.AnalysisResponse
}

func (f *fakeAdapter) IsAvailable(ctx context.Context) bool { return f.available }

func (f *fakeAdapter) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	if resp, ok := f.responses[req.Body]; ok {
		return resp, nil
	}
	return nil, errors.New("no answer")
}

func (f *fakeAdapter) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{"provider": "fake", "model": "fake-model"}
}

func backupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"sms-20240101.xml":   backupSMS,
		"calls-20240101.xml": backupCalls,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func newTestSentinel(t *testing.T, adapter *fakeAdapter) (*Sentinel, repository.Repository) {
	t.Helper()
	logger := zap.NewNop()
	db, err := repository.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := repository.NewRepository(db, logger)
	analyzer := detector.NewIntentAnalyzer(detector.NewKeywordDetector(nil, 2), logger)
	agg := aggregator.NewContactAggregator([]models.Relationship{{Name: "Alex", Tags: []string{"co-parent"}}}, logger)

	var a llm.Adapter
	if adapter != nil {
		a = adapter
	}
	s := NewSentinel(repo, parser.New(logger), analyzer, agg, a, Options{ReportVersion: "test", ContextWindow: 2}, logger)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, repo
}

func TestScanKeywordOnly(t *testing.T) {
	s, repo := newTestSentinel(t, nil)
	ctx := context.Background()

	var progressCalls int
	summary, err := s.Scan(ctx, ScanRequest{XMLDir: backupDir(t), RunLabel: "weekly"},
		func(current, total int, label string) { progressCalls++ })
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if summary.MessagesParsed != 4 || summary.CallsParsed != 2 {
		t.Errorf("parsed = %d msgs, %d calls", summary.MessagesParsed, summary.CallsParsed)
	}
	if summary.IntentsFlagged != 2 || progressCalls != 2 {
		t.Errorf("flagged = %d, progress calls = %d, want 2 and 2", summary.IntentsFlagged, progressCalls)
	}
	if summary.ContactsProfiled != 3 || !summary.KeywordOnly {
		t.Errorf("summary = %+v", summary)
	}

	meta, err := repo.LatestMeta(ctx)
	if err != nil {
		t.Fatalf("LatestMeta: %v", err)
	}
	if meta.ID != summary.RunID || meta.RunLabel != "weekly" || meta.IntentCount != 2 {
		t.Errorf("meta = %+v", meta)
	}

	alex, err := repo.GetContact(ctx, "+15550100001")
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if alex.TotalFlags != 2 || alex.TotalCalls != 1 || len(alex.RelationshipTags) != 1 {
		t.Errorf("profile = %+v", alex)
	}
}

func TestScanDefaultRunLabel(t *testing.T) {
	s, repo := newTestSentinel(t, nil)
	if _, err := s.Scan(context.Background(), ScanRequest{XMLDir: backupDir(t)}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	meta, err := repo.LatestMeta(context.Background())
	if err != nil {
		t.Fatalf("LatestMeta: %v", err)
	}
	if meta.RunLabel != defaultRunLabel {
		t.Errorf("RunLabel = %q, want %q", meta.RunLabel, defaultRunLabel)
	}
}

func TestScanAddressFilter(t *testing.T) {
	s, _ := newTestSentinel(t, nil)
	summary, err := s.Scan(context.Background(), ScanRequest{
		XMLDir:    backupDir(t),
		Addresses: []string{"+15550100002"},
	}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if summary.MessagesParsed != 1 || summary.CallsParsed != 0 || summary.IntentsFlagged != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestScanErrors(t *testing.T) {
	s, _ := newTestSentinel(t, nil)
	dir := backupDir(t)

	tests := []struct {
		name string
		req  ScanRequest
		want error
	}{
		{"file instead of dir", ScanRequest{XMLDir: filepath.Join(dir, "sms-20240101.xml")}, parser.ErrNotDirectory},
		{"missing dir", ScanRequest{XMLDir: filepath.Join(dir, "nope")}, os.ErrNotExist},
		{"empty dir", ScanRequest{XMLDir: t.TempDir()}, ErrNoInput},
		{"unknown address", ScanRequest{XMLDir: dir, Addresses: []string{"+19999999999"}}, ErrNoInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Scan(context.Background(), tt.req, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestScanWithAdapter(t *testing.T) {
	adapter := &fakeAdapter{
		available: true,
		responses: map[string]*models.AnalysisResponse{
			"you will regret this": {
				Confirmed:  true,
				Categories: []string{"THREAT"},
				Severity:   models.SeverityHigh,
				ModelUsed:  "fake-model",
			},
			"you are stupid": {Confirmed: false},
		},
	}
	s, repo := newTestSentinel(t, adapter)

	summary, err := s.Scan(context.Background(), ScanRequest{XMLDir: backupDir(t)}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if summary.KeywordOnly || summary.IntentsFlagged != 1 || summary.Severities[models.SeverityHigh] != 1 {
		t.Errorf("summary = %+v", summary)
	}

	intents, err := repo.LoadIntents(context.Background())
	if err != nil {
		t.Fatalf("LoadIntents: %v", err)
	}
	if len(intents) != 1 || intents[0].DetectionMode != models.DetectionAI || intents[0].LLMModel != "fake-model" {
		t.Errorf("intents = %+v", intents)
	}
}

func TestScanKeywordOnlyRequestIgnoresAdapter(t *testing.T) {
	s, _ := newTestSentinel(t, &fakeAdapter{available: true})
	summary, err := s.Scan(context.Background(), ScanRequest{XMLDir: backupDir(t), KeywordOnly: true}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !summary.KeywordOnly || summary.IntentsFlagged != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestScanJob(t *testing.T) {
	s, _ := newTestSentinel(t, nil)
	ctx := context.Background()

	job, err := s.StartScanJob(ctx, ScanRequest{XMLDir: backupDir(t)})
	if err != nil {
		t.Fatalf("StartScanJob: %v", err)
	}
	if job.Status != models.JobPending || job.ID == "" {
		t.Errorf("job = %+v", job)
	}
	s.Wait()

	done, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if done.Status != models.JobCompleted || done.CompletedAt == nil {
		t.Errorf("job = %+v", done)
	}
	if done.MessagesParsed != 4 || done.IntentsFlagged != 2 || done.Progress != 2 || done.Total != 2 {
		t.Errorf("job counts = %+v", done)
	}
}

func TestScanJobFailure(t *testing.T) {
	s, _ := newTestSentinel(t, nil)
	ctx := context.Background()

	job, err := s.StartScanJob(ctx, ScanRequest{XMLDir: t.TempDir()})
	if err != nil {
		t.Fatalf("StartScanJob: %v", err)
	}
	s.Wait()

	failed, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if failed.Status != models.JobFailed || !strings.Contains(failed.ErrorMessage, "no sms") {
		t.Errorf("job = %+v", failed)
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob(missing) err = %v, want ErrJobNotFound", err)
	}
}

func TestScoreStored(t *testing.T) {
	adapter := &fakeAdapter{
		available: true,
		responses: map[string]*models.AnalysisResponse{
			"you will regret this": {Severity: "high"},
			"please stop":          {Severity: "LOW"},
			"you are stupid":       {Severity: "SEVERE"},
		},
	}
	s, repo := newTestSentinel(t, adapter)
	ctx := context.Background()

	if _, err := s.Scan(ctx, ScanRequest{XMLDir: backupDir(t), KeywordOnly: true}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var last int
	summary, err := s.ScoreStored(ctx, 0, func(current, total int) { last = current })
	if err != nil {
		t.Fatalf("ScoreStored: %v", err)
	}
	if summary.Scored != 4 || last != 4 {
		t.Errorf("scored = %d, last progress = %d", summary.Scored, last)
	}
	if summary.Confirmed != 2 || summary.Ambiguous != 2 || summary.AmbiguousRate != 0.5 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Severities[models.SeverityHigh] != 1 || summary.Severities[models.SeverityAmbiguous] != 2 {
		t.Errorf("severities = %v", summary.Severities)
	}

	alex, err := repo.GetContact(ctx, "+15550100001")
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if alex.TotalFlags != 2 || alex.HighCount != 1 || alex.LowCount != 1 {
		t.Errorf("profile after scoring = %+v", alex)
	}
}

func TestScoreStoredLimitKeepsStoredProfiles(t *testing.T) {
	adapter := &fakeAdapter{
		available: true,
		responses: map[string]*models.AnalysisResponse{
			"you will regret this": {Severity: "HIGH"},
		},
	}
	s, repo := newTestSentinel(t, adapter)
	ctx := context.Background()

	if _, err := s.Scan(ctx, ScanRequest{XMLDir: backupDir(t), KeywordOnly: true}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	before, err := repo.GetContact(ctx, "+15550100001")
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}

	summary, err := s.ScoreStored(ctx, 1, nil)
	if err != nil {
		t.Fatalf("ScoreStored: %v", err)
	}
	if summary.Scored != 1 || summary.ProfilesSaved {
		t.Errorf("summary = %+v, want 1 scored and profiles not saved", summary)
	}
	if summary.ContactsProfiled != 3 {
		t.Errorf("contacts profiled = %d, want 3 (every stored message aggregated)", summary.ContactsProfiled)
	}

	after, err := repo.GetContact(ctx, "+15550100001")
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if before.LastContactMs == nil || after.LastContactMs == nil || *after.LastContactMs != *before.LastContactMs {
		t.Errorf("last contact changed: before %v, after %v", before.LastContactMs, after.LastContactMs)
	}
	if after.TotalMessages != before.TotalMessages || after.TotalFlags != before.TotalFlags || after.RiskScore != before.RiskScore {
		t.Errorf("stored profile changed by partial scoring:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestScoreStoredFullRunSavesProfiles(t *testing.T) {
	adapter := &fakeAdapter{available: true, responses: map[string]*models.AnalysisResponse{}}
	s, _ := newTestSentinel(t, adapter)
	ctx := context.Background()

	if _, err := s.Scan(ctx, ScanRequest{XMLDir: backupDir(t), KeywordOnly: true}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, limit := range []int{0, 4, 10} {
		summary, err := s.ScoreStored(ctx, limit, nil)
		if err != nil {
			t.Fatalf("ScoreStored(%d): %v", limit, err)
		}
		if summary.Scored != 4 || !summary.ProfilesSaved {
			t.Errorf("limit %d: summary = %+v, want 4 scored and profiles saved", limit, summary)
		}
	}
}

func TestScoreStoredRequiresAdapter(t *testing.T) {
	s, _ := newTestSentinel(t, nil)
	if _, err := s.ScoreStored(context.Background(), 0, nil); !errors.Is(err, ErrNoAdapter) {
		t.Errorf("err = %v, want ErrNoAdapter", err)
	}
}

func TestRebuildProfiles(t *testing.T) {
	s, repo := newTestSentinel(t, nil)
	ctx := context.Background()

	if _, err := s.Scan(ctx, ScanRequest{XMLDir: backupDir(t)}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	profiles, err := s.RebuildProfiles(ctx)
	if err != nil {
		t.Fatalf("RebuildProfiles: %v", err)
	}
	if len(profiles) != 3 {
		t.Fatalf("got %d profiles, want 3", len(profiles))
	}
	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Contacts != 3 {
		t.Errorf("stored contacts = %d, want 3", stats.Contacts)
	}
}

func TestBuildReport(t *testing.T) {
	s, _ := newTestSentinel(t, &fakeAdapter{})
	ctx := context.Background()

	if _, err := s.Scan(ctx, ScanRequest{XMLDir: backupDir(t), RunLabel: "case-1"}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	export, err := s.BuildReport(ctx)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	if export.Report.Summary.MessageCount != 4 || export.Report.Summary.IntentFlaggedCount != 2 {
		t.Errorf("summary = %+v", export.Report.Summary)
	}
	if export.ReportMetadata.ReportVersion != "test" || export.ReportMetadata.GeneratedAt != "2024-05-01T12:00:00Z" {
		t.Errorf("metadata = %+v", export.ReportMetadata)
	}
	params := export.ReportMetadata.ScanParameters
	if params["run_label"] != "case-1" || params["model"] != "fake-model" {
		t.Errorf("scan parameters = %v", params)
	}
	if ok, err := export.HashValid(); err != nil || !ok {
		t.Errorf("HashValid = %v, %v", ok, err)
	}
}
