package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

const (
	maxContactPage = 500
	maxIntentPage  = 200
)

// Run is everything one scan writes
type Run struct {
	Messages []models.MessageRecord
	Calls    []models.CallRecord
	Intents  []models.IntentResult
	Profiles []models.ContactProfile
	RunLabel string
	Notes    string
}

// Stats summarizes the store contents
type Stats struct {
	Messages   int            `json:"messages" db:"messages"`
	Calls      int            `json:"calls" db:"calls"`
	Intents    int            `json:"intents" db:"intents"`
	Confirmed  int            `json:"confirmed" db:"confirmed"`
	Contacts   int            `json:"contacts" db:"contacts"`
	Severities map[string]int `json:"severities" db:"-"`
	RiskLabels map[string]int `json:"risk_labels" db:"-"`
}

// Repository defines the persistence operations of the pipeline
type Repository interface {
	SaveRun(ctx context.Context, run Run) (*models.RunMeta, error)
	SaveContactProfiles(ctx context.Context, profiles []models.ContactProfile) error

	LoadMessages(ctx context.Context, limit int) ([]models.MessageRecord, error)
	LoadCalls(ctx context.Context) ([]models.CallRecord, error)
	LoadIntents(ctx context.Context) ([]models.IntentResult, error)

	ListContacts(ctx context.Context, riskLabel string, limit, offset int) ([]models.ContactProfile, error)
	GetContact(ctx context.Context, phone string) (*models.ContactProfile, error)
	ListIntents(ctx context.Context, phone, severity string, limit, offset int) ([]models.IntentResult, error)

	LatestMeta(ctx context.Context) (*models.RunMeta, error)
	Stats(ctx context.Context) (*Stats, error)

	CreateJob(ctx context.Context, job *models.Job) error
	UpdateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
}

type sqliteRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRepository creates a repository over an opened and migrated database
func NewRepository(db *sqlx.DB, logger *zap.Logger) Repository {
	return &sqliteRepository{
		db:     db,
		logger: logger,
	}
}

func clampPage(limit, offset, max int) (int, int) {
	if limit <= 0 || limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func encodeJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// decodeList tolerates NULL and malformed JSON
func decodeList(raw sql.NullString) []string {
	out := []string{}
	if !raw.Valid || raw.String == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func decodeBreakdown(raw sql.NullString) models.CategoryBreakdown {
	var b models.CategoryBreakdown
	if !raw.Valid || raw.String == "" {
		return models.CategoryBreakdown{}
	}
	if err := json.Unmarshal([]byte(raw.String), &b); err != nil || b == nil {
		return models.CategoryBreakdown{}
	}
	return b
}
