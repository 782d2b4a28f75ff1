package repository

import (
	"database/sql"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
)

// intentRow mirrors intent_results; list columns hold JSON arrays
type intentRow struct {
	ID             int64          `db:"id"`
	RecordID       sql.NullInt64  `db:"record_id"`
	MessageTsMs    int64          `db:"message_ts_ms"`
	DateStr        string         `db:"date_str"`
	Direction      string         `db:"direction"`
	ContactName    string         `db:"contact_name"`
	PhoneNumber    string         `db:"phone_number"`
	MsgType        string         `db:"msg_type"`
	Body           string         `db:"body"`
	SourceFile     string         `db:"source_file"`
	KwCategories   sql.NullString `db:"kw_categories"`
	KwSeverity     string         `db:"kw_severity"`
	Confirmed      bool           `db:"confirmed"`
	AICategories   sql.NullString `db:"ai_categories"`
	AISeverity     string         `db:"ai_severity"`
	FlaggedQuote   string         `db:"flagged_quote"`
	ContextSummary string         `db:"context_summary"`
	ContextBefore  sql.NullString `db:"context_before"`
	ContextAfter   sql.NullString `db:"context_after"`
	LLMModel       string         `db:"llm_model"`
	DetectionMode  string         `db:"detection_mode"`
}

func newIntentRow(r models.IntentResult) intentRow {
	return intentRow{
		MessageTsMs:    r.TimestampMs,
		DateStr:        r.DateStr,
		Direction:      string(r.Direction),
		ContactName:    r.ContactName,
		PhoneNumber:    r.PhoneNumber,
		MsgType:        string(r.MsgType),
		Body:           r.Body,
		SourceFile:     r.SourceFile,
		KwCategories:   jsonColumn(r.KwCategories),
		KwSeverity:     r.KwSeverity,
		Confirmed:      r.Confirmed,
		AICategories:   jsonColumn(r.AICategories),
		AISeverity:     r.AISeverity,
		FlaggedQuote:   r.FlaggedQuote,
		ContextSummary: r.ContextSummary,
		ContextBefore:  jsonColumn(r.ContextBefore),
		ContextAfter:   jsonColumn(r.ContextAfter),
		LLMModel:       r.LLMModel,
		DetectionMode:  string(r.DetectionMode),
	}
}

func (row intentRow) toModel() models.IntentResult {
	return models.IntentResult{
		RecordID:       row.RecordID.Int64,
		TimestampMs:    row.MessageTsMs,
		DateStr:        row.DateStr,
		Direction:      models.Direction(row.Direction),
		ContactName:    row.ContactName,
		PhoneNumber:    row.PhoneNumber,
		MsgType:        models.MsgType(row.MsgType),
		Body:           row.Body,
		SourceFile:     row.SourceFile,
		KwCategories:   decodeList(row.KwCategories),
		KwSeverity:     row.KwSeverity,
		Confirmed:      row.Confirmed,
		AICategories:   decodeList(row.AICategories),
		AISeverity:     row.AISeverity,
		FlaggedQuote:   row.FlaggedQuote,
		ContextSummary: row.ContextSummary,
		ContextBefore:  decodeList(row.ContextBefore),
		ContextAfter:   decodeList(row.ContextAfter),
		LLMModel:       row.LLMModel,
		DetectionMode:  models.DetectionMode(row.DetectionMode),
	}
}

// profileRow mirrors contact_profiles
type profileRow struct {
	PhoneNumber       string         `db:"phone_number"`
	ContactName       string         `db:"contact_name"`
	TotalMessages     int            `db:"total_messages"`
	TotalCalls        int            `db:"total_calls"`
	TotalFlags        int            `db:"total_flags"`
	FlagRate          float64        `db:"flag_rate"`
	HighCount         int            `db:"high_count"`
	MediumCount       int            `db:"medium_count"`
	LowCount          int            `db:"low_count"`
	RiskScore         float64        `db:"risk_score"`
	RiskLabel         string         `db:"risk_label"`
	CategoryBreakdown sql.NullString `db:"category_breakdown"`
	FirstContactMs    sql.NullInt64  `db:"first_contact_ms"`
	LastContactMs     sql.NullInt64  `db:"last_contact_ms"`
	EscalationTrend   string         `db:"escalation_trend"`
	RelationshipTags  sql.NullString `db:"relationship_tags"`
	GeneratedAt       string         `db:"generated_at"`
}

func newProfileRow(p models.ContactProfile) profileRow {
	breakdown := p.CategoryBreakdown
	if breakdown == nil {
		breakdown = models.CategoryBreakdown{}
	}
	return profileRow{
		PhoneNumber:       p.PhoneNumber,
		ContactName:       p.ContactName,
		TotalMessages:     p.TotalMessages,
		TotalCalls:        p.TotalCalls,
		TotalFlags:        p.TotalFlags,
		FlagRate:          p.FlagRate,
		HighCount:         p.HighCount,
		MediumCount:       p.MediumCount,
		LowCount:          p.LowCount,
		RiskScore:         p.RiskScore,
		RiskLabel:         p.RiskLabel,
		CategoryBreakdown: sql.NullString{String: encodeJSON(breakdown), Valid: true},
		FirstContactMs:    nullInt(p.FirstContactMs),
		LastContactMs:     nullInt(p.LastContactMs),
		EscalationTrend:   p.EscalationTrend,
		RelationshipTags:  jsonColumn(p.RelationshipTags),
		GeneratedAt:       p.GeneratedAt,
	}
}

func (row profileRow) toModel() models.ContactProfile {
	return models.ContactProfile{
		PhoneNumber:       row.PhoneNumber,
		ContactName:       row.ContactName,
		TotalMessages:     row.TotalMessages,
		TotalCalls:        row.TotalCalls,
		TotalFlags:        row.TotalFlags,
		FlagRate:          row.FlagRate,
		HighCount:         row.HighCount,
		MediumCount:       row.MediumCount,
		LowCount:          row.LowCount,
		RiskScore:         row.RiskScore,
		RiskLabel:         row.RiskLabel,
		CategoryBreakdown: decodeBreakdown(row.CategoryBreakdown),
		FirstContactMs:    intPtr(row.FirstContactMs),
		LastContactMs:     intPtr(row.LastContactMs),
		EscalationTrend:   row.EscalationTrend,
		RelationshipTags:  decodeList(row.RelationshipTags),
		GeneratedAt:       row.GeneratedAt,
	}
}

// jobRow mirrors scan_jobs; times are RFC 3339 text
type jobRow struct {
	ID               string         `db:"id"`
	Status           string         `db:"status"`
	XMLDir           string         `db:"xml_dir"`
	MessagesParsed   int            `db:"messages_parsed"`
	CallsParsed      int            `db:"calls_parsed"`
	IntentsFlagged   int            `db:"intents_flagged"`
	ContactsProfiled int            `db:"contacts_profiled"`
	Progress         int            `db:"progress"`
	Total            int            `db:"total"`
	CreatedAt        string         `db:"created_at"`
	CompletedAt      sql.NullString `db:"completed_at"`
	ErrorMessage     string         `db:"error_message"`
}

func newJobRow(j *models.Job) jobRow {
	row := jobRow{
		ID:               j.ID,
		Status:           j.Status,
		XMLDir:           j.XMLDir,
		MessagesParsed:   j.MessagesParsed,
		CallsParsed:      j.CallsParsed,
		IntentsFlagged:   j.IntentsFlagged,
		ContactsProfiled: j.ContactsProfiled,
		Progress:         j.Progress,
		Total:            j.Total,
		CreatedAt:        j.CreatedAt.UTC().Format(time.RFC3339Nano),
		ErrorMessage:     j.ErrorMessage,
	}
	if j.CompletedAt != nil {
		row.CompletedAt = sql.NullString{String: j.CompletedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	return row
}

func (row jobRow) toModel() *models.Job {
	job := &models.Job{
		ID:               row.ID,
		Status:           row.Status,
		XMLDir:           row.XMLDir,
		MessagesParsed:   row.MessagesParsed,
		CallsParsed:      row.CallsParsed,
		IntentsFlagged:   row.IntentsFlagged,
		ContactsProfiled: row.ContactsProfiled,
		Progress:         row.Progress,
		Total:            row.Total,
		ErrorMessage:     row.ErrorMessage,
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, row.CreatedAt)
	if row.CompletedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, row.CompletedAt.String); err == nil {
			job.CompletedAt = &t
		}
	}
	return job
}

func jsonColumn(list []string) sql.NullString {
	if list == nil {
		list = []string{}
	}
	return sql.NullString{String: encodeJSON(list), Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
