package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"go.uber.org/zap"
)

const messageColumns = `id, timestamp_ms, date_str, direction, contact_name, phone_number, msg_type, body, read, source_file`

const callColumns = `id, timestamp_ms, date_str, call_type, contact_name, phone_number, duration_sec, duration_fmt, source_file`

const intentColumns = `id, record_id, message_ts_ms, date_str, direction, contact_name, phone_number, msg_type, body,
	source_file, kw_categories, kw_severity, confirmed, ai_categories, ai_severity, flagged_quote,
	context_summary, context_before, context_after, llm_model, detection_mode`

const profileColumns = `phone_number, contact_name, total_messages, total_calls, total_flags, flag_rate,
	high_count, medium_count, low_count, risk_score, risk_label, category_breakdown,
	first_contact_ms, last_contact_ms, escalation_trend, relationship_tags, generated_at`

// effectiveSeverity is the AI severity when present, else the keyword one
const effectiveSeverity = `COALESCE(NULLIF(ai_severity, ''), kw_severity)`

// LoadMessages returns stored messages oldest first; limit <= 0 means all
func (r *sqliteRepository) LoadMessages(ctx context.Context, limit int) ([]models.MessageRecord, error) {
	messages := []models.MessageRecord{}
	query := `SELECT ` + messageColumns + ` FROM messages ORDER BY timestamp_ms, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		r.logger.Error("Failed to load messages", zap.Error(err))
		return nil, err
	}
	return messages, nil
}

// LoadCalls returns stored calls oldest first
func (r *sqliteRepository) LoadCalls(ctx context.Context) ([]models.CallRecord, error) {
	calls := []models.CallRecord{}
	query := `SELECT ` + callColumns + ` FROM calls ORDER BY timestamp_ms, id`

	if err := r.db.SelectContext(ctx, &calls, query); err != nil {
		r.logger.Error("Failed to load calls", zap.Error(err))
		return nil, err
	}
	return calls, nil
}

// LoadIntents returns stored intent results oldest first
func (r *sqliteRepository) LoadIntents(ctx context.Context) ([]models.IntentResult, error) {
	var rows []intentRow
	query := `SELECT ` + intentColumns + ` FROM intent_results ORDER BY message_ts_ms, id`

	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		r.logger.Error("Failed to load intents", zap.Error(err))
		return nil, err
	}
	return intentModels(rows), nil
}

// ListIntents pages intent results newest first, optionally filtered by
// phone and by effective severity
func (r *sqliteRepository) ListIntents(ctx context.Context, phone, severity string, limit, offset int) ([]models.IntentResult, error) {
	limit, offset = clampPage(limit, offset, maxIntentPage)

	var where []string
	var args []interface{}
	if phone != "" {
		where = append(where, `phone_number = ?`)
		args = append(args, phone)
	}
	if severity != "" {
		where = append(where, effectiveSeverity+` = ?`)
		args = append(args, strings.ToUpper(severity))
	}

	query := `SELECT ` + intentColumns + ` FROM intent_results`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY message_ts_ms DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var rows []intentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to list intents", zap.Error(err))
		return nil, err
	}
	return intentModels(rows), nil
}

// ListContacts pages profiles by descending risk score
func (r *sqliteRepository) ListContacts(ctx context.Context, riskLabel string, limit, offset int) ([]models.ContactProfile, error) {
	limit, offset = clampPage(limit, offset, maxContactPage)

	query := `SELECT ` + profileColumns + ` FROM contact_profiles`
	var args []interface{}
	if riskLabel != "" {
		query += ` WHERE risk_label = ?`
		args = append(args, strings.ToUpper(riskLabel))
	}
	query += ` ORDER BY risk_score DESC, phone_number LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var rows []profileRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to list contacts", zap.Error(err))
		return nil, err
	}

	profiles := make([]models.ContactProfile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, row.toModel())
	}
	return profiles, nil
}

// GetContact returns ErrNotFound for an unknown phone number
func (r *sqliteRepository) GetContact(ctx context.Context, phone string) (*models.ContactProfile, error) {
	var row profileRow
	query := `SELECT ` + profileColumns + ` FROM contact_profiles WHERE phone_number = ?`

	err := r.db.GetContext(ctx, &row, query, phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get contact", zap.Error(err))
		return nil, err
	}

	profile := row.toModel()
	return &profile, nil
}

// LatestMeta returns the most recent run, ErrNotFound before the first run
func (r *sqliteRepository) LatestMeta(ctx context.Context) (*models.RunMeta, error) {
	var meta models.RunMeta
	query := `
		SELECT id, run_at, run_label, schema_version, message_count, call_count, intent_count, notes
		FROM sentinel_meta
		ORDER BY id DESC
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &meta, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get run metadata", zap.Error(err))
		return nil, err
	}
	return &meta, nil
}

// Stats counts rows per table plus severity and risk distributions
func (r *sqliteRepository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Severities: map[string]int{},
		RiskLabels: map[string]int{},
	}

	err := r.db.GetContext(ctx, stats, `
		SELECT
			(SELECT COUNT(*) FROM messages)                          AS messages,
			(SELECT COUNT(*) FROM calls)                             AS calls,
			(SELECT COUNT(*) FROM intent_results)                    AS intents,
			(SELECT COUNT(*) FROM intent_results WHERE confirmed = 1) AS confirmed,
			(SELECT COUNT(*) FROM contact_profiles)                  AS contacts
	`)
	if err != nil {
		r.logger.Error("Failed to count rows", zap.Error(err))
		return nil, err
	}

	if err := r.groupCount(ctx, stats.Severities,
		`SELECT `+effectiveSeverity+` AS k, COUNT(*) AS n FROM intent_results GROUP BY k`); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, stats.RiskLabels,
		`SELECT risk_label AS k, COUNT(*) AS n FROM contact_profiles GROUP BY k`); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *sqliteRepository) groupCount(ctx context.Context, into map[string]int, query string) error {
	var rows []struct {
		Key   string `db:"k"`
		Count int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		r.logger.Error("Failed to group rows", zap.Error(err))
		return err
	}
	for _, row := range rows {
		into[row.Key] = row.Count
	}
	return nil
}

func intentModels(rows []intentRow) []models.IntentResult {
	out := make([]models.IntentResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}
