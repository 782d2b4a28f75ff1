package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const insertMessage = `
	INSERT OR IGNORE INTO messages
		(timestamp_ms, date_str, direction, contact_name, phone_number, msg_type, body, read, source_file)
	VALUES
		(:timestamp_ms, :date_str, :direction, :contact_name, :phone_number, :msg_type, :body, :read, :source_file)
`

const insertCall = `
	INSERT OR IGNORE INTO calls
		(timestamp_ms, date_str, call_type, contact_name, phone_number, duration_sec, duration_fmt, source_file)
	VALUES
		(:timestamp_ms, :date_str, :call_type, :contact_name, :phone_number, :duration_sec, :duration_fmt, :source_file)
`

const upsertIntent = `
	INSERT OR REPLACE INTO intent_results
		(record_id, message_ts_ms, date_str, direction, contact_name, phone_number, msg_type, body, source_file,
		 kw_categories, kw_severity, confirmed, ai_categories, ai_severity, flagged_quote, context_summary,
		 context_before, context_after, llm_model, detection_mode)
	VALUES
		((SELECT id FROM messages WHERE timestamp_ms = :message_ts_ms AND phone_number = :phone_number AND msg_type = :msg_type),
		 :message_ts_ms, :date_str, :direction, :contact_name, :phone_number, :msg_type, :body, :source_file,
		 :kw_categories, :kw_severity, :confirmed, :ai_categories, :ai_severity, :flagged_quote, :context_summary,
		 :context_before, :context_after, :llm_model, :detection_mode)
`

const upsertProfile = `
	INSERT OR REPLACE INTO contact_profiles
		(phone_number, contact_name, total_messages, total_calls, total_flags, flag_rate,
		 high_count, medium_count, low_count, risk_score, risk_label, category_breakdown,
		 first_contact_ms, last_contact_ms, escalation_trend, relationship_tags, generated_at)
	VALUES
		(:phone_number, :contact_name, :total_messages, :total_calls, :total_flags, :flag_rate,
		 :high_count, :medium_count, :low_count, :risk_score, :risk_label, :category_breakdown,
		 :first_contact_ms, :last_contact_ms, :escalation_trend, :relationship_tags, :generated_at)
`

// SaveRun writes one scan in a single transaction. Messages and calls are
// insert-or-ignore on their natural keys, intents and profiles replace.
func (r *sqliteRepository) SaveRun(ctx context.Context, run Run) (*models.RunMeta, error) {
	meta := &models.RunMeta{
		RunAt:         time.Now().Format(time.RFC3339),
		RunLabel:      run.RunLabel,
		SchemaVersion: SchemaVersion,
		MessageCount:  len(run.Messages),
		CallCount:     len(run.Calls),
		IntentCount:   len(run.Intents),
		Notes:         run.Notes,
	}
	if meta.RunLabel == "" {
		meta.RunLabel = "sentinel-run"
	}

	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := execEach(ctx, tx, insertMessage, len(run.Messages), func(i int) interface{} { return run.Messages[i] }); err != nil {
			return fmt.Errorf("write messages: %w", err)
		}
		if err := execEach(ctx, tx, insertCall, len(run.Calls), func(i int) interface{} { return run.Calls[i] }); err != nil {
			return fmt.Errorf("write calls: %w", err)
		}
		if err := writeIntents(ctx, tx, run.Intents); err != nil {
			return err
		}
		if err := writeProfiles(ctx, tx, run.Profiles); err != nil {
			return err
		}

		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO sentinel_meta
				(run_at, run_label, schema_version, message_count, call_count, intent_count, notes)
			VALUES
				(:run_at, :run_label, :schema_version, :message_count, :call_count, :intent_count, :notes)
		`, meta)
		if err != nil {
			return fmt.Errorf("write meta: %w", err)
		}
		meta.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		r.logger.Error("Failed to save run", zap.Error(err))
		return nil, err
	}

	r.logger.Info("Run saved",
		zap.Int64("run_id", meta.ID),
		zap.Int("messages", meta.MessageCount),
		zap.Int("calls", meta.CallCount),
		zap.Int("intents", meta.IntentCount),
		zap.Int("profiles", len(run.Profiles)))
	return meta, nil
}

// SaveContactProfiles replaces profile rows by phone number
func (r *sqliteRepository) SaveContactProfiles(ctx context.Context, profiles []models.ContactProfile) error {
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		return writeProfiles(ctx, tx, profiles)
	})
	if err != nil {
		r.logger.Error("Failed to save contact profiles", zap.Error(err))
		return err
	}
	r.logger.Debug("Contact profiles saved", zap.Int("count", len(profiles)))
	return nil
}

func writeIntents(ctx context.Context, tx *sqlx.Tx, intents []models.IntentResult) error {
	err := execEach(ctx, tx, upsertIntent, len(intents), func(i int) interface{} {
		return newIntentRow(intents[i])
	})
	if err != nil {
		return fmt.Errorf("write intents: %w", err)
	}
	return nil
}

func writeProfiles(ctx context.Context, tx *sqlx.Tx, profiles []models.ContactProfile) error {
	err := execEach(ctx, tx, upsertProfile, len(profiles), func(i int) interface{} {
		return newProfileRow(profiles[i])
	})
	if err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	return nil
}

// execEach runs a named statement once per row
func execEach(ctx context.Context, tx *sqlx.Tx, query string, n int, row func(i int) interface{}) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)); err != nil {
			return err
		}
	}
	return nil
}

func (r *sqliteRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
