package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"go.uber.org/zap"
)

func (r *sqliteRepository) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO scan_jobs
			(id, status, xml_dir, messages_parsed, calls_parsed, intents_flagged, contacts_profiled,
			 progress, total, created_at, completed_at, error_message)
		VALUES
			(:id, :status, :xml_dir, :messages_parsed, :calls_parsed, :intents_flagged, :contacts_profiled,
			 :progress, :total, :created_at, :completed_at, :error_message)
	`

	if _, err := r.db.NamedExecContext(ctx, query, newJobRow(job)); err != nil {
		r.logger.Error("Failed to create scan job", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *sqliteRepository) UpdateJob(ctx context.Context, job *models.Job) error {
	query := `
		UPDATE scan_jobs
		SET status = :status,
			messages_parsed = :messages_parsed,
			calls_parsed = :calls_parsed,
			intents_flagged = :intents_flagged,
			contacts_profiled = :contacts_profiled,
			progress = :progress,
			total = :total,
			completed_at = :completed_at,
			error_message = :error_message
		WHERE id = :id
	`

	res, err := r.db.NamedExecContext(ctx, query, newJobRow(job))
	if err != nil {
		r.logger.Error("Failed to update scan job", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("scan job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

func (r *sqliteRepository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var row jobRow
	query := `
		SELECT id, status, xml_dir, messages_parsed, calls_parsed, intents_flagged, contacts_profiled,
			progress, total, created_at, completed_at, error_message
		FROM scan_jobs
		WHERE id = ?
	`

	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get scan job", zap.String("job_id", id), zap.Error(err))
		return nil, err
	}
	return row.toModel(), nil
}
