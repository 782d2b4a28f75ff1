package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// progressEvery controls how often a running job writes its progress
const progressEvery = 25

// StartScanJob runs Scan in the background and returns the pending job
func (s *Sentinel) StartScanJob(ctx context.Context, req ScanRequest) (*models.Job, error) {
	job := &models.Job{
		ID:        uuid.New().String(),
		Status:    models.JobPending,
		XMLDir:    req.XMLDir,
		CreatedAt: s.now(),
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.jobs.Add(1)
	go s.processScanJob(*job, req)

	s.logger.Info("Scan job queued", zap.String("job_id", job.ID))
	return job, nil
}

// processScanJob owns its copy of the job until it reaches a final status
func (s *Sentinel) processScanJob(job models.Job, req ScanRequest) {
	defer s.jobs.Done()
	ctx := context.Background()

	job.Status = models.JobProcessing
	if err := s.repo.UpdateJob(ctx, &job); err != nil {
		s.logger.Error("Failed to mark job processing", zap.String("job_id", job.ID), zap.Error(err))
	}

	var mu sync.Mutex
	progress := func(current, total int, _ string) {
		mu.Lock()
		defer mu.Unlock()
		job.Progress, job.Total = current, total
		if current == total || current%progressEvery == 0 {
			if err := s.repo.UpdateJob(ctx, &job); err != nil {
				s.logger.Warn("Failed to record job progress", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}

	summary, err := s.Scan(ctx, req, progress)

	mu.Lock()
	defer mu.Unlock()
	completed := s.now()
	job.CompletedAt = &completed
	if err != nil {
		job.Status = models.JobFailed
		job.ErrorMessage = err.Error()
		s.logger.Error("Scan job failed", zap.String("job_id", job.ID), zap.Error(err))
	} else {
		job.Status = models.JobCompleted
		job.MessagesParsed = summary.MessagesParsed
		job.CallsParsed = summary.CallsParsed
		job.IntentsFlagged = summary.IntentsFlagged
		job.ContactsProfiled = summary.ContactsProfiled
		s.logger.Info("Scan job completed", zap.String("job_id", job.ID))
	}

	if err := s.repo.UpdateJob(ctx, &job); err != nil {
		s.logger.Error("Failed to finalize job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// GetJob returns ErrJobNotFound for an unknown id
func (s *Sentinel) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// Wait blocks until every background job has finished
func (s *Sentinel) Wait() {
	s.jobs.Wait()
}
