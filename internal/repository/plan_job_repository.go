package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

// PlanJobRepository persists background generation job handles.
type PlanJobRepository struct {
	db *sqlx.DB
}

// NewPlanJobRepository instantiates a plan job repository.
func NewPlanJobRepository(db *sqlx.DB) *PlanJobRepository {
	return &PlanJobRepository{db: db}
}

const planJobColumns = `id, plan_id, kind, status, progress, session_count, warning, error_message, created_at, finished_at`

// Create inserts a queued job row.
func (r *PlanJobRepository) Create(ctx context.Context, job *models.PlanJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.PlanJobStatusQueued
	}
	job.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO plan_jobs (id, plan_id, kind, status, progress, session_count, warning, error_message, created_at, finished_at)
		VALUES (:id, :plan_id, :kind, :status, :progress, :session_count, :warning, :error_message, :created_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create plan job: %w", err)
	}
	return nil
}

// FindByID loads a job handle.
func (r *PlanJobRepository) FindByID(ctx context.Context, id string) (*models.PlanJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM plan_jobs WHERE id = $1`, planJobColumns)
	var job models.PlanJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing flips the job into PROCESSING.
func (r *PlanJobRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE plan_jobs SET status = $2, progress = 10 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PlanJobStatusProcessing); err != nil {
		return fmt.Errorf("mark plan job processing: %w", err)
	}
	return nil
}

// MarkFinished records a successful run with its outcome.
func (r *PlanJobRepository) MarkFinished(ctx context.Context, id string, sessionCount int, warning *string) error {
	now := time.Now().UTC()
	const query = `UPDATE plan_jobs SET status = $2, progress = 100, session_count = $3, warning = $4, finished_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PlanJobStatusFinished, sessionCount, warning, now); err != nil {
		return fmt.Errorf("mark plan job finished: %w", err)
	}
	return nil
}

// MarkFailed records a failed run; the plan itself is left untouched by
// the failed generation.
func (r *PlanJobRepository) MarkFailed(ctx context.Context, id string, cause string) error {
	now := time.Now().UTC()
	const query = `UPDATE plan_jobs SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PlanJobStatusFailed, cause, now); err != nil {
		return fmt.Errorf("mark plan job failed: %w", err)
	}
	return nil
}
