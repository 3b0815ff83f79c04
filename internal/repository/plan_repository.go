package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index on study_plans(owner_id) WHERE status = 'ACTIVE'.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation, used by services to map conflicts onto domain errors.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PlanRepository handles persistence for study plans.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository instantiates a plan repository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, owner_id, start_date, exam_date, weekly_schedule, methodology, topics_per_day, custom_blocks, status, version, created_at, updated_at`

// Create inserts a new plan through the given executor so callers can pair
// it with the theme attachment in one transaction. The partial unique index
// rejects a second ACTIVE plan for the same owner; callers detect that via
// IsUniqueViolation.
func (r *PlanRepository) Create(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if plan.Status == "" {
		plan.Status = models.PlanStatusActive
	}
	if plan.Version == 0 {
		plan.Version = 1
	}

	const query = `INSERT INTO study_plans (id, owner_id, start_date, exam_date, weekly_schedule, methodology, topics_per_day, custom_blocks, status, version, created_at, updated_at)
		VALUES (:id, :owner_id, :start_date, :exam_date, :weekly_schedule, :methodology, :topics_per_day, :custom_blocks, :status, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, plan); err != nil {
		return fmt.Errorf("create study plan: %w", err)
	}
	return nil
}

// FindByID loads a plan by identifier.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*models.StudyPlan, error) {
	query := fmt.Sprintf(`SELECT %s FROM study_plans WHERE id = $1`, planColumns)
	var plan models.StudyPlan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindActiveByOwner returns the owner's single ACTIVE plan.
func (r *PlanRepository) FindActiveByOwner(ctx context.Context, ownerID string) (*models.StudyPlan, error) {
	query := fmt.Sprintf(`SELECT %s FROM study_plans WHERE owner_id = $1 AND status = $2 LIMIT 1`, planColumns)
	var plan models.StudyPlan
	if err := r.db.GetContext(ctx, &plan, query, ownerID, models.PlanStatusActive); err != nil {
		return nil, err
	}
	return &plan, nil
}

// SetStatus transitions the plan lifecycle (e.g. archiving frees the
// owner's ACTIVE slot).
func (r *PlanRepository) SetStatus(ctx context.Context, id string, status models.PlanStatus) error {
	const query = `UPDATE study_plans SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set plan status: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BumpVersion performs the optimistic concurrency check: the update only
// lands when the stored version still matches the expected one.
func (r *PlanRepository) BumpVersion(ctx context.Context, exec sqlx.ExtContext, id string, expected int) (bool, error) {
	const query = `UPDATE study_plans SET version = version + 1, updated_at = $3 WHERE id = $1 AND version = $2`
	res, err := exec.ExecContext(ctx, query, id, expected, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("bump plan version: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bump plan version: %w", err)
	}
	return rows == 1, nil
}

// AttachThemes records the plan's theme selection with precedence order,
// sharing the creation transaction through exec.
func (r *PlanRepository) AttachThemes(ctx context.Context, exec sqlx.ExtContext, planID string, themes []models.PlanTheme) error {
	for i := range themes {
		themes[i].PlanID = planID
		const query = `INSERT INTO plan_themes (plan_id, theme_id, position) VALUES (:plan_id, :theme_id, :position)`
		if _, err := sqlx.NamedExecContext(ctx, exec, query, &themes[i]); err != nil {
			return fmt.Errorf("attach theme %s: %w", themes[i].ThemeID, err)
		}
	}
	return nil
}
