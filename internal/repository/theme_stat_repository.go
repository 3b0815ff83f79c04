package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

// ThemeStatRepository handles persistence for spaced-repetition state.
type ThemeStatRepository struct {
	db *sqlx.DB
}

// NewThemeStatRepository instantiates a theme stat repository.
func NewThemeStatRepository(db *sqlx.DB) *ThemeStatRepository {
	return &ThemeStatRepository{db: db}
}

const themeStatColumns = `id, plan_id, theme_id, ease_factor, interval_days, success_rate, last_reviewed_at, created_at, updated_at`

// FindByPlanAndTheme loads the stat row for one (plan, theme) pair.
func (r *ThemeStatRepository) FindByPlanAndTheme(ctx context.Context, planID, themeID string) (*models.ThemeStat, error) {
	query := fmt.Sprintf(`SELECT %s FROM theme_stats WHERE plan_id = $1 AND theme_id = $2`, themeStatColumns)
	var stat models.ThemeStat
	if err := r.db.GetContext(ctx, &stat, query, planID, themeID); err != nil {
		return nil, err
	}
	return &stat, nil
}

// ListByPlan returns all stat rows of a plan.
func (r *ThemeStatRepository) ListByPlan(ctx context.Context, planID string) ([]models.ThemeStat, error) {
	query := fmt.Sprintf(`SELECT %s FROM theme_stats WHERE plan_id = $1 ORDER BY theme_id`, themeStatColumns)
	var stats []models.ThemeStat
	if err := r.db.SelectContext(ctx, &stats, query, planID); err != nil {
		return nil, fmt.Errorf("list theme stats: %w", err)
	}
	return stats, nil
}

// Upsert creates the stat row lazily on first completion and replaces the
// spaced-repetition state afterwards.
func (r *ThemeStatRepository) Upsert(ctx context.Context, stat *models.ThemeStat) error {
	return upsertThemeStat(ctx, r.db, stat)
}

// UpsertWithTx performs the same upsert inside an existing transaction so
// completion writes the session and the recall state atomically.
func (r *ThemeStatRepository) UpsertWithTx(ctx context.Context, tx *sqlx.Tx, stat *models.ThemeStat) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	return upsertThemeStat(ctx, tx, stat)
}

func upsertThemeStat(ctx context.Context, exec sqlx.ExtContext, stat *models.ThemeStat) error {
	if stat.ID == "" {
		stat.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if stat.CreatedAt.IsZero() {
		stat.CreatedAt = now
	}
	stat.UpdatedAt = now

	const query = `INSERT INTO theme_stats (id, plan_id, theme_id, ease_factor, interval_days, success_rate, last_reviewed_at, created_at, updated_at)
		VALUES (:id, :plan_id, :theme_id, :ease_factor, :interval_days, :success_rate, :last_reviewed_at, :created_at, :updated_at)
		ON CONFLICT (plan_id, theme_id) DO UPDATE
		SET ease_factor = EXCLUDED.ease_factor,
		    interval_days = EXCLUDED.interval_days,
		    success_rate = EXCLUDED.success_rate,
		    last_reviewed_at = EXCLUDED.last_reviewed_at,
		    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, stat); err != nil {
		return fmt.Errorf("upsert theme stat: %w", err)
	}
	return nil
}
