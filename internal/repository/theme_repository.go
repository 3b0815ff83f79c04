package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

// ThemeRepository reads the theme catalog. The catalog is owned by an
// external content service; this side never writes to it.
type ThemeRepository struct {
	db *sqlx.DB
}

// NewThemeRepository instantiates a theme catalog reader.
func NewThemeRepository(db *sqlx.DB) *ThemeRepository {
	return &ThemeRepository{db: db}
}

const themeColumns = `id, name, block, complexity, estimated_hours, parts, created_at`

// FindByID loads one catalog theme.
func (r *ThemeRepository) FindByID(ctx context.Context, id string) (*models.Theme, error) {
	query := fmt.Sprintf(`SELECT %s FROM themes WHERE id = $1`, themeColumns)
	var theme models.Theme
	if err := r.db.GetContext(ctx, &theme, query, id); err != nil {
		return nil, err
	}
	return &theme, nil
}

// ListByIDs returns catalog themes for the given identifiers.
func (r *ThemeRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Theme, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM themes WHERE id IN (?) ORDER BY id`, themeColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	query = r.db.Rebind(query)

	var themes []models.Theme
	if err := r.db.SelectContext(ctx, &themes, query, args...); err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	return themes, nil
}

// ListByPlan returns the plan's selected themes in precedence order.
func (r *ThemeRepository) ListByPlan(ctx context.Context, planID string) ([]models.Theme, error) {
	const query = `SELECT t.id, t.name, t.block, t.complexity, t.estimated_hours, t.parts, t.created_at
		FROM themes t
		JOIN plan_themes pt ON pt.theme_id = t.id
		WHERE pt.plan_id = $1
		ORDER BY pt.position, t.id`
	var themes []models.Theme
	if err := r.db.SelectContext(ctx, &themes, query, planID); err != nil {
		return nil, fmt.Errorf("list plan themes: %w", err)
	}
	return themes, nil
}
