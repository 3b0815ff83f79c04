package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

func planRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_id", "start_date", "exam_date", "weekly_schedule", "methodology",
		"topics_per_day", "custom_blocks", "status", "version", "created_at", "updated_at",
	})
}

func TestPlanRepositoryCreateAssignsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlanRepository(db)

	mock.ExpectExec("INSERT INTO study_plans").
		WillReturnResult(sqlmock.NewResult(1, 1))

	plan := &models.StudyPlan{
		OwnerID:     "owner-1",
		StartDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ExamDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Methodology: models.MethodologyRotation,
	}
	require.NoError(t, repo.Create(context.Background(), db, plan))

	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, models.PlanStatusActive, plan.Status)
	assert.Equal(t, 1, plan.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepositoryCreateAndAttachShareTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlanRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO study_plans").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO plan_themes").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	plan := &models.StudyPlan{
		OwnerID:     "owner-1",
		StartDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ExamDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Methodology: models.MethodologyRotation,
	}
	require.NoError(t, repo.Create(context.Background(), tx, plan))
	require.NoError(t, repo.AttachThemes(context.Background(), tx, plan.ID, []models.PlanTheme{
		{PlanID: plan.ID, ThemeID: "theme-a", Position: 0},
	}))
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlanRepository(db)

	rows := planRows().AddRow(
		"p1", "owner-1", time.Now(), time.Now().AddDate(0, 5, 0),
		[]byte(`[0,2,2,2,2,2,0]`), "ROTATION", 1, nil, "ACTIVE", 3, time.Now(), time.Now(),
	)
	mock.ExpectQuery("SELECT .* FROM study_plans WHERE id = ").
		WithArgs("p1").
		WillReturnRows(rows)

	plan, err := repo.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", plan.OwnerID)
	assert.Equal(t, 3, plan.Version)
	assert.InDelta(t, 10.0, plan.WeeklySchedule.Total(), 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepositorySetStatusNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlanRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE study_plans SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("missing", models.PlanStatusArchived, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStatus(context.Background(), "missing", models.PlanStatusArchived)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepositoryBumpVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlanRepository(db)

	t.Run("matches expected version", func(t *testing.T) {
		mock.ExpectExec("UPDATE study_plans SET version = version \\+ 1").
			WithArgs("p1", 2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.BumpVersion(context.Background(), db, "p1", 2)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stale version loses", func(t *testing.T) {
		mock.ExpectExec("UPDATE study_plans SET version = version \\+ 1").
			WithArgs("p1", 1, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.BumpVersion(context.Background(), db, "p1", 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
	assert.False(t, IsUniqueViolation(nil))
}
