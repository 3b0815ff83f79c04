package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

// SessionRepository handles persistence for plan sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository instantiates a session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, plan_id, theme_id, part_index, scheduled_date, scheduled_hours, completed_hours, type, status, due_date, notes, skip_reason, created_at, updated_at`

// FindByID loads a session by identifier.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByPlan returns all sessions of a plan ordered by date.
func (r *SessionRepository) ListByPlan(ctx context.Context, planID string) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE plan_id = $1 ORDER BY scheduled_date, theme_id, id`, sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, planID); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ListByPlanAndDate returns the sessions scheduled on one calendar date.
func (r *SessionRepository) ListByPlanAndDate(ctx context.Context, planID string, date time.Time) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE plan_id = $1 AND scheduled_date = $2 ORDER BY theme_id, id`, sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, planID, date); err != nil {
		return nil, fmt.Errorf("list sessions for date: %w", err)
	}
	return sessions, nil
}

// CountByStatus aggregates the plan's sessions per status.
func (r *SessionRepository) CountByStatus(ctx context.Context, planID string) ([]models.SessionStatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM sessions WHERE plan_id = $1 GROUP BY status`
	var counts []models.SessionStatusCount
	if err := r.db.SelectContext(ctx, &counts, query, planID); err != nil {
		return nil, fmt.Errorf("count sessions by status: %w", err)
	}
	return counts, nil
}

// Create inserts a single session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	prepareSession(session, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, insertSessionQuery, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update persists mutable session fields: lifecycle status, recorded work
// and annotations. Scheduling fields are immutable after creation.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	return updateSession(ctx, r.db, session)
}

// UpdateWithTx persists the same mutable fields inside an existing
// transaction.
func (r *SessionRepository) UpdateWithTx(ctx context.Context, tx *sqlx.Tx, session *models.Session) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	return updateSession(ctx, tx, session)
}

func updateSession(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions
		SET status = :status, completed_hours = :completed_hours, notes = :notes, skip_reason = :skip_reason, updated_at = :updated_at
		WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// BulkCreateWithTx inserts sessions using an existing transaction.
func (r *SessionRepository) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, sessions []models.Session) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	return bulkInsertSessions(ctx, tx, sessions)
}

// DeletePendingWithTx removes the plan's PENDING sessions inside the given
// transaction and reports how many rows went away. Sessions in any other
// status are never touched.
func (r *SessionRepository) DeletePendingWithTx(ctx context.Context, tx *sqlx.Tx, planID string) (int, error) {
	if tx == nil {
		return 0, fmt.Errorf("nil transaction provided")
	}
	const query = `DELETE FROM sessions WHERE plan_id = $1 AND status = $2`
	res, err := tx.ExecContext(ctx, query, planID, models.SessionStatusPending)
	if err != nil {
		return 0, fmt.Errorf("delete pending sessions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete pending sessions: %w", err)
	}
	return int(rows), nil
}

const insertSessionQuery = `INSERT INTO sessions (id, plan_id, theme_id, part_index, scheduled_date, scheduled_hours, completed_hours, type, status, due_date, notes, skip_reason, created_at, updated_at)
	VALUES (:id, :plan_id, :theme_id, :part_index, :scheduled_date, :scheduled_hours, :completed_hours, :type, :status, :due_date, :notes, :skip_reason, :created_at, :updated_at)`

func prepareSession(session *models.Session, now time.Time) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusPending
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
}

func bulkInsertSessions(ctx context.Context, exec sqlx.ExtContext, sessions []models.Session) error {
	now := time.Now().UTC()
	for i := range sessions {
		payload := sessions[i]
		prepareSession(&payload, now)
		if _, err := sqlx.NamedExecContext(ctx, exec, insertSessionQuery, &payload); err != nil {
			return fmt.Errorf("bulk insert session: %w", err)
		}
		sessions[i] = payload
	}
	return nil
}
