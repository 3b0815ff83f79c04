package models

import "time"

// SessionType distinguishes how a scheduled slot is spent.
type SessionType string

const (
	SessionTypeStudy      SessionType = "STUDY"
	SessionTypeReview     SessionType = "REVIEW"
	SessionTypeTest       SessionType = "TEST"
	SessionTypeSimulation SessionType = "SIMULATION"
)

// Valid reports whether the session type is known.
func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeStudy, SessionTypeReview, SessionTypeTest, SessionTypeSimulation:
		return true
	}
	return false
}

// SessionStatus models the per-session state machine. COMPLETED and SKIPPED
// are terminal; rows in those states (and IN_PROGRESS) form the audit trail
// and are never touched by bulk regeneration.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "PENDING"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusSkipped    SessionStatus = "SKIPPED"
)

// Session is a dated unit of study work owned by exactly one plan.
type Session struct {
	ID             string        `db:"id" json:"id"`
	PlanID         string        `db:"plan_id" json:"plan_id"`
	ThemeID        string        `db:"theme_id" json:"theme_id"`
	PartIndex      *int          `db:"part_index" json:"part_index,omitempty"`
	ScheduledDate  time.Time     `db:"scheduled_date" json:"scheduled_date"`
	ScheduledHours float64       `db:"scheduled_hours" json:"scheduled_hours"`
	CompletedHours *float64      `db:"completed_hours" json:"completed_hours,omitempty"`
	Type           SessionType   `db:"type" json:"type"`
	Status         SessionStatus `db:"status" json:"status"`
	DueDate        *time.Time    `db:"due_date" json:"due_date,omitempty"`
	Notes          string        `db:"notes" json:"notes,omitempty"`
	SkipReason     *string       `db:"skip_reason" json:"skip_reason,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionStatusCount aggregates session counts per status for one plan.
type SessionStatusCount struct {
	Status SessionStatus `db:"status" json:"status"`
	Count  int           `db:"count" json:"count"`
}
