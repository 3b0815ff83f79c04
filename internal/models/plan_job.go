package models

import "time"

// PlanJobStatus captures background generation lifecycle states.
type PlanJobStatus string

const (
	PlanJobStatusQueued     PlanJobStatus = "QUEUED"
	PlanJobStatusProcessing PlanJobStatus = "PROCESSING"
	PlanJobStatusFinished   PlanJobStatus = "FINISHED"
	PlanJobStatusFailed     PlanJobStatus = "FAILED"
)

// PlanJob is the persisted handle for an asynchronous generation run.
// Callers receive the job ID immediately and poll it while the allocation
// runs off the request thread.
type PlanJob struct {
	ID           string        `db:"id" json:"id"`
	PlanID       string        `db:"plan_id" json:"plan_id"`
	Kind         string        `db:"kind" json:"kind"`
	Status       PlanJobStatus `db:"status" json:"status"`
	Progress     int           `db:"progress" json:"progress"`
	SessionCount *int          `db:"session_count" json:"session_count,omitempty"`
	Warning      *string       `db:"warning" json:"warning,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time    `db:"finished_at" json:"finished_at,omitempty"`
}

// Plan job kinds.
const (
	PlanJobKindGenerate  = "generate"
	PlanJobKindRebalance = "rebalance"
)
