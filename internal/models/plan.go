package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Methodology selects the allocation policy used when generating sessions.
type Methodology string

const (
	MethodologyRotation      Methodology = "ROTATION"
	MethodologyMonthlyBlocks Methodology = "MONTHLY_BLOCKS"
	MethodologyCustomBlocks  Methodology = "CUSTOM_BLOCKS"
)

// Valid reports whether the methodology is one of the known variants.
func (m Methodology) Valid() bool {
	switch m {
	case MethodologyRotation, MethodologyMonthlyBlocks, MethodologyCustomBlocks:
		return true
	}
	return false
}

// PlanStatus captures the plan lifecycle. At most one ACTIVE plan may exist
// per owner, enforced by a partial unique index on study_plans.
type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "ACTIVE"
	PlanStatusArchived PlanStatus = "ARCHIVED"
)

// WeeklySchedule holds study hours per weekday, indexed by time.Weekday
// (Sunday = 0). Hours are limited to the 0–24 range at half-hour steps.
type WeeklySchedule [7]float64

// HoursOn returns the configured hours for the weekday of the given date.
func (w WeeklySchedule) HoursOn(date time.Time) float64 {
	return w[int(date.Weekday())]
}

// Total sums the configured hours over one week.
func (w WeeklySchedule) Total() float64 {
	var total float64
	for _, h := range w {
		total += h
	}
	return total
}

// Validate checks range and granularity for every weekday.
func (w WeeklySchedule) Validate() error {
	for day, h := range w {
		if h < 0 || h > 24 {
			return fmt.Errorf("weekday %d: hours %.1f out of range [0,24]", day, h)
		}
		if h*2 != float64(int(h*2)) {
			return fmt.Errorf("weekday %d: hours %.2f not a multiple of 0.5", day, h)
		}
	}
	return nil
}

// Value marshals the schedule to JSON for persistence.
func (w WeeklySchedule) Value() (driver.Value, error) {
	return json.Marshal(w)
}

// Scan restores the schedule from its JSONB representation.
func (w *WeeklySchedule) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, w)
	case string:
		return json.Unmarshal([]byte(v), w)
	case nil:
		*w = WeeklySchedule{}
		return nil
	default:
		return fmt.Errorf("unsupported weekly schedule source %T", src)
	}
}

// CustomBlockActivity pins a theme to a weekday within a custom block.
type CustomBlockActivity struct {
	Weekday int     `json:"weekday" validate:"min=0,max=6"`
	ThemeID string  `json:"theme_id" validate:"required"`
	Hours   float64 `json:"hours" validate:"gt=0"`
}

// CustomBlock describes one 30-day stretch of a CUSTOM_BLOCKS plan. The
// weekly activity pattern repeats for every week inside the block.
type CustomBlock struct {
	Position   int                   `json:"position"`
	Activities []CustomBlockActivity `json:"activities"`
}

// CustomBlocks is the JSONB column wrapper for block definitions.
type CustomBlocks []CustomBlock

// Value marshals block definitions for persistence.
func (b CustomBlocks) Value() (driver.Value, error) {
	if b == nil {
		return json.Marshal([]CustomBlock{})
	}
	return json.Marshal(b)
}

// Scan restores block definitions from JSONB.
func (b *CustomBlocks) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	case nil:
		*b = nil
		return nil
	default:
		return fmt.Errorf("unsupported custom blocks source %T", src)
	}
}

// StudyPlan is the aggregate root owning a session collection. Version is
// bumped on every mutating operation for optimistic concurrency.
type StudyPlan struct {
	ID             string         `db:"id" json:"id"`
	OwnerID        string         `db:"owner_id" json:"owner_id"`
	StartDate      time.Time      `db:"start_date" json:"start_date"`
	ExamDate       time.Time      `db:"exam_date" json:"exam_date"`
	WeeklySchedule WeeklySchedule `db:"weekly_schedule" json:"weekly_schedule"`
	Methodology    Methodology    `db:"methodology" json:"methodology"`
	TopicsPerDay   int            `db:"topics_per_day" json:"topics_per_day,omitempty"`
	CustomBlocks   CustomBlocks   `db:"custom_blocks" json:"custom_blocks,omitempty"`
	Status         PlanStatus     `db:"status" json:"status"`
	Version        int            `db:"version" json:"version"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`

	// BufferWarning is recomputed on read from the remaining pending
	// sessions. It is never persisted.
	BufferWarning *BufferWarning `db:"-" json:"buffer_warning,omitempty"`
}

// PlanTheme links a plan to a catalog theme, with the precedence position
// used by the MONTHLY_BLOCKS strategy.
type PlanTheme struct {
	PlanID   string `db:"plan_id" json:"plan_id"`
	ThemeID  string `db:"theme_id" json:"theme_id"`
	Position int    `db:"position" json:"position"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
