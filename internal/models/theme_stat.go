package models

import "time"

// ThemeStat is the per (plan, theme) spaced-repetition state. Rows are
// created lazily on the first completed session for a theme and only the
// spaced-repetition scheduler mutates them.
type ThemeStat struct {
	ID             string     `db:"id" json:"id"`
	PlanID         string     `db:"plan_id" json:"plan_id"`
	ThemeID        string     `db:"theme_id" json:"theme_id"`
	EaseFactor     float64    `db:"ease_factor" json:"ease_factor"`
	IntervalDays   int        `db:"interval_days" json:"interval_days"`
	SuccessRate    float64    `db:"success_rate" json:"success_rate"`
	LastReviewedAt *time.Time `db:"last_reviewed_at" json:"last_reviewed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
