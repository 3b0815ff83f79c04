package models

// AgendaRecommendation points the student at a theme that needs attention.
type AgendaRecommendation struct {
	ThemeID     string  `json:"theme_id"`
	ThemeName   string  `json:"theme_name"`
	SuccessRate float64 `json:"success_rate"`
	Reason      string  `json:"reason"`
}

// Agenda is the daily view of a plan: the sessions of one calendar date plus
// capacity accounting and study recommendations.
type Agenda struct {
	PlanID          string                 `json:"plan_id"`
	Date            string                 `json:"date"`
	CapacityHours   float64                `json:"capacity_hours"`
	PlannedHours    float64                `json:"planned_hours"`
	FreeHours       float64                `json:"free_hours"`
	Sessions        []Session              `json:"sessions"`
	Recommendations []AgendaRecommendation `json:"recommendations"`
}

// PlanStats summarises a plan's session ledger per lifecycle status.
type PlanStats struct {
	PlanID    string               `json:"plan_id"`
	Total     int                  `json:"total"`
	ByStatus  []SessionStatusCount `json:"by_status"`
	SkipRatio float64              `json:"skip_ratio"`
}
