package models

// BufferWarningKind classifies the slack between the last scheduled session
// and the exam date.
type BufferWarningKind string

const (
	BufferWarningInsufficient BufferWarningKind = "INSUFFICIENT"
	BufferWarningExcessive    BufferWarningKind = "EXCESSIVE"
)

// BufferWarning is derived at build time and returned alongside successful
// responses. It is informational: never persisted, never raised as an error.
type BufferWarning struct {
	Kind           BufferWarningKind `json:"kind"`
	BufferDays     int               `json:"buffer_days"`
	RequiredHours  float64           `json:"required_hours"`
	AvailableHours float64           `json:"available_hours"`
	Message        string            `json:"message"`
}
