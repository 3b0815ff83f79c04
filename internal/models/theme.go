package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ThemePart is an independently schedulable slice of a theme.
type ThemePart struct {
	Index int     `json:"index"`
	Name  string  `json:"name"`
	Hours float64 `json:"hours"`
}

// ThemeParts is the JSONB column wrapper for ordered theme parts.
type ThemeParts []ThemePart

// Value marshals parts for persistence.
func (p ThemeParts) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal([]ThemePart{})
	}
	return json.Marshal(p)
}

// Scan restores parts from JSONB.
func (p *ThemeParts) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = nil
		return nil
	default:
		return fmt.Errorf("unsupported theme parts source %T", src)
	}
}

// Theme is a read-only catalog entry. The engine never mutates the catalog;
// complexity (1–5) drives both the effort estimate and rotation weighting.
type Theme struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Block          string     `db:"block" json:"block"`
	Complexity     int        `db:"complexity" json:"complexity"`
	EstimatedHours float64    `db:"estimated_hours" json:"estimated_hours"`
	Parts          ThemeParts `db:"parts" json:"parts,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
