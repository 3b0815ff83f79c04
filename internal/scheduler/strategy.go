package scheduler

import (
	"math"
	"time"

	"github.com/studyplanhq/studyplan-api/internal/models"
	apperrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

// minChunkHours is the smallest schedulable slice, matching the half-hour
// granularity of the weekly schedule.
const minChunkHours = 0.5

// SessionRequest is a prospective session emitted by a strategy before
// capacity-checked insertion turns it into a persisted row.
type SessionRequest struct {
	ThemeID   string
	PartIndex *int
	Date      time.Time
	Hours     float64
	Type      models.SessionType
	DueDate   *time.Time
}

// AllocationInput carries everything a strategy may consult. Ledger holds
// hours already claimed by surviving sessions, so regeneration never
// competes with history for the same capacity.
type AllocationInput struct {
	Themes       []models.Theme
	Start        time.Time
	Exam         time.Time
	Capacity     Capacity
	Ledger       Ledger
	Stats        map[string]models.ThemeStat
	TopicsPerDay int
	Blocks       models.CustomBlocks

	MaxSessionHours  float64
	ReviewMultiplier float64
}

// Strategy is the shared allocation contract implemented by the three
// methodology variants.
type Strategy interface {
	Allocate(in AllocationInput) ([]SessionRequest, error)
}

// ForMethodology resolves the strategy for a stored methodology value.
func ForMethodology(m models.Methodology) (Strategy, error) {
	switch m {
	case models.MethodologyRotation:
		return &RotationStrategy{}, nil
	case models.MethodologyMonthlyBlocks:
		return &MonthlyBlocksStrategy{}, nil
	case models.MethodologyCustomBlocks:
		return &CustomBlocksStrategy{}, nil
	default:
		return nil, apperrors.Clone(apperrors.ErrValidation, "unknown methodology "+string(m))
	}
}

// roundToHalf snaps hours down to the half-hour grid.
func roundToHalf(hours float64) float64 {
	return math.Floor(hours*2) / 2
}

// remainingHours estimates how much work a theme still needs. The review
// multiplier covers the first pass plus spaced reviews; a theme's live
// success rate discounts the estimate so well-mastered themes receive
// fewer or no additional sessions on regeneration.
func remainingHours(theme models.Theme, stats map[string]models.ThemeStat, multiplier float64) float64 {
	hours := theme.EstimatedHours * multiplier
	if stat, ok := stats[theme.ID]; ok {
		hours *= 1 - stat.SuccessRate
	}
	if hours < minChunkHours {
		return 0
	}
	return roundToHalf(hours)
}

// chunkHours sizes one session given remaining work, free capacity and the
// per-session ceiling.
func chunkHours(remaining, free, max float64) float64 {
	hours := remaining
	if free < hours {
		hours = free
	}
	if max > 0 && hours > max {
		hours = max
	}
	return roundToHalf(hours)
}
