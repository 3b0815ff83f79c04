package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

func TestReviewPerfectRecallGrowsInterval(t *testing.T) {
	params := DefaultParams()
	stat := models.ThemeStat{EaseFactor: 2.5, IntervalDays: 4}

	updated := params.Review(stat, 5, date(2025, 3, 1))

	assert.Greater(t, updated.IntervalDays, stat.IntervalDays)
	assert.Equal(t, 10, updated.IntervalDays) // round(4 × 2.5)
	assert.InDelta(t, 2.6, updated.EaseFactor, 1e-9)
	require.NotNil(t, updated.LastReviewedAt)
	assert.Equal(t, date(2025, 3, 1), *updated.LastReviewedAt)
}

func TestReviewIntervalStrictlyGrowsAtMinimumEase(t *testing.T) {
	params := DefaultParams()
	stat := models.ThemeStat{EaseFactor: 1.3, IntervalDays: 1}

	updated := params.Review(stat, 5, date(2025, 3, 1))

	// round(1 × 1.3) would stall at 1; success must still move forward.
	assert.Equal(t, 2, updated.IntervalDays)
}

func TestReviewFailureResetsInterval(t *testing.T) {
	params := DefaultParams()
	stat := models.ThemeStat{EaseFactor: 2.5, IntervalDays: 12}

	updated := params.Review(stat, 1, date(2025, 3, 1))

	assert.Equal(t, 1, updated.IntervalDays)
	assert.InDelta(t, 2.3, updated.EaseFactor, 1e-9)
}

func TestReviewEaseNeverDropsBelowFloor(t *testing.T) {
	params := DefaultParams()
	stat := models.ThemeStat{EaseFactor: 1.35, IntervalDays: 3}

	updated := params.Review(stat, 0, date(2025, 3, 1))

	assert.Equal(t, 1.3, updated.EaseFactor)
	assert.Equal(t, 1, updated.IntervalDays)
}

func TestReviewSuccessRateIsExponentiallyWeighted(t *testing.T) {
	params := DefaultParams()
	stat := models.ThemeStat{EaseFactor: 2.5, IntervalDays: 1, SuccessRate: 0.5}

	passed := params.Review(stat, 4, date(2025, 3, 1))
	assert.InDelta(t, 0.6, passed.SuccessRate, 1e-9) // 0.8×0.5 + 0.2×1

	failed := params.Review(stat, 2, date(2025, 3, 1))
	assert.InDelta(t, 0.4, failed.SuccessRate, 1e-9) // 0.8×0.5 + 0.2×0
}

func TestReviewClampsDifficulty(t *testing.T) {
	params := DefaultParams()
	stat := models.ThemeStat{EaseFactor: 2.5, IntervalDays: 2}

	low := params.Review(stat, -3, date(2025, 3, 1))
	assert.Equal(t, 1, low.IntervalDays)

	high := params.Review(stat, 9, date(2025, 3, 1))
	assert.Equal(t, 5, high.IntervalDays)
}

func TestNextReviewShiftsForwardWhenTargetDayIsFull(t *testing.T) {
	week := models.WeeklySchedule{}
	for d := range week {
		week[d] = 2
	}
	capacity := NewCapacity(week)

	reviewed := date(2025, 3, 1)
	stat := models.ThemeStat{EaseFactor: 2.5, IntervalDays: 3, LastReviewedAt: &reviewed}

	ledger := NewLedger()
	ledger.Add(date(2025, 3, 4), 2) // due date fully booked

	got, ok := NextReview(stat, 1, capacity, ledger, 30)
	require.True(t, ok)
	assert.Equal(t, date(2025, 3, 5), got)
}

func TestNextReviewRequiresPriorReview(t *testing.T) {
	capacity := NewCapacity(models.WeeklySchedule{})
	_, ok := NextReview(models.ThemeStat{IntervalDays: 2}, 1, capacity, NewLedger(), 10)
	assert.False(t, ok)
}

func TestNewStatDefaults(t *testing.T) {
	stat := DefaultParams().NewStat("plan-1", "theme-1")
	assert.Equal(t, 2.5, stat.EaseFactor)
	assert.Equal(t, 1, stat.IntervalDays)
	assert.Zero(t, stat.SuccessRate)
}
