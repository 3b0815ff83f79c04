package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

func allWeek(hours float64) models.WeeklySchedule {
	week := models.WeeklySchedule{}
	for d := range week {
		week[d] = hours
	}
	return week
}

func rotationInput(themes []models.Theme, start, exam time.Time, week models.WeeklySchedule) AllocationInput {
	return AllocationInput{
		Themes:           themes,
		Start:            start,
		Exam:             exam,
		Capacity:         NewCapacity(week),
		Ledger:           NewLedger(),
		Stats:            map[string]models.ThemeStat{},
		MaxSessionHours:  2,
		ReviewMultiplier: 2.2,
	}
}

func TestRotationComplexityDrivesSessionShare(t *testing.T) {
	themes := []models.Theme{
		{ID: "theme-a", Complexity: 1, EstimatedHours: 10},
		{ID: "theme-b", Complexity: 5, EstimatedHours: 30},
	}
	strategy := &RotationStrategy{}

	requests, err := strategy.Allocate(rotationInput(themes, date(2025, 1, 1), date(2025, 1, 31), allWeek(2)))
	require.NoError(t, err)
	require.NotEmpty(t, requests)

	counts := map[string]int{}
	for _, req := range requests {
		counts[req.ThemeID]++
		assert.Equal(t, models.SessionTypeStudy, req.Type)
	}
	assert.Greater(t, counts["theme-b"], counts["theme-a"],
		"the high-complexity theme should receive materially more sessions")
}

func TestRotationNeverExceedsDailyCapacity(t *testing.T) {
	themes := []models.Theme{
		{ID: "theme-a", Complexity: 3, EstimatedHours: 20},
		{ID: "theme-b", Complexity: 2, EstimatedHours: 15},
	}
	week := allWeek(1.5)
	strategy := &RotationStrategy{}

	requests, err := strategy.Allocate(rotationInput(themes, date(2025, 1, 1), date(2025, 2, 1), week))
	require.NoError(t, err)

	perDay := map[string]float64{}
	for _, req := range requests {
		perDay[DateKey(req.Date)] += req.Hours
	}
	for day, hours := range perDay {
		assert.LessOrEqual(t, hours, 1.5, "day %s over capacity", day)
	}
}

func TestRotationCoversEveryThemeWhenHoursSuffice(t *testing.T) {
	themes := []models.Theme{
		{ID: "theme-a", Complexity: 1, EstimatedHours: 2},
		{ID: "theme-b", Complexity: 5, EstimatedHours: 2},
		{ID: "theme-c", Complexity: 3, EstimatedHours: 2},
	}
	strategy := &RotationStrategy{}

	requests, err := strategy.Allocate(rotationInput(themes, date(2025, 1, 1), date(2025, 2, 1), allWeek(2)))
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, req := range requests {
		seen[req.ThemeID] = true
	}
	for _, theme := range themes {
		assert.True(t, seen[theme.ID], "theme %s never scheduled", theme.ID)
	}
}

func TestRotationTieBreaksOnLowerThemeID(t *testing.T) {
	themes := []models.Theme{
		{ID: "theme-b", Complexity: 2, EstimatedHours: 4},
		{ID: "theme-a", Complexity: 2, EstimatedHours: 4},
	}
	strategy := &RotationStrategy{}

	requests, err := strategy.Allocate(rotationInput(themes, date(2025, 1, 1), date(2025, 1, 15), allWeek(1)))
	require.NoError(t, err)
	require.NotEmpty(t, requests)

	assert.Equal(t, "theme-a", requests[0].ThemeID)
}

func TestRotationMasteredThemeReceivesNoSessions(t *testing.T) {
	themes := []models.Theme{
		{ID: "theme-a", Complexity: 3, EstimatedHours: 4},
		{ID: "theme-b", Complexity: 3, EstimatedHours: 4},
	}
	in := rotationInput(themes, date(2025, 1, 1), date(2025, 1, 20), allWeek(2))
	in.Stats = map[string]models.ThemeStat{
		"theme-a": {SuccessRate: 1},
	}
	strategy := &RotationStrategy{}

	requests, err := strategy.Allocate(in)
	require.NoError(t, err)

	for _, req := range requests {
		assert.NotEqual(t, "theme-a", req.ThemeID)
	}
}

func TestRotationWalksThemePartsInOrder(t *testing.T) {
	themes := []models.Theme{
		{
			ID: "theme-a", Complexity: 3, EstimatedHours: 4,
			Parts: models.ThemeParts{
				{Index: 0, Name: "intro", Hours: 2},
				{Index: 1, Name: "advanced", Hours: 2},
			},
		},
	}
	strategy := &RotationStrategy{}

	requests, err := strategy.Allocate(rotationInput(themes, date(2025, 1, 1), date(2025, 2, 1), allWeek(2)))
	require.NoError(t, err)
	require.NotEmpty(t, requests)

	lastPart := -1
	for _, req := range requests {
		require.NotNil(t, req.PartIndex)
		assert.GreaterOrEqual(t, *req.PartIndex, lastPart)
		lastPart = *req.PartIndex
	}
	assert.Equal(t, 1, lastPart, "the second part should eventually be reached")
}
