package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplanhq/studyplan-api/internal/models"
	apperrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

func customInput(blocks models.CustomBlocks, week models.WeeklySchedule) AllocationInput {
	return AllocationInput{
		Themes: []models.Theme{
			{ID: "theme-a", Complexity: 2, EstimatedHours: 10},
			{ID: "theme-b", Complexity: 3, EstimatedHours: 10},
		},
		Start:            date(2025, 1, 6), // a Monday
		Exam:             date(2025, 3, 6),
		Capacity:         NewCapacity(week),
		Ledger:           NewLedger(),
		Blocks:           blocks,
		MaxSessionHours:  2,
		ReviewMultiplier: 2.2,
	}
}

func TestCustomBlocksMaterializesWeeklyPattern(t *testing.T) {
	blocks := models.CustomBlocks{
		{Position: 0, Activities: []models.CustomBlockActivity{
			{Weekday: int(time.Monday), ThemeID: "theme-a", Hours: 2},
			{Weekday: int(time.Wednesday), ThemeID: "theme-b", Hours: 1.5},
		}},
	}
	strategy := &CustomBlocksStrategy{}

	requests, err := strategy.Allocate(customInput(blocks, allWeek(3)))
	require.NoError(t, err)
	require.NotEmpty(t, requests)

	for _, req := range requests {
		switch req.ThemeID {
		case "theme-a":
			assert.Equal(t, time.Monday, req.Date.Weekday())
			assert.Equal(t, 2.0, req.Hours)
		case "theme-b":
			assert.Equal(t, time.Wednesday, req.Date.Weekday())
			assert.Equal(t, 1.5, req.Hours)
		default:
			t.Fatalf("unexpected theme %s", req.ThemeID)
		}
		assert.True(t, req.Date.Before(date(2025, 2, 5)), "block 0 sessions stay within the first 30 days")
	}
}

func TestCustomBlocksRejectsUnknownTheme(t *testing.T) {
	blocks := models.CustomBlocks{
		{Position: 0, Activities: []models.CustomBlockActivity{
			{Weekday: int(time.Monday), ThemeID: "theme-z", Hours: 1},
		}},
	}
	strategy := &CustomBlocksStrategy{}

	_, err := strategy.Allocate(customInput(blocks, allWeek(3)))
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrValidation.Code, appErr.Code)
}

func TestCustomBlocksRejectsOverCapacityPattern(t *testing.T) {
	blocks := models.CustomBlocks{
		{Position: 0, Activities: []models.CustomBlockActivity{
			{Weekday: int(time.Monday), ThemeID: "theme-a", Hours: 5},
		}},
	}
	strategy := &CustomBlocksStrategy{}

	_, err := strategy.Allocate(customInput(blocks, allWeek(3)))
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCapacityExceeded.Code, appErr.Code)
}

func TestCustomBlocksRequiresBlockDefinitions(t *testing.T) {
	strategy := &CustomBlocksStrategy{}
	_, err := strategy.Allocate(customInput(nil, allWeek(3)))
	require.Error(t, err)
}

func TestCustomBlocksSecondBlockStartsThirtyDaysIn(t *testing.T) {
	blocks := models.CustomBlocks{
		{Position: 1, Activities: []models.CustomBlockActivity{
			{Weekday: int(time.Friday), ThemeID: "theme-b", Hours: 1},
		}},
	}
	strategy := &CustomBlocksStrategy{}

	requests, err := strategy.Allocate(customInput(blocks, allWeek(3)))
	require.NoError(t, err)
	require.NotEmpty(t, requests)

	blockStart := date(2025, 1, 6).AddDate(0, 0, 30)
	for _, req := range requests {
		assert.False(t, req.Date.Before(blockStart))
		assert.True(t, req.Date.Before(blockStart.AddDate(0, 0, 30)))
	}
}
