package scheduler

import (
	"fmt"
	"sort"

	"github.com/studyplanhq/studyplan-api/internal/models"
	apperrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

// CustomBlocksStrategy materializes caller-defined 30-day blocks. Each
// block pins themes to weekdays with explicit hours; the strategy only
// validates the pattern against capacity and theme membership before
// turning it into dated sessions.
type CustomBlocksStrategy struct{}

func (s *CustomBlocksStrategy) Allocate(in AllocationInput) ([]SessionRequest, error) {
	if len(in.Blocks) == 0 {
		return nil, apperrors.Clone(apperrors.ErrValidation, "custom blocks methodology requires block definitions")
	}

	known := make(map[string]struct{}, len(in.Themes))
	for _, theme := range in.Themes {
		known[theme.ID] = struct{}{}
	}

	blocks := make([]models.CustomBlock, len(in.Blocks))
	copy(blocks, in.Blocks)
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Position < blocks[j].Position })

	start := Day(in.Start)
	exam := Day(in.Exam)

	var requests []SessionRequest
	for _, block := range blocks {
		blockStart := start.AddDate(0, 0, block.Position*blockDays)
		blockEnd := blockStart.AddDate(0, 0, blockDays)
		if blockEnd.After(exam) {
			blockEnd = exam
		}

		for _, activity := range block.Activities {
			if activity.Weekday < 0 || activity.Weekday > 6 {
				return nil, apperrors.Clone(apperrors.ErrValidation,
					fmt.Sprintf("block %d: weekday %d out of range", block.Position, activity.Weekday))
			}
			if _, ok := known[activity.ThemeID]; !ok {
				return nil, apperrors.Clone(apperrors.ErrValidation,
					fmt.Sprintf("block %d: theme %s is not part of the plan", block.Position, activity.ThemeID))
			}
			if activity.Hours < minChunkHours {
				return nil, apperrors.Clone(apperrors.ErrValidation,
					fmt.Sprintf("block %d: theme %s hours %.2f below the half-hour minimum", block.Position, activity.ThemeID, activity.Hours))
			}
		}

		for date := blockStart; date.Before(blockEnd); date = date.AddDate(0, 0, 1) {
			weekday := int(date.Weekday())
			for _, activity := range block.Activities {
				if activity.Weekday != weekday {
					continue
				}
				if free := in.Capacity.FreeOn(date, in.Ledger); activity.Hours > free {
					return nil, apperrors.Clone(apperrors.ErrCapacityExceeded,
						fmt.Sprintf("day %s capacity %.1fh, requested %.1fh", DateKey(date), free, activity.Hours))
				}
				requests = append(requests, SessionRequest{
					ThemeID: activity.ThemeID,
					Date:    date,
					Hours:   activity.Hours,
					Type:    models.SessionTypeStudy,
				})
				in.Ledger.Add(date, activity.Hours)
			}
		}
	}
	return requests, nil
}
