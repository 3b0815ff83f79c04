package scheduler

import (
	"time"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

// blockDays is the length of one scheduling block in calendar days.
const blockDays = 30

// MonthlyBlocksStrategy studies a sliding window of themes at a time. The
// caller supplies themes in precedence order (ascending complexity); the
// window holds TopicsPerDay concurrently-active themes and advances every
// 30 days. Themes closed by an earlier window keep receiving short reviews,
// and the final block before the exam is reserved exclusively for reviews.
type MonthlyBlocksStrategy struct{}

type monthlyState struct {
	theme     models.Theme
	remaining float64
}

func (s *MonthlyBlocksStrategy) Allocate(in AllocationInput) ([]SessionRequest, error) {
	windowSize := in.TopicsPerDay
	if windowSize < 1 {
		windowSize = 1
	}

	states := make([]*monthlyState, 0, len(in.Themes))
	for _, theme := range in.Themes {
		states = append(states, &monthlyState{
			theme:     theme,
			remaining: remainingHours(theme, in.Stats, in.ReviewMultiplier),
		})
	}

	start := Day(in.Start)
	exam := Day(in.Exam)
	totalDays := DaysBetween(start, exam)
	blocks := (totalDays + blockDays - 1) / blockDays

	// The last block is review-only whenever the horizon spans more than
	// one block.
	reviewOnlyFrom := exam
	if blocks > 1 {
		reviewOnlyFrom = start.AddDate(0, 0, (blocks-1)*blockDays)
	}

	var requests []SessionRequest
	reviewCursor := 0
	for date := start; date.Before(exam); date = date.AddDate(0, 0, 1) {
		free := in.Capacity.FreeOn(date, in.Ledger)
		if free < minChunkHours {
			continue
		}

		if !date.Before(reviewOnlyFrom) {
			reviewCursor = s.fillReviews(&requests, in, date, free, states, len(states), reviewCursor)
			continue
		}

		block := DaysBetween(start, date) / blockDays
		opened := (block + 1) * windowSize
		if opened > len(states) {
			opened = len(states)
		}
		closed := block * windowSize
		if closed > len(states) {
			closed = len(states)
		}

		// Closed themes get one short review slot per day, cycling.
		if closed > 0 {
			reviewHours := chunkHours(1, free, in.MaxSessionHours)
			if reviewHours >= minChunkHours {
				theme := states[reviewCursor%closed].theme
				reviewCursor++
				requests = append(requests, SessionRequest{
					ThemeID: theme.ID,
					Date:    date,
					Hours:   reviewHours,
					Type:    models.SessionTypeReview,
				})
				in.Ledger.Add(date, reviewHours)
				free -= reviewHours
			}
		}

		// The active window fills the rest of the day. When every theme in
		// the window is exhausted, pull forward so capacity is never idle
		// while work remains.
		for free >= minChunkHours {
			pick := nextMonthlyTheme(states, closed, opened)
			if pick == nil {
				break
			}
			hours := chunkHours(pick.remaining, free, in.MaxSessionHours)
			if hours < minChunkHours {
				break
			}
			requests = append(requests, SessionRequest{
				ThemeID: pick.theme.ID,
				Date:    date,
				Hours:   hours,
				Type:    models.SessionTypeStudy,
			})
			in.Ledger.Add(date, hours)
			pick.remaining = roundToHalf(pick.remaining - hours)
			free -= hours
		}
	}
	return requests, nil
}

// fillReviews packs a review-only day, cycling across the first n themes.
func (s *MonthlyBlocksStrategy) fillReviews(requests *[]SessionRequest, in AllocationInput, date time.Time, free float64, states []*monthlyState, n, cursor int) int {
	if n == 0 {
		return cursor
	}
	for free >= minChunkHours {
		hours := chunkHours(1, free, in.MaxSessionHours)
		if hours < minChunkHours {
			break
		}
		theme := states[cursor%n].theme
		cursor++
		*requests = append(*requests, SessionRequest{
			ThemeID: theme.ID,
			Date:    date,
			Hours:   hours,
			Type:    models.SessionTypeReview,
		})
		in.Ledger.Add(date, hours)
		free -= hours
	}
	return cursor
}

// nextMonthlyTheme returns the first unfinished theme inside the active
// window, falling back to the earliest unfinished theme anywhere so no
// feasible hours are wasted. Precedence order doubles as the tie-break:
// themes arrive sorted, so the first match wins.
func nextMonthlyTheme(states []*monthlyState, windowStart, windowEnd int) *monthlyState {
	for i := windowStart; i < windowEnd; i++ {
		if states[i].remaining >= minChunkHours {
			return states[i]
		}
	}
	for _, st := range states {
		if st.remaining >= minChunkHours {
			return st
		}
	}
	return nil
}
