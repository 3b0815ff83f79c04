package scheduler

import (
	"sort"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

// RotationStrategy spreads every theme across the whole horizon using a
// weighted round-robin. Each day it pulls the theme with the highest
// urgency, where urgency grows with complexity and with the time since the
// theme was last studied, approximating a forgetting curve.
type RotationStrategy struct{}

type rotationPart struct {
	index     int
	remaining float64
}

type rotationState struct {
	theme       models.Theme
	remaining   float64
	lastStudied rotationClock
	parts       []rotationPart
	cursor      int
}

// rotationClock counts days since the plan start so urgency stays an
// integer computation.
type rotationClock int

func (s *RotationStrategy) Allocate(in AllocationInput) ([]SessionRequest, error) {
	states := make([]*rotationState, 0, len(in.Themes))
	for _, theme := range in.Themes {
		remaining := remainingHours(theme, in.Stats, in.ReviewMultiplier)
		if remaining <= 0 {
			continue
		}
		states = append(states, &rotationState{
			theme:       theme,
			remaining:   remaining,
			lastStudied: -1,
			parts:       scaleParts(theme, remaining),
		})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].theme.ID < states[j].theme.ID })

	var requests []SessionRequest
	start := Day(in.Start)
	exam := Day(in.Exam)
	for date := start; date.Before(exam); date = date.AddDate(0, 0, 1) {
		elapsed := rotationClock(DaysBetween(start, date))
		free := in.Capacity.FreeOn(date, in.Ledger)

		for free >= minChunkHours {
			pick := mostUrgent(states, elapsed)
			if pick == nil {
				return requests, nil
			}

			hours := chunkHours(pick.remaining, free, in.MaxSessionHours)
			if hours < minChunkHours {
				break
			}

			requests = append(requests, SessionRequest{
				ThemeID:   pick.theme.ID,
				PartIndex: pick.takePart(hours),
				Date:      date,
				Hours:     hours,
				Type:      models.SessionTypeStudy,
			})
			in.Ledger.Add(date, hours)
			pick.remaining = roundToHalf(pick.remaining - hours)
			pick.lastStudied = elapsed
			free -= hours
		}
	}
	return requests, nil
}

// mostUrgent picks the pending theme with the highest urgency, breaking
// ties on the lower theme ID for deterministic output.
func mostUrgent(states []*rotationState, now rotationClock) *rotationState {
	var best *rotationState
	var bestScore float64
	for _, st := range states {
		if st.remaining < minChunkHours {
			continue
		}
		score := st.urgency(now)
		if best == nil || score > bestScore {
			best = st
			bestScore = score
		}
	}
	return best
}

// urgency weighs complexity against the time elapsed since the last study
// session of this theme.
func (s *rotationState) urgency(now rotationClock) float64 {
	complexity := s.theme.Complexity
	if complexity < 1 {
		complexity = 1
	}
	idle := int(now - s.lastStudied)
	return float64(complexity) * float64(1+idle)
}

// takePart returns the ordered part the next chunk belongs to, advancing
// the cursor as parts are consumed. Themes without parts yield nil.
func (s *rotationState) takePart(hours float64) *int {
	if len(s.parts) == 0 {
		return nil
	}
	if s.cursor >= len(s.parts) {
		s.cursor = len(s.parts) - 1
	}
	part := &s.parts[s.cursor]
	index := part.index
	part.remaining -= hours
	if part.remaining < minChunkHours && s.cursor < len(s.parts)-1 {
		s.cursor++
	}
	return &index
}

// scaleParts distributes the theme's remaining hours across its ordered
// parts proportionally to their declared size.
func scaleParts(theme models.Theme, remaining float64) []rotationPart {
	if len(theme.Parts) == 0 {
		return nil
	}
	var declared float64
	for _, p := range theme.Parts {
		declared += p.Hours
	}
	if declared <= 0 {
		return nil
	}
	parts := make([]rotationPart, 0, len(theme.Parts))
	for _, p := range theme.Parts {
		parts = append(parts, rotationPart{
			index:     p.Index,
			remaining: roundToHalf(remaining * p.Hours / declared),
		})
	}
	return parts
}
