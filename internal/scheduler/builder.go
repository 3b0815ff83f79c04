package scheduler

import (
	"fmt"
	"time"

	"github.com/studyplanhq/studyplan-api/internal/models"
	apperrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

// Builder orchestrates the capacity model, the methodology strategy and the
// spaced-repetition coefficients to produce the full session set for a date
// range. It is also the engine behind rebalancing: the same allocation runs
// for the remaining range with history pinned in the ledger.
type Builder struct {
	Params               Params
	MaxSessionHours      float64
	ExcessiveBufferRatio float64
}

// NewBuilder constructs a builder, falling back to stock coefficients for
// any unset knob.
func NewBuilder(params Params, maxSessionHours, excessiveBufferRatio float64) Builder {
	if maxSessionHours <= 0 {
		maxSessionHours = 2
	}
	if excessiveBufferRatio <= 0 {
		excessiveBufferRatio = 0.25
	}
	return Builder{
		Params:               params.withDefaults(),
		MaxSessionHours:      maxSessionHours,
		ExcessiveBufferRatio: excessiveBufferRatio,
	}
}

// BuildResult is the outcome of one allocation run.
type BuildResult struct {
	Requests       []SessionRequest
	Warning        *models.BufferWarning
	RequiredHours  float64
	AvailableHours float64
}

// Build validates plan inputs and generates the session set for
// [from, examDate). History sessions keep their capacity through the
// ledger and are never represented in the output.
func (b Builder) Build(plan models.StudyPlan, themes []models.Theme, stats map[string]models.ThemeStat, history []models.Session, from time.Time) (*BuildResult, error) {
	if len(themes) == 0 {
		return nil, apperrors.Clone(apperrors.ErrValidation, "plan has no themes selected")
	}
	if err := plan.WeeklySchedule.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid weekly schedule")
	}
	if plan.WeeklySchedule.Total() <= 0 {
		return nil, apperrors.Clone(apperrors.ErrValidation, "weekly schedule has no study hours")
	}
	start := Day(plan.StartDate)
	exam := Day(plan.ExamDate)
	if !start.Before(exam) {
		return nil, apperrors.Clone(apperrors.ErrValidation, "start date must be before exam date")
	}

	rangeStart := Day(from)
	if rangeStart.Before(start) {
		rangeStart = start
	}

	capacity := NewCapacity(plan.WeeklySchedule)
	ledger := LedgerFromSessions(history)

	var required float64
	for _, theme := range themes {
		required += theme.EstimatedHours * b.Params.ReviewMultiplier
	}
	available := capacity.TotalBetween(rangeStart, exam)

	strategy, err := ForMethodology(plan.Methodology)
	if err != nil {
		return nil, err
	}

	requests, err := strategy.Allocate(AllocationInput{
		Themes:           themes,
		Start:            rangeStart,
		Exam:             exam,
		Capacity:         capacity,
		Ledger:           ledger,
		Stats:            stats,
		TopicsPerDay:     plan.TopicsPerDay,
		Blocks:           plan.CustomBlocks,
		MaxSessionHours:  b.MaxSessionHours,
		ReviewMultiplier: b.Params.ReviewMultiplier,
	})
	if err != nil {
		return nil, err
	}

	if err := verifyCapacity(capacity, history, requests); err != nil {
		return nil, err
	}

	result := &BuildResult{
		Requests:       requests,
		RequiredHours:  required,
		AvailableHours: available,
	}
	result.Warning = b.bufferWarning(rangeStart, exam, requests, required, available)
	return result, nil
}

// BufferStatus recomputes the slack signal for a plan that already holds
// sessions. Remaining PENDING work counts as required; everything else is
// settled history and claims no future capacity.
func (b Builder) BufferStatus(plan models.StudyPlan, sessions []models.Session, from time.Time) *models.BufferWarning {
	start := Day(from)
	if start.Before(Day(plan.StartDate)) {
		start = Day(plan.StartDate)
	}
	exam := Day(plan.ExamDate)
	if !start.Before(exam) {
		return nil
	}

	var required float64
	var requests []SessionRequest
	for _, s := range sessions {
		if s.Status != models.SessionStatusPending {
			continue
		}
		required += s.ScheduledHours
		requests = append(requests, SessionRequest{Date: Day(s.ScheduledDate), Hours: s.ScheduledHours})
	}
	if len(requests) == 0 {
		return nil
	}
	available := NewCapacity(plan.WeeklySchedule).TotalBetween(start, exam)
	return b.bufferWarning(start, exam, requests, required, available)
}

// verifyCapacity re-checks the daily capacity invariant over history plus
// freshly generated requests. Strategies respect the ledger already, so a
// failure here is an engine bug, not caller input.
func verifyCapacity(capacity Capacity, history []models.Session, requests []SessionRequest) error {
	ledger := LedgerFromSessions(history)
	for _, req := range requests {
		ledger.Add(req.Date, req.Hours)
	}
	for key, hours := range ledger {
		date, err := time.Parse(dateLayout, key)
		if err != nil {
			continue
		}
		// Half-hour arithmetic on float64 stays exact; the epsilon only
		// guards aggregation order.
		if hours > capacity.HoursOn(date)+1e-9 {
			return apperrors.Wrap(
				fmt.Errorf("day %s capacity %.1fh, allocated %.1fh", key, capacity.HoursOn(date), hours),
				apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "generated plan exceeds daily capacity",
			)
		}
	}
	return nil
}

// bufferWarning derives the slack signal between the last scheduled session
// and the exam date. It is informational only.
func (b Builder) bufferWarning(start, exam time.Time, requests []SessionRequest, required, available float64) *models.BufferWarning {
	last := start
	for _, req := range requests {
		if req.Date.After(last) {
			last = req.Date
		}
	}
	bufferDays := DaysBetween(last, exam)
	horizon := DaysBetween(start, exam)

	if available < required || bufferDays < 0 {
		return &models.BufferWarning{
			Kind:           models.BufferWarningInsufficient,
			BufferDays:     bufferDays,
			RequiredHours:  required,
			AvailableHours: available,
			Message:        fmt.Sprintf("required %.1fh exceeds available %.1fh before the exam", required, available),
		}
	}
	if horizon >= 14 && float64(bufferDays) > b.ExcessiveBufferRatio*float64(horizon) {
		return &models.BufferWarning{
			Kind:           models.BufferWarningExcessive,
			BufferDays:     bufferDays,
			RequiredHours:  required,
			AvailableHours: available,
			Message:        fmt.Sprintf("plan finishes %d days before the exam", bufferDays),
		}
	}
	return nil
}
