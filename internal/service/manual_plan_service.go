package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyplanhq/studyplan-api/internal/models"
	"github.com/studyplanhq/studyplan-api/internal/repository"
	"github.com/studyplanhq/studyplan-api/internal/scheduler"
	appErrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

// ManualSessionInput is one hand-placed session in a manual plan.
type ManualSessionInput struct {
	ThemeID   string  `json:"theme_id" validate:"required"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Hours     float64 `json:"hours" validate:"required,gt=0"`
	Type      string  `json:"type" validate:"required"`
	PartIndex *int    `json:"part_index" validate:"omitempty,min=0"`
	Notes     string  `json:"notes" validate:"omitempty,max=2000"`
}

// ApplyManualPlanRequest replaces the plan's PENDING sessions with a
// hand-built calendar.
type ApplyManualPlanRequest struct {
	Sessions []ManualSessionInput `json:"sessions" validate:"required,min=1,dive"`
}

// ManualPlanResult reports what the merge produced.
type ManualPlanResult struct {
	PlanID   string `json:"plan_id"`
	Replaced int    `json:"replaced"`
	Created  int    `json:"created"`
	Version  int    `json:"version"`
}

// ManualPlanService merges a hand-built calendar into a plan. Completed,
// in-progress and skipped sessions always survive the merge; only the
// PENDING tail is replaced.
type ManualPlanService struct {
	plans      planRepository
	sessions   planSessionStore
	themes     agendaThemeReader
	tx         txProvider
	cache      agendaInvalidator
	maxPending int
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewManualPlanService wires the manual override merger.
func NewManualPlanService(
	plans planRepository,
	sessions planSessionStore,
	themes agendaThemeReader,
	tx txProvider,
	cache agendaInvalidator,
	maxPending int,
	validate *validator.Validate,
	logger *zap.Logger,
) *ManualPlanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPending <= 0 {
		maxPending = 4000
	}
	return &ManualPlanService{
		plans:      plans,
		sessions:   sessions,
		themes:     themes,
		tx:         tx,
		cache:      cache,
		maxPending: maxPending,
		validator:  validate,
		logger:     logger,
	}
}

// Apply validates the manual calendar against the plan's capacity and theme
// selection, then swaps it in atomically.
func (s *ManualPlanService) Apply(ctx context.Context, ownerID, planID string, req ApplyManualPlanRequest) (*ManualPlanResult, error) {
	if ownerID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing owner identity")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manual plan payload")
	}
	if len(req.Sessions) > s.maxPending {
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded,
			fmt.Sprintf("manual plan has %d sessions, above the %d ceiling", len(req.Sessions), s.maxPending))
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	if plan.OwnerID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "plan belongs to another owner")
	}
	if plan.Status != models.PlanStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only active plans accept manual overrides")
	}

	themes, err := s.themes.ListByPlan(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load themes")
	}
	selected := make(map[string]struct{}, len(themes))
	for _, theme := range themes {
		selected[theme.ID] = struct{}{}
	}

	all, err := s.sessions.ListByPlan(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	history := make([]models.Session, 0, len(all))
	for _, sess := range all {
		if sess.Status != models.SessionStatusPending {
			history = append(history, sess)
		}
	}

	sessions, err := s.validateSessions(plan, selected, history, req.Sessions)
	if err != nil {
		return nil, err
	}

	replaced, err := s.swapPending(ctx, plan, sessions)
	if err != nil {
		return nil, err
	}
	s.invalidateAgenda(ctx, planID)
	s.logger.Info("manual plan applied",
		zap.String("plan_id", planID),
		zap.Int("replaced", replaced),
		zap.Int("created", len(sessions)))

	return &ManualPlanResult{
		PlanID:   planID,
		Replaced: replaced,
		Created:  len(sessions),
		Version:  plan.Version + 1,
	}, nil
}

// validateSessions checks every manual entry against the date range, the
// theme selection and the per-day capacity. History pins its hours first, so
// manual sessions can only claim what the engine would also see as free.
func (s *ManualPlanService) validateSessions(plan *models.StudyPlan, selected map[string]struct{}, history []models.Session, inputs []ManualSessionInput) ([]models.Session, error) {
	capacity := scheduler.NewCapacity(plan.WeeklySchedule)
	ledger := scheduler.LedgerFromSessions(history)

	sessions := make([]models.Session, 0, len(inputs))
	for i, input := range inputs {
		date, err := time.Parse("2006-01-02", input.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("session %d: invalid date", i))
		}
		day := scheduler.Day(date)
		if day.Before(scheduler.Day(plan.StartDate)) || !day.Before(scheduler.Day(plan.ExamDate)) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("session %d: date %s is outside the plan range", i, input.Date))
		}
		if _, ok := selected[input.ThemeID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("session %d: theme %s is not part of the plan", i, input.ThemeID))
		}
		sessionType := models.SessionType(input.Type)
		if !sessionType.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("session %d: unknown session type %q", i, input.Type))
		}
		if math.Mod(input.Hours, 0.5) != 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("session %d: hours must land on the half-hour grid", i))
		}

		if ledger[scheduler.DateKey(day)]+input.Hours > capacity.HoursOn(day) {
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded,
				fmt.Sprintf("day %s capacity %.1fh, requested %.1fh", scheduler.DateKey(day),
					capacity.HoursOn(day), ledger[scheduler.DateKey(day)]+input.Hours))
		}
		ledger.Add(day, input.Hours)

		sessions = append(sessions, models.Session{
			PlanID:         plan.ID,
			ThemeID:        input.ThemeID,
			PartIndex:      input.PartIndex,
			ScheduledDate:  day,
			ScheduledHours: input.Hours,
			Type:           sessionType,
			Status:         models.SessionStatusPending,
			Notes:          input.Notes,
		})
	}
	return sessions, nil
}

func (s *ManualPlanService) swapPending(ctx context.Context, plan *models.StudyPlan, sessions []models.Session) (int, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	replaced, err := s.sessions.DeletePendingWithTx(ctx, tx, plan.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear pending sessions")
	}
	if err := s.sessions.BulkCreateWithTx(ctx, tx, sessions); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store manual sessions")
	}
	ok, err := s.plans.BumpVersion(ctx, tx, plan.ID, plan.Version)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bump plan version")
	}
	if !ok {
		return 0, appErrors.Clone(appErrors.ErrConflict, "plan changed while the manual plan was being applied")
	}
	if err := tx.Commit(); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit manual plan")
	}
	return replaced, nil
}

func (s *ManualPlanService) invalidateAgenda(ctx context.Context, planID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, repository.AgendaPattern(planID)); err != nil {
		s.logger.Warn("agenda cache invalidation failed", zap.String("plan_id", planID), zap.Error(err))
	}
}
