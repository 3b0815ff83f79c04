package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/studyplanhq/studyplan-api/internal/models"
	"github.com/studyplanhq/studyplan-api/internal/repository"
	"github.com/studyplanhq/studyplan-api/internal/scheduler"
	appErrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

// reviewSessionHours is the slot size booked for a spaced-repetition review.
const reviewSessionHours = 1.0

type sessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListByPlan(ctx context.Context, planID string) ([]models.Session, error)
	CountByStatus(ctx context.Context, planID string) ([]models.SessionStatusCount, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	UpdateWithTx(ctx context.Context, tx *sqlx.Tx, session *models.Session) error
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, sessions []models.Session) error
}

type sessionPlanReader interface {
	FindByID(ctx context.Context, id string) (*models.StudyPlan, error)
}

type themeStatStore interface {
	FindByPlanAndTheme(ctx context.Context, planID, themeID string) (*models.ThemeStat, error)
	UpsertWithTx(ctx context.Context, tx *sqlx.Tx, stat *models.ThemeStat) error
}

type planRebalancer interface {
	EnqueueRebalance(ctx context.Context, planID string) (*models.PlanJob, error)
}

type rescheduleObserver interface {
	RecordReschedule()
}

// CompleteSessionRequest records the outcome of a finished session.
type CompleteSessionRequest struct {
	Difficulty     int      `json:"difficulty" validate:"min=0,max=5"`
	CompletedHours *float64 `json:"completed_hours" validate:"omitempty,gt=0"`
	Notes          string   `json:"notes" validate:"omitempty,max=2000"`
}

// SkipSessionRequest flags a session the student could not attend.
type SkipSessionRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// StartSessionRequest optionally records hours already spent when a session
// moves into IN_PROGRESS. Partial progress is bookkeeping only and does not
// release capacity.
type StartSessionRequest struct {
	PartialHours *float64 `json:"partial_hours" validate:"omitempty,gt=0"`
}

// CompleteResult bundles the closed session with the refreshed recall state
// and the review slot booked from it, when one fits before the exam.
type CompleteResult struct {
	Session    *models.Session   `json:"session"`
	Stat       *models.ThemeStat `json:"theme_stat"`
	NextReview *models.Session   `json:"next_review,omitempty"`
}

// SkipResult bundles the skipped session with its replacement slot and the
// rebalance job when the skip ratio crossed the automatic threshold.
type SkipResult struct {
	Session      *models.Session `json:"session"`
	Replacement  *models.Session `json:"replacement,omitempty"`
	RebalanceJob *models.PlanJob `json:"rebalance_job,omitempty"`
	Warning      string          `json:"warning,omitempty"`
}

// SessionService drives the session lifecycle and feeds completion outcomes
// back into the spaced-repetition state.
type SessionService struct {
	sessions   sessionRepository
	plans      sessionPlanReader
	stats      themeStatStore
	rebalancer planRebalancer
	tx         txProvider
	cache      agendaInvalidator
	metrics    rescheduleObserver
	params     scheduler.Params
	skipRatio  float64
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewSessionService wires the session lifecycle service.
func NewSessionService(
	sessions sessionRepository,
	plans sessionPlanReader,
	stats themeStatStore,
	rebalancer planRebalancer,
	tx txProvider,
	cache agendaInvalidator,
	metrics rescheduleObserver,
	params scheduler.Params,
	skipRatio float64,
	validate *validator.Validate,
	logger *zap.Logger,
) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if skipRatio <= 0 {
		skipRatio = 0.2
	}
	return &SessionService{
		sessions:   sessions,
		plans:      plans,
		stats:      stats,
		rebalancer: rebalancer,
		tx:         tx,
		cache:      cache,
		metrics:    metrics,
		params:     params,
		skipRatio:  skipRatio,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Complete closes a session, folds the recall difficulty into the theme's
// spaced-repetition state and books the next review slot.
func (s *SessionService) Complete(ctx context.Context, ownerID, sessionID string, req CompleteSessionRequest) (*CompleteResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
	}
	session, plan, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := scheduler.EnsureTransition(*session, models.SessionStatusCompleted); err != nil {
		return nil, err
	}

	session.Status = models.SessionStatusCompleted
	if req.CompletedHours != nil {
		session.CompletedHours = req.CompletedHours
	} else {
		hours := session.ScheduledHours
		session.CompletedHours = &hours
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		session.Notes = notes
	}

	stat, err := s.reviewTheme(ctx, plan.ID, session.ThemeID, req.Difficulty)
	if err != nil {
		return nil, err
	}
	review, bookReview := s.planNextReview(ctx, plan, session, stat)

	// One transaction for the status flip, the recall state and the booked
	// review: a failure leaves the session open and retryable.
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.sessions.UpdateWithTx(ctx, tx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	if err := s.stats.UpsertWithTx(ctx, tx, stat); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store theme stat")
	}
	if bookReview {
		booked := []models.Session{*review}
		if err := s.sessions.BulkCreateWithTx(ctx, tx, booked); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to book review session")
		}
		*review = booked[0]
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit completion")
	}

	result := &CompleteResult{Session: session, Stat: stat}
	if bookReview {
		result.NextReview = review
	}
	s.invalidateAgenda(ctx, plan.ID)
	return result, nil
}

// Skip marks a session as missed and books the earliest replacement slot.
// When accumulated skips cross the configured ratio a full rebalance is
// queued on top of the one-slot move.
func (s *SessionService) Skip(ctx context.Context, ownerID, sessionID string, req SkipSessionRequest) (*SkipResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid skip payload")
	}
	session, plan, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := scheduler.EnsureTransition(*session, models.SessionStatusSkipped); err != nil {
		return nil, err
	}

	session.Status = models.SessionStatusSkipped
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		session.SkipReason = &reason
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}

	result := &SkipResult{Session: session}

	all, err := s.sessions.ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	from := scheduler.Day(s.now()).AddDate(0, 0, 1)
	replacement, err := scheduler.Reschedule(plan.WeeklySchedule, all, *session, from, plan.ExamDate)
	if err != nil {
		s.logger.Warn("no replacement slot for skipped session",
			zap.String("session_id", session.ID), zap.Error(err))
		result.Warning = "no free day could absorb the skipped session"
	} else {
		if err := s.sessions.Create(ctx, &replacement); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create replacement session")
		}
		result.Replacement = &replacement
		if s.metrics != nil {
			s.metrics.RecordReschedule()
		}
	}

	if job := s.maybeRebalance(ctx, plan.ID); job != nil {
		result.RebalanceJob = job
	}
	s.invalidateAgenda(ctx, plan.ID)
	return result, nil
}

// Start moves a pending session into IN_PROGRESS.
func (s *SessionService) Start(ctx context.Context, ownerID, sessionID string, req StartSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start payload")
	}
	session, plan, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := scheduler.EnsureTransition(*session, models.SessionStatusInProgress); err != nil {
		return nil, err
	}
	session.Status = models.SessionStatusInProgress
	if req.PartialHours != nil {
		session.CompletedHours = req.PartialHours
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	s.invalidateAgenda(ctx, plan.ID)
	return session, nil
}

// reviewTheme loads the recall state and folds the reported difficulty into
// it. The caller persists the result inside the completion transaction.
func (s *SessionService) reviewTheme(ctx context.Context, planID, themeID string, difficulty int) (*models.ThemeStat, error) {
	stat, err := s.stats.FindByPlanAndTheme(ctx, planID, themeID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme stat")
		}
		fresh := s.params.NewStat(planID, themeID)
		stat = &fresh
	}
	updated := s.params.Review(*stat, difficulty, s.now())
	return &updated, nil
}

// planNextReview derives the REVIEW session the refreshed stat calls for.
// Reviews falling on or after the exam date are dropped silently.
func (s *SessionService) planNextReview(ctx context.Context, plan *models.StudyPlan, completed *models.Session, stat *models.ThemeStat) (*models.Session, bool) {
	all, err := s.sessions.ListByPlan(ctx, plan.ID)
	if err != nil {
		s.logger.Warn("skipping review booking", zap.String("plan_id", plan.ID), zap.Error(err))
		return nil, false
	}
	capacity := scheduler.NewCapacity(plan.WeeklySchedule)
	ledger := scheduler.LedgerFromSessions(all)
	maxScan := scheduler.DaysBetween(scheduler.Day(s.now()), plan.ExamDate)
	if maxScan <= 0 {
		return nil, false
	}

	date, ok := scheduler.NextReview(*stat, reviewSessionHours, capacity, ledger, maxScan)
	if !ok || !date.Before(plan.ExamDate) {
		return nil, false
	}

	due := date
	review := &models.Session{
		PlanID:         plan.ID,
		ThemeID:        completed.ThemeID,
		ScheduledDate:  date,
		ScheduledHours: reviewSessionHours,
		Type:           models.SessionTypeReview,
		Status:         models.SessionStatusPending,
		DueDate:        &due,
	}
	return review, true
}

func (s *SessionService) maybeRebalance(ctx context.Context, planID string) *models.PlanJob {
	if s.rebalancer == nil {
		return nil
	}
	counts, err := s.sessions.CountByStatus(ctx, planID)
	if err != nil {
		s.logger.Warn("skip ratio check failed", zap.String("plan_id", planID), zap.Error(err))
		return nil
	}
	total, skipped := 0, 0
	for _, c := range counts {
		total += c.Count
		if c.Status == models.SessionStatusSkipped {
			skipped = c.Count
		}
	}
	if !scheduler.ShouldRebalance(skipped, total, s.skipRatio) {
		return nil
	}
	job, err := s.rebalancer.EnqueueRebalance(ctx, planID)
	if err != nil {
		s.logger.Warn("automatic rebalance failed to queue", zap.String("plan_id", planID), zap.Error(err))
		return nil
	}
	s.logger.Info("skip ratio crossed, rebalance queued",
		zap.String("plan_id", planID), zap.Int("skipped", skipped), zap.Int("total", total))
	return job
}

func (s *SessionService) ownedSession(ctx context.Context, ownerID, sessionID string) (*models.Session, *models.StudyPlan, error) {
	if ownerID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing owner identity")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	plan, err := s.plans.FindByID(ctx, session.PlanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	if plan.OwnerID != ownerID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another owner")
	}
	return session, plan, nil
}

func (s *SessionService) invalidateAgenda(ctx context.Context, planID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, repository.AgendaPattern(planID)); err != nil {
		s.logger.Warn("agenda cache invalidation failed", zap.String("plan_id", planID), zap.Error(err))
	}
}
