package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/studyplanhq/studyplan-api/internal/models"
	"github.com/studyplanhq/studyplan-api/internal/repository"
	"github.com/studyplanhq/studyplan-api/internal/scheduler"
	appErrors "github.com/studyplanhq/studyplan-api/pkg/errors"
	"github.com/studyplanhq/studyplan-api/pkg/jobs"
)

type planRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error
	FindByID(ctx context.Context, id string) (*models.StudyPlan, error)
	SetStatus(ctx context.Context, id string, status models.PlanStatus) error
	BumpVersion(ctx context.Context, exec sqlx.ExtContext, id string, expected int) (bool, error)
	AttachThemes(ctx context.Context, exec sqlx.ExtContext, planID string, themes []models.PlanTheme) error
}

type planThemeReader interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.Theme, error)
	ListByPlan(ctx context.Context, planID string) ([]models.Theme, error)
}

type planSessionStore interface {
	ListByPlan(ctx context.Context, planID string) ([]models.Session, error)
	CountByStatus(ctx context.Context, planID string) ([]models.SessionStatusCount, error)
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, sessions []models.Session) error
	DeletePendingWithTx(ctx context.Context, tx *sqlx.Tx, planID string) (int, error)
}

type planStatReader interface {
	ListByPlan(ctx context.Context, planID string) ([]models.ThemeStat, error)
}

type planJobStore interface {
	Create(ctx context.Context, job *models.PlanJob) error
	FindByID(ctx context.Context, id string) (*models.PlanJob, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id string, sessionCount int, warning *string) error
	MarkFailed(ctx context.Context, id string, cause string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type agendaInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type generationObserver interface {
	ObserveGeneration(kind string, methodology models.Methodology, duration time.Duration)
	RecordRebalance()
}

// CreatePlanRequest is the payload for creating a study plan.
type CreatePlanRequest struct {
	StartDate      string                `json:"start_date" validate:"required,datetime=2006-01-02"`
	ExamDate       string                `json:"exam_date" validate:"required,datetime=2006-01-02"`
	WeeklySchedule models.WeeklySchedule `json:"weekly_schedule"`
	Methodology    string                `json:"methodology" validate:"required"`
	TopicsPerDay   int                   `json:"topics_per_day" validate:"omitempty,min=1,max=10"`
	ThemeIDs       []string              `json:"theme_ids" validate:"required,min=1,dive,required"`
	CustomBlocks   models.CustomBlocks   `json:"custom_blocks"`
}

// planJobPayload travels through the in-memory queue.
type planJobPayload struct {
	PlanID string
	JobID  string
}

// PlanService owns the plan lifecycle: creation, asynchronous generation,
// rebalancing and archiving.
type PlanService struct {
	plans      planRepository
	themes     planThemeReader
	sessions   planSessionStore
	stats      planStatReader
	jobs       planJobStore
	tx         txProvider
	cache      agendaInvalidator
	metrics    generationObserver
	queue      jobEnqueuer
	builder    scheduler.Builder
	maxPending int
	validator  *validator.Validate
	logger     *zap.Logger
}

// PlanServiceConfig carries the engine knobs the service needs.
type PlanServiceConfig struct {
	Builder            scheduler.Builder
	MaxPendingSessions int
}

// NewPlanService wires the plan orchestrator.
func NewPlanService(
	plans planRepository,
	themes planThemeReader,
	sessions planSessionStore,
	stats planStatReader,
	jobStore planJobStore,
	tx txProvider,
	cache agendaInvalidator,
	metrics generationObserver,
	cfg PlanServiceConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *PlanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPendingSessions <= 0 {
		cfg.MaxPendingSessions = 4000
	}
	return &PlanService{
		plans:      plans,
		themes:     themes,
		sessions:   sessions,
		stats:      stats,
		jobs:       jobStore,
		tx:         tx,
		cache:      cache,
		metrics:    metrics,
		builder:    cfg.Builder,
		maxPending: cfg.MaxPendingSessions,
		validator:  validate,
		logger:     logger,
	}
}

// SetQueue attaches the background queue. The queue's handler is this
// service's HandleJob, so wiring happens after construction.
func (s *PlanService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Create validates the payload, persists the plan and queues the initial
// generation run. The returned job is the polling handle for the caller.
func (s *PlanService) Create(ctx context.Context, ownerID string, req CreatePlanRequest) (*models.StudyPlan, *models.PlanJob, error) {
	if ownerID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing owner identity")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan payload")
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid start date")
	}
	exam, err := time.Parse("2006-01-02", req.ExamDate)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid exam date")
	}
	if !start.Before(exam) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "start date must be before exam date")
	}

	methodology := models.Methodology(req.Methodology)
	if !methodology.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown methodology %q", req.Methodology))
	}
	if err := req.WeeklySchedule.Validate(); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid weekly schedule")
	}
	if req.WeeklySchedule.Total() <= 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "weekly schedule has no study hours")
	}
	if methodology == models.MethodologyCustomBlocks && len(req.CustomBlocks) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "custom blocks methodology requires block definitions")
	}

	themes, err := s.themes.ListByIDs(ctx, req.ThemeIDs)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load themes")
	}
	if len(themes) != len(uniqueStrings(req.ThemeIDs)) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "one or more themes do not exist")
	}

	topicsPerDay := req.TopicsPerDay
	if topicsPerDay <= 0 {
		topicsPerDay = 1
	}

	plan := &models.StudyPlan{
		OwnerID:        ownerID,
		StartDate:      scheduler.Day(start),
		ExamDate:       scheduler.Day(exam),
		WeeklySchedule: req.WeeklySchedule,
		Methodology:    methodology,
		TopicsPerDay:   topicsPerDay,
		CustomBlocks:   req.CustomBlocks,
	}
	planThemes := make([]models.PlanTheme, 0, len(req.ThemeIDs))
	for i, id := range req.ThemeIDs {
		planThemes = append(planThemes, models.PlanTheme{ThemeID: id, Position: i})
	}
	if err := s.insertPlan(ctx, plan, planThemes); err != nil {
		return nil, nil, err
	}

	job, err := s.enqueueJob(ctx, plan.ID, models.PlanJobKindGenerate)
	if err != nil {
		return nil, nil, err
	}
	return plan, job, nil
}

// Get loads a plan owned by the caller. The buffer warning is recomputed
// from the remaining pending sessions so it tracks progress, not the state
// at generation time.
func (s *PlanService) Get(ctx context.Context, ownerID, planID string) (*models.StudyPlan, error) {
	plan, err := s.ownedPlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status == models.PlanStatusActive {
		sessions, err := s.sessions.ListByPlan(ctx, planID)
		if err != nil {
			s.logger.Warn("buffer recompute skipped", zap.String("plan_id", planID), zap.Error(err))
		} else {
			plan.BufferWarning = s.builder.BufferStatus(*plan, sessions, time.Now().UTC())
		}
	}
	return plan, nil
}

// GetJob returns the generation job handle for polling.
func (s *PlanService) GetJob(ctx context.Context, ownerID, planID, jobID string) (*models.PlanJob, error) {
	if _, err := s.ownedPlan(ctx, ownerID, planID); err != nil {
		return nil, err
	}
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	if job.PlanID != planID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
	}
	return job, nil
}

// Rebalance queues a regeneration of the plan's PENDING sessions from today
// onward. Progress to date is preserved through the capacity ledger.
func (s *PlanService) Rebalance(ctx context.Context, ownerID, planID string) (*models.PlanJob, error) {
	plan, err := s.ownedPlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != models.PlanStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only active plans can be rebalanced")
	}
	if s.metrics != nil {
		s.metrics.RecordRebalance()
	}
	return s.enqueueJob(ctx, planID, models.PlanJobKindRebalance)
}

// EnqueueRebalance queues a rebalance without an ownership check. It backs
// the automatic skip-ratio trigger, which fires on behalf of the system.
func (s *PlanService) EnqueueRebalance(ctx context.Context, planID string) (*models.PlanJob, error) {
	if s.metrics != nil {
		s.metrics.RecordRebalance()
	}
	return s.enqueueJob(ctx, planID, models.PlanJobKindRebalance)
}

// Archive retires the plan and frees the owner's ACTIVE slot.
func (s *PlanService) Archive(ctx context.Context, ownerID, planID string) error {
	plan, err := s.ownedPlan(ctx, ownerID, planID)
	if err != nil {
		return err
	}
	if plan.Status == models.PlanStatusArchived {
		return appErrors.Clone(appErrors.ErrConflict, "plan is already archived")
	}
	if err := s.plans.SetStatus(ctx, planID, models.PlanStatusArchived); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive plan")
	}
	s.invalidateAgenda(ctx, planID)
	return nil
}

// ListThemeStats returns the plan's spaced-repetition state per theme.
func (s *PlanService) ListThemeStats(ctx context.Context, ownerID, planID string) ([]models.ThemeStat, error) {
	if _, err := s.ownedPlan(ctx, ownerID, planID); err != nil {
		return nil, err
	}
	stats, err := s.stats.ListByPlan(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme stats")
	}
	return stats, nil
}

// Stats aggregates the plan's session counts per status.
func (s *PlanService) Stats(ctx context.Context, ownerID, planID string) (*models.PlanStats, error) {
	if _, err := s.ownedPlan(ctx, ownerID, planID); err != nil {
		return nil, err
	}
	counts, err := s.sessions.CountByStatus(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}
	stats := &models.PlanStats{PlanID: planID, ByStatus: counts}
	skipped := 0
	for _, c := range counts {
		stats.Total += c.Count
		if c.Status == models.SessionStatusSkipped {
			skipped = c.Count
		}
	}
	if stats.Total > 0 {
		stats.SkipRatio = float64(skipped) / float64(stats.Total)
	}
	return stats, nil
}

// HandleJob is the queue handler. Generation errors stemming from plan input
// land on the job record; infrastructure errors bubble up so the queue can
// retry.
func (s *PlanService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(planJobPayload)
	if !ok {
		s.logger.Error("discarding job with unexpected payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}

	from, err := s.generationStart(ctx, payload.PlanID, job.Type)
	if err != nil {
		return s.failJob(ctx, payload.JobID, err)
	}
	return s.runGeneration(ctx, payload, job.Type, from)
}

func (s *PlanService) generationStart(ctx context.Context, planID, kind string) (time.Time, error) {
	if kind == models.PlanJobKindRebalance {
		return scheduler.Day(time.Now().UTC()), nil
	}
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	return plan.StartDate, nil
}

func (s *PlanService) runGeneration(ctx context.Context, payload planJobPayload, kind string, from time.Time) error {
	started := time.Now()
	if err := s.jobs.MarkProcessing(ctx, payload.JobID); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	plan, err := s.plans.FindByID(ctx, payload.PlanID)
	if err != nil {
		return s.failJob(ctx, payload.JobID, err)
	}
	if plan.Status != models.PlanStatusActive {
		return s.failJob(ctx, payload.JobID, appErrors.Clone(appErrors.ErrConflict, "plan is no longer active"))
	}

	themes, err := s.themes.ListByPlan(ctx, payload.PlanID)
	if err != nil {
		return s.failJob(ctx, payload.JobID, err)
	}
	statList, err := s.stats.ListByPlan(ctx, payload.PlanID)
	if err != nil {
		return s.failJob(ctx, payload.JobID, err)
	}
	statMap := make(map[string]models.ThemeStat, len(statList))
	for _, st := range statList {
		statMap[st.ThemeID] = st
	}

	all, err := s.sessions.ListByPlan(ctx, payload.PlanID)
	if err != nil {
		return s.failJob(ctx, payload.JobID, err)
	}
	history := make([]models.Session, 0, len(all))
	for _, sess := range all {
		if sess.Status != models.SessionStatusPending {
			history = append(history, sess)
		}
	}

	result, err := s.builder.Build(*plan, themes, statMap, history, from)
	if err != nil {
		return s.failJob(ctx, payload.JobID, err)
	}
	if len(result.Requests) > s.maxPending {
		return s.failJob(ctx, payload.JobID, appErrors.Clone(appErrors.ErrCapacityExceeded,
			fmt.Sprintf("plan would produce %d sessions, above the %d ceiling", len(result.Requests), s.maxPending)))
	}

	sessions := make([]models.Session, 0, len(result.Requests))
	for _, req := range result.Requests {
		sessions = append(sessions, models.Session{
			PlanID:         plan.ID,
			ThemeID:        req.ThemeID,
			PartIndex:      req.PartIndex,
			ScheduledDate:  req.Date,
			ScheduledHours: req.Hours,
			Type:           req.Type,
			Status:         models.SessionStatusPending,
			DueDate:        req.DueDate,
		})
	}

	if err := s.replacePending(ctx, plan, sessions); err != nil {
		return s.failJob(ctx, payload.JobID, err)
	}

	var warning *string
	if result.Warning != nil {
		msg := result.Warning.Message
		warning = &msg
	}
	if err := s.jobs.MarkFinished(ctx, payload.JobID, len(sessions), warning); err != nil {
		return fmt.Errorf("mark job finished: %w", err)
	}
	s.invalidateAgenda(ctx, plan.ID)
	if s.metrics != nil {
		s.metrics.ObserveGeneration(kind, plan.Methodology, time.Since(started))
	}
	s.logger.Info("plan generation finished",
		zap.String("plan_id", plan.ID),
		zap.String("kind", kind),
		zap.Int("sessions", len(sessions)))
	return nil
}

// replacePending swaps the plan's PENDING sessions for the fresh allocation
// in one transaction. The optimistic version check aborts when another
// writer touched the plan since the run loaded it.
// insertPlan writes the plan row and its theme selection in one
// transaction; a failed attachment never leaves a themeless plan holding
// the owner's ACTIVE slot.
func (s *PlanService) insertPlan(ctx context.Context, plan *models.StudyPlan, themes []models.PlanTheme) error {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := s.plans.Create(ctx, tx, plan); err != nil {
		if repository.IsUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConcurrentPlan, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create plan")
	}
	if err := s.plans.AttachThemes(ctx, tx, plan.ID, themes); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach themes")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit plan")
	}
	return nil
}

func (s *PlanService) replacePending(ctx context.Context, plan *models.StudyPlan, sessions []models.Session) error {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := s.sessions.DeletePendingWithTx(ctx, tx, plan.ID); err != nil {
		return err
	}
	if err := s.sessions.BulkCreateWithTx(ctx, tx, sessions); err != nil {
		return err
	}
	ok, err := s.plans.BumpVersion(ctx, tx, plan.ID, plan.Version)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrConflict, "plan changed while the generation was running")
	}
	return tx.Commit()
}

func (s *PlanService) enqueueJob(ctx context.Context, planID, kind string) (*models.PlanJob, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "generation queue is not running")
	}
	job := &models.PlanJob{PlanID: planID, Kind: kind, Status: models.PlanJobStatusQueued}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record job")
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    kind,
		Payload: planJobPayload{PlanID: planID, JobID: job.ID},
	})
	if err != nil {
		_ = s.jobs.MarkFailed(ctx, job.ID, "queue unavailable")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue generation")
	}
	return job, nil
}

// failJob records the cause on the job and swallows domain errors so the
// queue does not retry deterministic failures.
func (s *PlanService) failJob(ctx context.Context, jobID string, cause error) error {
	if err := s.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		s.logger.Error("failed to mark job failed", zap.String("job_id", jobID), zap.Error(err))
	}
	var typed *appErrors.Error
	if errors.As(cause, &typed) && typed.Status < 500 {
		s.logger.Warn("generation rejected", zap.String("job_id", jobID), zap.String("code", typed.Code), zap.Error(cause))
		return nil
	}
	return cause
}

func (s *PlanService) ownedPlan(ctx context.Context, ownerID, planID string) (*models.StudyPlan, error) {
	if ownerID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing owner identity")
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
	return plan, nil
}

func (s *PlanService) invalidateAgenda(ctx context.Context, planID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, repository.AgendaPattern(planID)); err != nil {
		s.logger.Warn("agenda cache invalidation failed", zap.String("plan_id", planID), zap.Error(err))
	}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
