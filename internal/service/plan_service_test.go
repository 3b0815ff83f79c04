package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyplanhq/studyplan-api/internal/models"
	"github.com/studyplanhq/studyplan-api/internal/scheduler"
	appErrors "github.com/studyplanhq/studyplan-api/pkg/errors"
	"github.com/studyplanhq/studyplan-api/pkg/jobs"
)

type mockPlanRepo struct {
	plans       map[string]*models.StudyPlan
	createErr   error
	attachErr   error
	attached    map[string][]models.PlanTheme
	statuses    map[string]models.PlanStatus
	bumpResult  bool
	bumpErr     error
	bumpedPlans []string
}

func (m *mockPlanRepo) Create(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error {
	if m.createErr != nil {
		return m.createErr
	}
	if plan.ID == "" {
		plan.ID = "plan-generated"
	}
	plan.Status = models.PlanStatusActive
	plan.Version = 1
	if m.plans == nil {
		m.plans = make(map[string]*models.StudyPlan)
	}
	cp := *plan
	m.plans[plan.ID] = &cp
	return nil
}

func (m *mockPlanRepo) FindByID(ctx context.Context, id string) (*models.StudyPlan, error) {
	if plan, ok := m.plans[id]; ok {
		cp := *plan
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPlanRepo) SetStatus(ctx context.Context, id string, status models.PlanStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.PlanStatus)
	}
	m.statuses[id] = status
	if plan, ok := m.plans[id]; ok {
		plan.Status = status
	}
	return nil
}

func (m *mockPlanRepo) BumpVersion(ctx context.Context, exec sqlx.ExtContext, id string, expected int) (bool, error) {
	m.bumpedPlans = append(m.bumpedPlans, id)
	if m.bumpErr != nil {
		return false, m.bumpErr
	}
	return m.bumpResult, nil
}

func (m *mockPlanRepo) AttachThemes(ctx context.Context, exec sqlx.ExtContext, planID string, themes []models.PlanTheme) error {
	if m.attachErr != nil {
		return m.attachErr
	}
	if m.attached == nil {
		m.attached = make(map[string][]models.PlanTheme)
	}
	m.attached[planID] = themes
	return nil
}

type mockThemeReader struct {
	themes []models.Theme
	err    error
}

func (m *mockThemeReader) ListByIDs(ctx context.Context, ids []string) ([]models.Theme, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Theme
	for _, theme := range m.themes {
		for _, id := range ids {
			if theme.ID == id {
				out = append(out, theme)
			}
		}
	}
	return out, nil
}

func (m *mockThemeReader) ListByPlan(ctx context.Context, planID string) ([]models.Theme, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.themes, nil
}

type mockSessionStore struct {
	sessions  []models.Session
	counts    []models.SessionStatusCount
	bulkCalls [][]models.Session
	deleted   []string
	deletedN  int
	listErr   error
	bulkErr   error
}

func (m *mockSessionStore) ListByPlan(ctx context.Context, planID string) ([]models.Session, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sessions, nil
}

func (m *mockSessionStore) CountByStatus(ctx context.Context, planID string) ([]models.SessionStatusCount, error) {
	return m.counts, nil
}

func (m *mockSessionStore) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, sessions []models.Session) error {
	if m.bulkErr != nil {
		return m.bulkErr
	}
	m.bulkCalls = append(m.bulkCalls, sessions)
	return nil
}

func (m *mockSessionStore) DeletePendingWithTx(ctx context.Context, tx *sqlx.Tx, planID string) (int, error) {
	m.deleted = append(m.deleted, planID)
	return m.deletedN, nil
}

type mockStatReader struct {
	stats []models.ThemeStat
}

func (m *mockStatReader) ListByPlan(ctx context.Context, planID string) ([]models.ThemeStat, error) {
	return m.stats, nil
}

type mockJobStore struct {
	jobs      map[string]*models.PlanJob
	finished  map[string]int
	warnings  map[string]*string
	failures  map[string]string
	createErr error
}

func (m *mockJobStore) Create(ctx context.Context, job *models.PlanJob) error {
	if m.createErr != nil {
		return m.createErr
	}
	if job.ID == "" {
		job.ID = "job-generated"
	}
	job.Status = models.PlanJobStatusQueued
	if m.jobs == nil {
		m.jobs = make(map[string]*models.PlanJob)
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockJobStore) FindByID(ctx context.Context, id string) (*models.PlanJob, error) {
	if job, ok := m.jobs[id]; ok {
		cp := *job
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockJobStore) MarkProcessing(ctx context.Context, id string) error {
	if job, ok := m.jobs[id]; ok {
		job.Status = models.PlanJobStatusProcessing
	}
	return nil
}

func (m *mockJobStore) MarkFinished(ctx context.Context, id string, sessionCount int, warning *string) error {
	if m.finished == nil {
		m.finished = make(map[string]int)
		m.warnings = make(map[string]*string)
	}
	m.finished[id] = sessionCount
	m.warnings[id] = warning
	if job, ok := m.jobs[id]; ok {
		job.Status = models.PlanJobStatusFinished
	}
	return nil
}

func (m *mockJobStore) MarkFailed(ctx context.Context, id string, cause string) error {
	if m.failures == nil {
		m.failures = make(map[string]string)
	}
	m.failures[id] = cause
	if job, ok := m.jobs[id]; ok {
		job.Status = models.PlanJobStatusFailed
	}
	return nil
}

type mockInvalidator struct {
	patterns []string
}

func (m *mockInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

type mockQueue struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockQueue) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type mockTxProvider struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newMockTxProvider(t *testing.T) (*mockTxProvider, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return &mockTxProvider{db: sqlx.NewDb(db, "sqlmock"), mock: mock}, func() { db.Close() }
}

func (m *mockTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	m.mock.ExpectBegin()
	m.mock.ExpectCommit()
	m.mock.ExpectRollback()
	return m.db.BeginTxx(ctx, opts)
}

func allDays(hours float64) models.WeeklySchedule {
	var week models.WeeklySchedule
	for i := range week {
		week[i] = hours
	}
	return week
}

type planFixture struct {
	plans    *mockPlanRepo
	themes   *mockThemeReader
	sessions *mockSessionStore
	stats    *mockStatReader
	jobStore *mockJobStore
	cache    *mockInvalidator
	queue    *mockQueue
	service  *PlanService
	cleanup  func()
}

func newPlanFixture(t *testing.T) *planFixture {
	tx, cleanup := newMockTxProvider(t)
	f := &planFixture{
		plans:    &mockPlanRepo{bumpResult: true},
		themes:   &mockThemeReader{},
		sessions: &mockSessionStore{},
		stats:    &mockStatReader{},
		jobStore: &mockJobStore{},
		cache:    &mockInvalidator{},
		queue:    &mockQueue{},
		cleanup:  cleanup,
	}
	f.service = NewPlanService(
		f.plans, f.themes, f.sessions, f.stats, f.jobStore,
		tx, f.cache, nil,
		PlanServiceConfig{Builder: scheduler.NewBuilder(scheduler.DefaultParams(), 2, 0.25), MaxPendingSessions: 4000},
		validator.New(), zap.NewNop(),
	)
	f.service.SetQueue(f.queue)
	return f
}

func validCreateRequest() CreatePlanRequest {
	return CreatePlanRequest{
		StartDate:      "2025-01-01",
		ExamDate:       "2025-03-01",
		WeeklySchedule: allDays(2),
		Methodology:    "ROTATION",
		ThemeIDs:       []string{"theme-a"},
	}
}

func TestPlanServiceCreateQueuesGeneration(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	f.themes.themes = []models.Theme{{ID: "theme-a", EstimatedHours: 4, Complexity: 2}}

	plan, job, err := f.service.Create(context.Background(), "owner-1", validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusActive, plan.Status)
	assert.Equal(t, models.PlanJobStatusQueued, job.Status)
	assert.Equal(t, models.PlanJobKindGenerate, job.Kind)
	require.Len(t, f.queue.enqueued, 1)
	assert.Len(t, f.plans.attached[plan.ID], 1)
}

func TestPlanServiceCreateRejectsSecondActivePlan(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	f.themes.themes = []models.Theme{{ID: "theme-a", EstimatedHours: 4}}
	f.plans.createErr = &pq.Error{Code: "23505"}

	_, _, err := f.service.Create(context.Background(), "owner-1", validCreateRequest())
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, appErrors.ErrConcurrentPlan.Code, typed.Code)
}

func TestPlanServiceCreateThemeAttachFailureLeavesNoPlan(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	f.themes.themes = []models.Theme{{ID: "theme-a", EstimatedHours: 4}}
	f.plans.attachErr = sql.ErrConnDone

	_, _, err := f.service.Create(context.Background(), "owner-1", validCreateRequest())
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, appErrors.ErrInternal.Code, typed.Code)

	assert.Empty(t, f.jobStore.jobs, "no generation job may exist for a plan that was rolled back")
	assert.Empty(t, f.queue.enqueued)
}

func TestPlanServiceCreateRejectsUnknownTheme(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	f.themes.themes = nil

	_, _, err := f.service.Create(context.Background(), "owner-1", validCreateRequest())
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, appErrors.ErrValidation.Code, typed.Code)
}

func TestPlanServiceCreateRequiresBlocksForCustomMethodology(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	f.themes.themes = []models.Theme{{ID: "theme-a", EstimatedHours: 4}}

	req := validCreateRequest()
	req.Methodology = "CUSTOM_BLOCKS"
	_, _, err := f.service.Create(context.Background(), "owner-1", req)
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, appErrors.ErrValidation.Code, typed.Code)
}

func seedActivePlan(f *planFixture) *models.StudyPlan {
	plan := &models.StudyPlan{
		ID:             "plan-1",
		OwnerID:        "owner-1",
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ExamDate:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		WeeklySchedule: allDays(2),
		Methodology:    models.MethodologyRotation,
		TopicsPerDay:   1,
		Status:         models.PlanStatusActive,
		Version:        1,
	}
	f.plans.plans = map[string]*models.StudyPlan{plan.ID: plan}
	return plan
}

func TestPlanServiceHandleJobGeneratesSessions(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	seedActivePlan(f)
	f.themes.themes = []models.Theme{{ID: "theme-a", EstimatedHours: 6, Complexity: 3}}
	f.jobStore.jobs = map[string]*models.PlanJob{"job-1": {ID: "job-1", PlanID: "plan-1", Kind: models.PlanJobKindGenerate}}

	err := f.service.HandleJob(context.Background(), jobs.Job{
		ID:      "q-1",
		Type:    models.PlanJobKindGenerate,
		Payload: planJobPayload{PlanID: "plan-1", JobID: "job-1"},
	})
	require.NoError(t, err)

	require.Len(t, f.sessions.bulkCalls, 1)
	assert.NotEmpty(t, f.sessions.bulkCalls[0])
	assert.Equal(t, []string{"plan-1"}, f.sessions.deleted)
	assert.Equal(t, models.PlanJobStatusFinished, f.jobStore.jobs["job-1"].Status)
	assert.Equal(t, len(f.sessions.bulkCalls[0]), f.jobStore.finished["job-1"])
	assert.NotEmpty(t, f.cache.patterns)
}

func TestPlanServiceHandleJobFailsOnInvalidPlan(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	plan := seedActivePlan(f)
	plan.WeeklySchedule = models.WeeklySchedule{}
	f.themes.themes = []models.Theme{{ID: "theme-a", EstimatedHours: 6}}
	f.jobStore.jobs = map[string]*models.PlanJob{"job-1": {ID: "job-1", PlanID: "plan-1", Kind: models.PlanJobKindGenerate}}

	err := f.service.HandleJob(context.Background(), jobs.Job{
		Type:    models.PlanJobKindGenerate,
		Payload: planJobPayload{PlanID: "plan-1", JobID: "job-1"},
	})
	require.NoError(t, err, "domain failures must not trigger queue retries")
	assert.Equal(t, models.PlanJobStatusFailed, f.jobStore.jobs["job-1"].Status)
	assert.NotEmpty(t, f.jobStore.failures["job-1"])
}

func TestPlanServiceHandleJobSessionCeilingFailsAsCapacity(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	seedActivePlan(f)
	f.service.maxPending = 1
	f.themes.themes = []models.Theme{{ID: "theme-a", EstimatedHours: 6, Complexity: 3}}
	f.jobStore.jobs = map[string]*models.PlanJob{"job-1": {ID: "job-1", PlanID: "plan-1", Kind: models.PlanJobKindGenerate}}

	err := f.service.HandleJob(context.Background(), jobs.Job{
		Type:    models.PlanJobKindGenerate,
		Payload: planJobPayload{PlanID: "plan-1", JobID: "job-1"},
	})
	require.NoError(t, err, "the ceiling is deterministic, the queue must not retry")
	assert.Equal(t, models.PlanJobStatusFailed, f.jobStore.jobs["job-1"].Status)
	assert.Contains(t, f.jobStore.failures["job-1"], "ceiling")
	assert.Empty(t, f.sessions.bulkCalls)
}

func TestPlanServiceHandleJobConflictOnVersionBump(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	seedActivePlan(f)
	f.plans.bumpResult = false
	f.themes.themes = []models.Theme{{ID: "theme-a", EstimatedHours: 6}}
	f.jobStore.jobs = map[string]*models.PlanJob{"job-1": {ID: "job-1", PlanID: "plan-1", Kind: models.PlanJobKindGenerate}}

	err := f.service.HandleJob(context.Background(), jobs.Job{
		Type:    models.PlanJobKindGenerate,
		Payload: planJobPayload{PlanID: "plan-1", JobID: "job-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PlanJobStatusFailed, f.jobStore.jobs["job-1"].Status)
	assert.Contains(t, f.jobStore.failures["job-1"], "changed while")
}

func TestPlanServiceRebalanceRejectsArchivedPlan(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	plan := seedActivePlan(f)
	plan.Status = models.PlanStatusArchived

	_, err := f.service.Rebalance(context.Background(), "owner-1", "plan-1")
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)
}

func TestPlanServiceGetEnforcesOwnership(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	seedActivePlan(f)

	_, err := f.service.Get(context.Background(), "intruder", "plan-1")
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, appErrors.ErrForbidden.Code, typed.Code)

	_, err = f.service.Get(context.Background(), "owner-1", "missing")
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
}

func TestPlanServiceGetRecomputesBufferWarning(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	plan := seedActivePlan(f)
	now := time.Now().UTC()
	plan.StartDate = now.AddDate(0, 0, -10)
	plan.ExamDate = now.AddDate(0, 0, 10)
	plan.WeeklySchedule = allDays(1)

	// 40h of pending work against at most 10h of remaining capacity.
	for i := 0; i < 10; i++ {
		f.sessions.sessions = append(f.sessions.sessions, models.Session{
			ID: fmt.Sprintf("s-%d", i), PlanID: "plan-1", ThemeID: "theme-a",
			ScheduledDate: now.AddDate(0, 0, i), ScheduledHours: 4,
			Type: models.SessionTypeStudy, Status: models.SessionStatusPending,
		})
	}

	got, err := f.service.Get(context.Background(), "owner-1", "plan-1")
	require.NoError(t, err)
	require.NotNil(t, got.BufferWarning)
	assert.Equal(t, models.BufferWarningInsufficient, got.BufferWarning.Kind)
}

func TestPlanServiceGetJobScopedToPlan(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	seedActivePlan(f)
	f.jobStore.jobs = map[string]*models.PlanJob{"job-x": {ID: "job-x", PlanID: "other-plan"}}

	_, err := f.service.GetJob(context.Background(), "owner-1", "plan-1", "job-x")
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
}

func TestPlanServiceArchiveFreesActiveSlot(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	seedActivePlan(f)

	require.NoError(t, f.service.Archive(context.Background(), "owner-1", "plan-1"))
	assert.Equal(t, models.PlanStatusArchived, f.plans.statuses["plan-1"])
	assert.NotEmpty(t, f.cache.patterns)

	err := f.service.Archive(context.Background(), "owner-1", "plan-1")
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)
}

func TestPlanServiceStatsComputesSkipRatio(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	seedActivePlan(f)
	f.sessions.counts = []models.SessionStatusCount{
		{Status: models.SessionStatusPending, Count: 6},
		{Status: models.SessionStatusSkipped, Count: 2},
		{Status: models.SessionStatusCompleted, Count: 2},
	}

	stats, err := f.service.Stats(context.Background(), "owner-1", "plan-1")
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Total)
	assert.InDelta(t, 0.2, stats.SkipRatio, 1e-9)
}

func TestPlanServiceCreateEnqueueFailureMarksJobFailed(t *testing.T) {
	f := newPlanFixture(t)
	defer f.cleanup()
	f.themes.themes = []models.Theme{{ID: "theme-a", EstimatedHours: 4}}
	f.queue.err = errors.New("queue full")

	_, _, err := f.service.Create(context.Background(), "owner-1", validCreateRequest())
	require.Error(t, err)
	require.Len(t, f.jobStore.failures, 1)
}
