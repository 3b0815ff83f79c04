package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/studyplanhq/studyplan-api/internal/middleware"
	"github.com/studyplanhq/studyplan-api/internal/models"
	"github.com/studyplanhq/studyplan-api/internal/service"
	appErrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

type fakePlanSrv struct {
	plan      *models.StudyPlan
	job       *models.PlanJob
	stats     *models.PlanStats
	err       error
	lastOwner string
}

func (f *fakePlanSrv) Create(_ context.Context, ownerID string, _ service.CreatePlanRequest) (*models.StudyPlan, *models.PlanJob, error) {
	f.lastOwner = ownerID
	return f.plan, f.job, f.err
}

func (f *fakePlanSrv) Get(_ context.Context, ownerID, _ string) (*models.StudyPlan, error) {
	f.lastOwner = ownerID
	return f.plan, f.err
}

func (f *fakePlanSrv) GetJob(context.Context, string, string, string) (*models.PlanJob, error) {
	return f.job, f.err
}

func (f *fakePlanSrv) Rebalance(context.Context, string, string) (*models.PlanJob, error) {
	return f.job, f.err
}

func (f *fakePlanSrv) Archive(context.Context, string, string) error {
	return f.err
}

func (f *fakePlanSrv) Stats(context.Context, string, string) (*models.PlanStats, error) {
	return f.stats, f.err
}

func (f *fakePlanSrv) ListThemeStats(context.Context, string, string) ([]models.ThemeStat, error) {
	return nil, f.err
}

type fakeManualSrv struct {
	result *service.ManualPlanResult
	err    error
}

func (f *fakeManualSrv) Apply(context.Context, string, string, service.ApplyManualPlanRequest) (*service.ManualPlanResult, error) {
	return f.result, f.err
}

func testContext(rec *httptest.ResponseRecorder, method, target, body string) (*gin.Context, *gin.Engine) {
	c, engine := gin.CreateTestContext(rec)
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextOwnerKey, &models.OwnerClaims{UserID: "owner-1"})
	return c, engine
}

func TestPlanHandlerCreateAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakePlanSrv{
		plan: &models.StudyPlan{ID: "plan-1", OwnerID: "owner-1"},
		job:  &models.PlanJob{ID: "job-1", Status: models.PlanJobStatusQueued},
	}
	h := NewPlanHandler(srv, &fakeManualSrv{})

	rec := httptest.NewRecorder()
	c, _ := testContext(rec, http.MethodPost, "/plans",
		`{"start_date":"2025-01-01","exam_date":"2025-06-01","weekly_schedule":[0,2,2,2,2,2,0],"methodology":"ROTATION","theme_ids":["t1"]}`)

	h.Create(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "owner-1", srv.lastOwner)
	assert.Contains(t, rec.Body.String(), "job-1")
}

func TestPlanHandlerCreateRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewPlanHandler(&fakePlanSrv{}, &fakeManualSrv{})

	rec := httptest.NewRecorder()
	c, _ := testContext(rec, http.MethodPost, "/plans", `{"start_date":`)

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlanHandlerCreatePropagatesConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakePlanSrv{err: appErrors.Clone(appErrors.ErrConcurrentPlan, "")}
	h := NewPlanHandler(srv, &fakeManualSrv{})

	rec := httptest.NewRecorder()
	c, _ := testContext(rec, http.MethodPost, "/plans",
		`{"start_date":"2025-01-01","exam_date":"2025-06-01","weekly_schedule":[0,2,2,2,2,2,0],"methodology":"ROTATION","theme_ids":["t1"]}`)

	h.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONCURRENT_PLAN")
}

func TestPlanHandlerApplyManualCapacityFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manual := &fakeManualSrv{err: appErrors.Clone(appErrors.ErrCapacityExceeded, "day 2025-01-10 capacity 3.0h, requested 4.0h")}
	h := NewPlanHandler(&fakePlanSrv{}, manual)

	rec := httptest.NewRecorder()
	c, _ := testContext(rec, http.MethodPut, "/plans/plan-1/sessions",
		`{"sessions":[{"theme_id":"t1","date":"2025-01-10","hours":4,"type":"STUDY"}]}`)
	c.Params = gin.Params{{Key: "id", Value: "plan-1"}}

	h.ApplyManual(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "CAPACITY_EXCEEDED")
}

func TestPlanHandlerArchiveNoContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewPlanHandler(&fakePlanSrv{}, &fakeManualSrv{})

	rec := httptest.NewRecorder()
	c, _ := testContext(rec, http.MethodPost, "/plans/plan-1/archive", "")
	c.Params = gin.Params{{Key: "id", Value: "plan-1"}}

	h.Archive(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type fakeSessionSrv struct {
	complete *service.CompleteResult
	skip     *service.SkipResult
	session  *models.Session
	err      error
}

func (f *fakeSessionSrv) Complete(context.Context, string, string, service.CompleteSessionRequest) (*service.CompleteResult, error) {
	return f.complete, f.err
}

func (f *fakeSessionSrv) Skip(context.Context, string, string, service.SkipSessionRequest) (*service.SkipResult, error) {
	return f.skip, f.err
}

func (f *fakeSessionSrv) Start(context.Context, string, string, service.StartSessionRequest) (*models.Session, error) {
	return f.session, f.err
}

func TestSessionHandlerCompleteConflictOnClosedSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeSessionSrv{err: appErrors.Clone(appErrors.ErrSessionNotEditable, "session s1 is COMPLETED and cannot transition to COMPLETED")}
	h := NewSessionHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := testContext(rec, http.MethodPost, "/sessions/s1/complete", `{"difficulty":4}`)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	h.Complete(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "SESSION_NOT_EDITABLE")
}

func TestSessionHandlerSkipAllowsEmptyBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeSessionSrv{skip: &service.SkipResult{Session: &models.Session{ID: "s1", Status: models.SessionStatusSkipped}}}
	h := NewSessionHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := testContext(rec, http.MethodPost, "/sessions/s1/skip", "")
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	h.Skip(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SKIPPED")
}

type fakeAgendaSrv struct {
	agenda   *models.Agenda
	err      error
	lastDate time.Time
}

func (f *fakeAgendaSrv) Get(_ context.Context, _, _ string, date time.Time) (*models.Agenda, error) {
	f.lastDate = date
	return f.agenda, f.err
}

func TestAgendaHandlerParsesDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeAgendaSrv{agenda: &models.Agenda{PlanID: "plan-1", Date: "2025-02-10"}}
	h := NewAgendaHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := testContext(rec, http.MethodGet, "/plans/plan-1/agenda?date=2025-02-10", "")
	c.Params = gin.Params{{Key: "id", Value: "plan-1"}}

	h.Get(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), srv.lastDate)
}

func TestAgendaHandlerRejectsBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAgendaHandler(&fakeAgendaSrv{})

	rec := httptest.NewRecorder()
	c, _ := testContext(rec, http.MethodGet, "/plans/plan-1/agenda?date=tomorrow", "")

	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
