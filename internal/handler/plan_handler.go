package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyplanhq/studyplan-api/internal/models"
	"github.com/studyplanhq/studyplan-api/internal/service"
	appErrors "github.com/studyplanhq/studyplan-api/pkg/errors"
	"github.com/studyplanhq/studyplan-api/pkg/response"
)

type planService interface {
	Create(ctx context.Context, ownerID string, req service.CreatePlanRequest) (*models.StudyPlan, *models.PlanJob, error)
	Get(ctx context.Context, ownerID, planID string) (*models.StudyPlan, error)
	GetJob(ctx context.Context, ownerID, planID, jobID string) (*models.PlanJob, error)
	Rebalance(ctx context.Context, ownerID, planID string) (*models.PlanJob, error)
	Archive(ctx context.Context, ownerID, planID string) error
	Stats(ctx context.Context, ownerID, planID string) (*models.PlanStats, error)
	ListThemeStats(ctx context.Context, ownerID, planID string) ([]models.ThemeStat, error)
}

type manualPlanService interface {
	Apply(ctx context.Context, ownerID, planID string, req service.ApplyManualPlanRequest) (*service.ManualPlanResult, error)
}

// PlanHandler wires plan services to HTTP routes.
type PlanHandler struct {
	plans  planService
	manual manualPlanService
}

// NewPlanHandler constructs a new PlanHandler.
func NewPlanHandler(plans planService, manual manualPlanService) *PlanHandler {
	return &PlanHandler{plans: plans, manual: manual}
}

// Create godoc
// @Summary Create a study plan
// @Description Persists the plan and queues asynchronous session generation. Poll the returned job for progress.
// @Tags Plans
// @Accept json
// @Produce json
// @Param payload body service.CreatePlanRequest true "Plan payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /plans [post]
func (h *PlanHandler) Create(c *gin.Context) {
	var req service.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid plan payload"))
		return
	}
	plan, job, err := h.plans.Create(c.Request.Context(), ownerFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"plan": plan, "job": job}, nil)
}

// Get godoc
// @Summary Get plan detail
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /plans/{id} [get]
func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.plans.Get(c.Request.Context(), ownerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// GetJob godoc
// @Summary Poll a generation job
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Param jobId path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /plans/{id}/jobs/{jobId} [get]
func (h *PlanHandler) GetJob(c *gin.Context) {
	job, err := h.plans.GetJob(c.Request.Context(), ownerFromContext(c), c.Param("id"), c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Rebalance godoc
// @Summary Rebalance a plan
// @Description Regenerates all PENDING sessions from today onward. Completed and skipped history is preserved.
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /plans/{id}/rebalance [post]
func (h *PlanHandler) Rebalance(c *gin.Context) {
	job, err := h.plans.Rebalance(c.Request.Context(), ownerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// ApplyManual godoc
// @Summary Apply a manual plan
// @Description Replaces the plan's PENDING sessions with a hand-built calendar. History always survives.
// @Tags Plans
// @Accept json
// @Produce json
// @Param id path string true "Plan ID"
// @Param payload body service.ApplyManualPlanRequest true "Manual calendar"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /plans/{id}/sessions [put]
func (h *PlanHandler) ApplyManual(c *gin.Context) {
	var req service.ApplyManualPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid manual plan payload"))
		return
	}
	result, err := h.manual.Apply(c.Request.Context(), ownerFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Archive godoc
// @Summary Archive a plan
// @Description Retires the plan and frees the owner's single ACTIVE slot.
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 204
// @Security BearerAuth
// @Router /plans/{id}/archive [post]
func (h *PlanHandler) Archive(c *gin.Context) {
	if err := h.plans.Archive(c.Request.Context(), ownerFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Plan session statistics
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /plans/{id}/stats [get]
func (h *PlanHandler) Stats(c *gin.Context) {
	stats, err := h.plans.Stats(c.Request.Context(), ownerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// ThemeStats godoc
// @Summary Spaced-repetition state per theme
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /plans/{id}/theme-stats [get]
func (h *PlanHandler) ThemeStats(c *gin.Context) {
	stats, err := h.plans.ListThemeStats(c.Request.Context(), ownerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
