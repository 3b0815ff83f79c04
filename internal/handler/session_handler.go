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

type sessionService interface {
	Complete(ctx context.Context, ownerID, sessionID string, req service.CompleteSessionRequest) (*service.CompleteResult, error)
	Skip(ctx context.Context, ownerID, sessionID string, req service.SkipSessionRequest) (*service.SkipResult, error)
	Start(ctx context.Context, ownerID, sessionID string, req service.StartSessionRequest) (*models.Session, error)
}

// SessionHandler wires the session lifecycle to HTTP routes.
type SessionHandler struct {
	sessions sessionService
}

// NewSessionHandler constructs a new SessionHandler.
func NewSessionHandler(sessions sessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Complete godoc
// @Summary Complete a session
// @Description Closes the session, updates the theme's spaced-repetition state and books the next review slot.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.CompleteSessionRequest true "Completion payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id}/complete [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	var req service.CompleteSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid completion payload"))
		return
	}
	result, err := h.sessions.Complete(c.Request.Context(), ownerFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Skip godoc
// @Summary Skip a session
// @Description Marks the session as missed and books the earliest replacement slot. Crossing the skip ratio queues a full rebalance.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.SkipSessionRequest false "Skip payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id}/skip [post]
func (h *SessionHandler) Skip(c *gin.Context) {
	var req service.SkipSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid skip payload"))
			return
		}
	}
	result, err := h.sessions.Skip(c.Request.Context(), ownerFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Start godoc
// @Summary Start a session
// @Description Moves the session into IN_PROGRESS, optionally recording hours already spent.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.StartSessionRequest false "Partial progress payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id}/start [post]
func (h *SessionHandler) Start(c *gin.Context) {
	var req service.StartSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid start payload"))
			return
		}
	}
	session, err := h.sessions.Start(c.Request.Context(), ownerFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}
