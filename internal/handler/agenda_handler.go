package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studyplanhq/studyplan-api/internal/models"
	appErrors "github.com/studyplanhq/studyplan-api/pkg/errors"
	"github.com/studyplanhq/studyplan-api/pkg/response"
)

type agendaService interface {
	Get(ctx context.Context, ownerID, planID string, date time.Time) (*models.Agenda, error)
}

// AgendaHandler serves the daily agenda view.
type AgendaHandler struct {
	agenda agendaService
}

// NewAgendaHandler constructs a new AgendaHandler.
func NewAgendaHandler(agenda agendaService) *AgendaHandler {
	return &AgendaHandler{agenda: agenda}
}

// Get godoc
// @Summary Daily agenda
// @Description Returns the sessions of one calendar date plus capacity accounting and recommendations. Defaults to today.
// @Tags Agenda
// @Produce json
// @Param id path string true "Plan ID"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /plans/{id}/agenda [get]
func (h *AgendaHandler) Get(c *gin.Context) {
	date := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	agenda, err := h.agenda.Get(c.Request.Context(), ownerFromContext(c), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, agenda, nil)
}
