package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/studyplanhq/studyplan-api/internal/middleware"
	"github.com/studyplanhq/studyplan-api/internal/models"
)

func ownerFromContext(c *gin.Context) string {
	value, exists := c.Get(middleware.ContextOwnerKey)
	if !exists {
		return ""
	}
	claims, ok := value.(*models.OwnerClaims)
	if !ok {
		return ""
	}
	return claims.UserID
}
