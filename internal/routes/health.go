package routes

import (
	"net/http"

	"Poolfund/internal/infrastructure"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	if err := infrastructure.Ping(c.Request.Context(), h.DB); err != nil {
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   &ErrorBody{Code: "SERVICE_UNAVAILABLE", Message: "Database is unreachable"},
		})
		return
	}
	respondOK(c, gin.H{"status": "ok", "database": "up"})
}
