package routes

import (
	"Poolfund/internal/domain/distribution"
	"Poolfund/internal/domain/investor"
	"Poolfund/internal/domain/pool"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/logger"
	"Poolfund/internal/middleware"
	"Poolfund/internal/pkg"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

type Handler struct {
	PoolService         *pool.Service
	InvestorService     *investor.Service
	DistributionService *distribution.Service
	JwtService          *middleware.JwtService
	DB                  *gorm.DB
}

func (h *Handler) GetUserIDFromContext(c *gin.Context) (ulid.ULID, error) {
	userIDStr, exists := c.Get("user_id")
	if !exists {
		return ulid.ULID{}, appErrors.ErrUnauthorized
	}

	raw, ok := userIDStr.(string)
	if !ok {
		return ulid.ULID{}, appErrors.ErrUnauthorized
	}
	userID, err := pkg.ParseID(raw)
	if err != nil {
		return ulid.ULID{}, appErrors.ErrUnauthorized.WithError(err)
	}

	return userID, nil
}

// parseIDParam reads a ULID path parameter.
func (h *Handler) parseIDParam(c *gin.Context, name string) (ulid.ULID, error) {
	id, err := pkg.ParseID(c.Param(name))
	if err != nil {
		return ulid.ULID{}, appErrors.NewValidationError(name, name+" must be a valid ULID").WithError(err)
	}
	return id, nil
}

func (h *Handler) parsePagination(page, limit int) *pkg.PaginationParams {
	return pkg.NormalizePagination(&pkg.PaginationParams{Page: page, Limit: limit})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	event := logger.Warn()
	if appErr.StatusCode >= 500 {
		event = logger.Error()
	}
	event = event.Str("code", appErr.Code).Str("path", c.FullPath())
	if appErr.Err != nil {
		event = event.Err(appErr.Err)
	}
	event.Msg("request_error")

	c.JSON(appErr.StatusCode, Response{
		Success: false,
		Error:   newErrorBody(appErr),
	})
}

// bindError turns a binding failure into a VALIDATION_ERROR with field details.
func (h *Handler) bindError(c *gin.Context, err error) {
	h.respondError(c, appErrors.ParseValidationErrors(err))
}
