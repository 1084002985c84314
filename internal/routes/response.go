package routes

import (
	"net/http"

	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/pkg"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   *ErrorBody    `json:"error,omitempty"`
	Meta    *pkg.PageMeta `json:"meta,omitempty"`
}

type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func newErrorBody(err *appErrors.AppError) *ErrorBody {
	body := &ErrorBody{Code: err.Code, Message: err.Message}
	if len(err.Details) > 0 {
		body.Details = err.Details
	}
	return body
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func respondPage[T any](c *gin.Context, items []*T, pagination *pkg.PaginationParams, total int64) {
	if items == nil {
		items = []*T{}
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    items,
		Meta:    pkg.NewPageMeta(pagination, total),
	})
}
