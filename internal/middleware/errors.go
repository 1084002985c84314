package middleware

import (
	appErrors "Poolfund/internal/errors"

	"github.com/gin-gonic/gin"
)

// abortWithError writes the error envelope and stops the chain.
func abortWithError(c *gin.Context, err *appErrors.AppError) {
	body := gin.H{
		"code":    err.Code,
		"message": err.Message,
	}
	if len(err.Details) > 0 {
		body["details"] = err.Details
	}
	c.AbortWithStatusJSON(err.StatusCode, gin.H{
		"success": false,
		"error":   body,
	})
}
