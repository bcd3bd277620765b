package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		apiErr := apperrors.NewAPIError(err)
		if apiErr.Status >= 500 {
			log.Error("Request failed", "error", err, "method", c.Request.Method, "path", c.FullPath())
			apiErr.Message = apperrors.Public(err)
		}
		c.JSON(apiErr.Status, apiErr)
	}
}
