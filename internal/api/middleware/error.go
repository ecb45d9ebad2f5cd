package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
	"github.com/frostdev-ops/campaign-automation/pkg/utils"
)

// RecoveryMiddleware turns a handler panic into a 500 response
func RecoveryMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"panic":       fmt.Sprintf("%v", recovered),
			"stack_trace": string(debug.Stack()),
		}).Error("Panic recovered in API handler")

		utils.SendErrorWithDetails(c, http.StatusInternalServerError,
			"An internal error occurred", string(apperrors.CategoryInternal), nil)
		c.Abort()
	})
}

// ErrorResponseMiddleware renders the last error a handler attached with
// c.Error. The status code comes from the error's category.
func ErrorResponseMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status := apperrors.StatusCode(err)
		category := apperrors.CategoryOf(err)

		entry := logger.WithError(err).WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"category": category,
		})
		if status >= http.StatusInternalServerError {
			entry.Error("API request error")
		} else {
			entry.Debug("API request rejected")
		}

		if !c.Writer.Written() {
			utils.SendErrorWithDetails(c, status, publicMessage(err, status, category), string(category), nil)
		}
	}
}

// publicMessage hides storage and internal details behind a generic message
func publicMessage(err error, status int, category apperrors.Category) string {
	if status < http.StatusInternalServerError {
		return err.Error()
	}
	switch category {
	case apperrors.CategoryTransient:
		return "A dependency is temporarily unavailable. Please try again later."
	case apperrors.CategoryPersistence:
		return "A database error occurred. Please try again later."
	default:
		return "An internal error occurred"
	}
}
