package middleware

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggingMiddleware logs one structured line per request. Probe and scrape
// paths are logged at debug.
func LoggingMiddleware(logger *logrus.Logger, quietPaths ...string) gin.HandlerFunc {
	quiet := make(map[string]bool, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = true
	}

	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output: io.Discard,
		Formatter: func(param gin.LogFormatterParams) string {
			entry := logger.WithFields(logrus.Fields{
				"client_ip":   param.ClientIP,
				"method":      param.Method,
				"path":        param.Path,
				"status_code": param.StatusCode,
				"latency":     param.Latency,
				"user_agent":  param.Request.UserAgent(),
			})
			if param.ErrorMessage != "" {
				entry = entry.WithField("error_message", param.ErrorMessage)
			}

			if quiet[param.Path] {
				entry.Debug("HTTP Request")
			} else {
				entry.Info("HTTP Request")
			}
			return ""
		},
	})
}
