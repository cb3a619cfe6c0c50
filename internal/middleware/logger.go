package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notification-service/pkg/logger"
)

// Logger writes one access log line per request. Request bodies are not
// logged since they carry recipient contact details.
func Logger(log *logger.Logger) gin.HandlerFunc {
	zl := log.Zerolog()

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		event := zl.Info()
		msg := "Request processed"
		switch {
		case status >= 500:
			event = zl.Error()
			msg = "Server error"
		case status >= 400:
			event = zl.Warn()
			msg = "Client error"
		}

		event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
