package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-tutor/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// ParticipantKey is the gin context key handlers set so the request log line
// carries the participant.
const ParticipantKey = "participant_id"

// RequestLogger writes one line per request. Successful requests to quiet
// routes (probes, scrapes) are not logged; failures always are.
func RequestLogger(log *logger.Logger, quietRoutes ...string) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	quiet := make(map[string]bool, len(quietRoutes))
	for _, r := range quietRoutes {
		quiet[r] = true
	}
	log = log.With("component", "http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if status < 400 && quiet[route] {
			return
		}
		if route == "" {
			route = c.Request.URL.Path
		}

		fields := append([]interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"route", route,
			"status", status,
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
		}, ctxutil.LogFields(c.Request.Context())...)
		if pid := c.GetString(ParticipantKey); pid != "" {
			fields = append(fields, "participant_id", pid)
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, "error", errs.String())
		}
		levelFor(log, status)("HTTP request", fields...)
	}
}

func levelFor(log *logger.Logger, status int) func(string, ...interface{}) {
	switch {
	case status >= 500:
		return log.Error
	case status >= 400:
		return log.Warn
	default:
		return log.Debug
	}
}
