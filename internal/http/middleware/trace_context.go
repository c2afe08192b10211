package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/neurobridge-tutor/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// AttachTraceContext stamps every request with a trace id and a request id
// and echoes both as response headers. An active otel span's trace id wins
// over X-Trace-Id, so register it after otelgin.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var spanTraceID string
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			spanTraceID = sc.TraceID().String()
		}
		td := &ctxutil.TraceData{
			TraceID:   firstNonEmpty(spanTraceID, c.GetHeader(headerTraceID)),
			RequestID: firstNonEmpty(c.GetHeader(headerRequestID)),
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(ctx, td))
		c.Writer.Header().Set(headerTraceID, td.TraceID)
		c.Writer.Header().Set(headerRequestID, td.RequestID)
		c.Next()
	}
}

// firstNonEmpty returns the first non-blank value, or a fresh uuid.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return uuid.NewString()
}
