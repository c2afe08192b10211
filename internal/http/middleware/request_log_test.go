package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestRequestLoggerLevelsAndQuietRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, logs := observedLogger()

	r := gin.New()
	r.Use(RequestLogger(log, "/healthz"))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/learners/:id", func(c *gin.Context) {
		c.Set(ParticipantKey, c.Param("id"))
		c.Status(http.StatusNotFound)
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/healthz", "/learners/p1", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries: want=2 got=%d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("levels: got=%v,%v", entries[0].Level, entries[1].Level)
	}
	fields := entries[0].ContextMap()
	if fields["route"] != "/learners/:id" {
		t.Fatalf("route field: got=%v", fields["route"])
	}
	if _, ok := fields["participant_id"]; !ok {
		t.Fatalf("participant_id missing: %v", fields)
	}
}
