package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerRecordsRequests(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/api/v1/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "request", entry.Message)
	fields := entry.ContextMap()
	require.Equal(t, "GET", fields["method"])
	require.Equal(t, "/api/v1/ping", fields["path"])
	require.EqualValues(t, http.StatusOK, fields["status"])
}

func TestLoggerSkipsSocketIOPolling(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/socket.io/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/socket.io/?EIO=4&transport=polling", nil))

	require.Zero(t, logs.Len())
}
