package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/notification-service/internal/handler/health"
	"github.com/jwalitptl/notification-service/internal/middleware"
	"github.com/jwalitptl/notification-service/pkg/logger"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/notifications/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func newTestRouter(t *testing.T, secret string, api Handler) *gin.Engine {
	t.Helper()
	r := NewRouter(
		middleware.NewAuthMiddleware(secret),
		health.NewHandler(okPinger{}, health.Info{Service: "notification-service", Version: "test"}),
		api,
		logger.Nop(),
		RouterConfig{Registry: prometheus.NewRegistry(), MetricsPrefix: "test_http"},
	)
	r.Setup()
	return r.Engine()
}

func get(e *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	e := newTestRouter(t, "", nil)

	w := get(e, "/api/v1/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	w = get(e, "/api/v1/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(e, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "test_http_requests_total"))
}

func TestAPIOmittedWithoutHandler(t *testing.T) {
	e := newTestRouter(t, "", nil)
	assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/notifications/ping").Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newTestRouter(t, "s3cret", pingRoutes{})

	assert.Equal(t, http.StatusUnauthorized, get(e, "/api/v1/notifications/ping").Code)
	assert.Equal(t, http.StatusOK, get(e, "/api/v1/health").Code)
}

func TestProtectedRoutesOpenWithoutSecret(t *testing.T) {
	e := newTestRouter(t, "", pingRoutes{})

	w := get(e, "/api/v1/notifications/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}
