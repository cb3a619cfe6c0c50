package app

import (
	"golang.org/x/time/rate"

	"github.com/jwalitptl/notification-service/internal/handler/health"
	notificationHandler "github.com/jwalitptl/notification-service/internal/handler/notification"
	"github.com/jwalitptl/notification-service/internal/middleware"
	"github.com/jwalitptl/notification-service/internal/router"
)

// Router builds the HTTP surface. Without the operator API only health
// and metrics routes are mounted.
func (a *App) Router(withAPI bool) *router.Router {
	cfg := a.Config

	var notifications router.Handler
	if withAPI {
		notifications = notificationHandler.NewHandler(a.Service, a.Logger)
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(cfg.JWT.Secret),
		health.NewHandler(a.Store, health.Info{Service: cfg.Service.Name, Version: cfg.Service.Version}),
		notifications,
		a.Logger,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RequestTimeout:   cfg.Server.WriteTimeout,
			MetricsPrefix:    "notification_http",
			Registry:         a.Registry,
		},
	)
	r.Setup()
	return r
}
