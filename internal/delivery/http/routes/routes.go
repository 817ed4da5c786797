package routes

import (
	"grid-pulse/internal/delivery/http/handler"
	"grid-pulse/internal/delivery/http/middleware"
	"grid-pulse/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type Registry struct {
	health     *handler.HealthHandler
	monitoring *handler.MonitoringHandler
	wsHandler  *ws.Handler
	auth       *middleware.AuthMiddleware
}

func NewRegistry(health *handler.HealthHandler, monitoring *handler.MonitoringHandler, wsHandler *ws.Handler, auth *middleware.AuthMiddleware) *Registry {
	return &Registry{health: health, monitoring: monitoring, wsHandler: wsHandler, auth: auth}
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	r.health.RegisterRoutes(app)

	monitoring := app.Group("/health/monitoring", r.auth.Middleware())
	r.monitoring.RegisterRoutes(monitoring)

	if r.wsHandler != nil {
		app.Get("/ws/monitoring", r.wsHandler.HandleMonitoringWS)
	}
}
