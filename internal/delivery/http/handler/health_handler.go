package handler

import (
	"grid-pulse/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

// HealthHandler serves the bare liveness probe. The full pipeline picture
// lives under /health/monitoring and is handled by MonitoringHandler.
type HealthHandler struct {
	appName string
	env     string
}

func NewHealthHandler(appName, env string) *HealthHandler {
	return &HealthHandler{appName: appName, env: env}
}

func (h *HealthHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/health", h.Liveness)
}

func (h *HealthHandler) Liveness(c fiber.Ctx) error {
	return response.Success(c, fiber.StatusOK, response.MessageOK, fiber.Map{
		"app": h.appName,
		"env": h.env,
	})
}
