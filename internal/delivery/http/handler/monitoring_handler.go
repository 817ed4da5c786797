package handler

import (
	"errors"
	"log"
	"strconv"
	"time"

	"grid-pulse/internal/delivery/http/dto"
	"grid-pulse/internal/delivery/http/middleware"
	"grid-pulse/internal/pkg/response"
	"grid-pulse/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type MonitoringHandler struct {
	status  *usecase.StatusCache
	history *usecase.HistoryUsecase
	log     *log.Logger
}

func NewMonitoringHandler(status *usecase.StatusCache, history *usecase.HistoryUsecase, logger *log.Logger) *MonitoringHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &MonitoringHandler{status: status, history: history, log: logger}
}

func (h *MonitoringHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/status", h.GetStatus)
	r.Get("/history", h.GetHistory)
}

// GetStatus serves the current snapshot through the 30-second cache; repeated
// dashboard polls within a bucket cost one aggregation pass.
func (h *MonitoringHandler) GetStatus(c fiber.Ctx) error {
	start := time.Now()
	snap := h.status.Current(c.Context())

	h.log.Printf("http_request method=%s path=%s status=ok duration=%s overall=%s",
		c.Method(), c.Path(), time.Since(start), snap.OverallStatus)
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewMonitoringStatusResponse(*snap))
}

func (h *MonitoringHandler) GetHistory(c fiber.Ctx) error {
	hours, err := parseQueryIntStrict(c, "hours", 24)
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "invalid hours parameter", nil, err)
	}
	metric := c.Query("metric")

	result, err := h.history.GetHistory(c.Context(), hours, metric)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidInput) {
			return middleware.NewAppError(fiber.StatusBadRequest, err.Error(), nil, err)
		}
		h.log.Printf("http_request method=%s path=%s status=error err=%v", c.Method(), c.Path(), err)
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}

	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewMonitoringHistoryResponse(result))
}

func parseQueryIntStrict(c fiber.Ctx, key string, defaultVal int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return v, nil
}
