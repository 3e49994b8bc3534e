package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/dbmend/dbmend/internal/port"
)

// StatsHandler exposes pipeline statistics and audit logs.
type StatsHandler struct {
	store port.Store
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(store port.Store) *StatsHandler {
	return &StatsHandler{store: store}
}

// Register sets up stats and audit routes.
func (h *StatsHandler) Register(api fiber.Router) {
	api.Get("/stats/pipeline", h.Pipeline)

	audit := api.Group("/audit")
	audit.Get("/logs", h.ListAuditLogs)
}

// Pipeline returns aggregate counts across the whole pipeline.
func (h *StatsHandler) Pipeline(c fiber.Ctx) error {
	stats, err := h.store.PipelineStats(c.Context())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(stats)
}

// ListAuditLogs returns audit logs with optional filtering.
func (h *StatsHandler) ListAuditLogs(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	action := c.Query("action", "")

	logs, err := h.store.ListAuditLogs(c.Context(), limit, action)
	if err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"count": len(logs),
	})
}
