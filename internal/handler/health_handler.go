package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/dbmend/dbmend/internal/port"
)

// HealthHandler reports service liveness and store connectivity.
type HealthHandler struct {
	store   port.Store
	version string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store port.Store, version string) *HealthHandler {
	return &HealthHandler{store: store, version: version}
}

// Register sets up the health route on the app root.
func (h *HealthHandler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
}

// Health pings the store and reports overall status.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	status := "ok"
	dbStatus := "ok"
	if err := h.store.Ping(c.Context()); err != nil {
		status = "degraded"
		dbStatus = err.Error()
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(fiber.Map{
		"status":   status,
		"database": dbStatus,
		"version":  h.version,
	})
}
