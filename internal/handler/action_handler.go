package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/dbmend/dbmend/internal/middleware"
	"github.com/dbmend/dbmend/internal/service"
)

// ActionHandler exposes the remediation action catalog.
type ActionHandler struct {
	catalog *service.CatalogService
}

// NewActionHandler creates a new action handler.
func NewActionHandler(catalog *service.CatalogService) *ActionHandler {
	return &ActionHandler{catalog: catalog}
}

// Register sets up catalog routes.
func (h *ActionHandler) Register(api fiber.Router) {
	actions := api.Group("/actions")
	actions.Get("/", h.List)
	actions.Get("/:id", h.Get)
	actions.Patch("/:id/enabled", h.SetEnabled)
}

// List returns the full action catalog.
func (h *ActionHandler) List(c fiber.Ctx) error {
	actions, err := h.catalog.List(c.Context())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"actions": actions, "count": len(actions)})
}

// Get returns one catalog action.
func (h *ActionHandler) Get(c fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid action id"})
	}

	action, err := h.catalog.Get(c.Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(action)
}

// SetEnabled flips an action's availability for new proposals.
func (h *ActionHandler) SetEnabled(c fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid action id"})
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	if err := h.catalog.SetEnabled(c.Context(), id, body.Enabled, middleware.Actor(c)); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "enabled": body.Enabled})
}
