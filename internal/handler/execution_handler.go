package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/dbmend/dbmend/internal/service"
)

// ExecutionHandler handles execution enqueueing and status reads.
type ExecutionHandler struct {
	executions *service.ExecutionService
}

// NewExecutionHandler creates a new execution handler.
func NewExecutionHandler(executions *service.ExecutionService) *ExecutionHandler {
	return &ExecutionHandler{executions: executions}
}

// Register sets up execution routes.
func (h *ExecutionHandler) Register(api fiber.Router) {
	executions := api.Group("/executions")
	executions.Post("/", h.Start)
	executions.Get("/:id", h.Get)
}

// Start enqueues the execution of an approved decision's action. The response
// carries the queued row; callers poll Get until it turns terminal.
func (h *ExecutionHandler) Start(c fiber.Ctx) error {
	var body struct {
		ApprovalID int64             `json:"approval_id"`
		Params     map[string]string `json:"params"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	ex, err := h.executions.Start(c.Context(), body.ApprovalID, body.Params)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(ex)
}

// Get returns one execution with its current status and outcome.
func (h *ExecutionHandler) Get(c fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid execution id"})
	}

	ex, err := h.executions.Get(c.Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(ex)
}
