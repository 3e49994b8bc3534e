package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/middleware"
	"github.com/dbmend/dbmend/internal/service"
)

// DecisionHandler handles decision proposals and human review.
type DecisionHandler struct {
	decisions *service.DecisionService
	approvals *service.ApprovalService
}

// NewDecisionHandler creates a new decision handler.
func NewDecisionHandler(decisions *service.DecisionService, approvals *service.ApprovalService) *DecisionHandler {
	return &DecisionHandler{decisions: decisions, approvals: approvals}
}

// Register sets up decision and approval routes.
func (h *DecisionHandler) Register(api fiber.Router) {
	decisions := api.Group("/decisions")
	decisions.Post("/", h.Propose)
	decisions.Get("/", h.List)
	decisions.Post("/advise", h.Advise)
	decisions.Get("/:id", h.Get)
	decisions.Post("/:id/review", h.Review)

	api.Get("/approvals/:id", h.GetApproval)
}

// Propose records a pending decision binding an analysis to a catalog action.
func (h *DecisionHandler) Propose(c fiber.Ctx) error {
	var body struct {
		AnalysisID int64  `json:"analysis_id"`
		ActionID   int64  `json:"action_id"`
		Rationale  string `json:"rationale"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	d, err := h.decisions.Propose(c.Context(), body.AnalysisID, body.ActionID, body.Rationale, middleware.Actor(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

// List returns decisions, optionally filtered to one status.
func (h *DecisionHandler) List(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	decisions, err := h.decisions.List(c.Context(), c.Query("status", ""), limit)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"decisions": decisions, "count": len(decisions)})
}

// Advise runs one rulebook pass over analyses without a decision yet.
func (h *DecisionHandler) Advise(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	advice, err := h.decisions.Advise(c.Context(), limit)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"advice": advice, "count": len(advice)})
}

// Get returns one decision.
func (h *DecisionHandler) Get(c fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid decision id"})
	}

	d, err := h.decisions.Get(c.Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(d)
}

// Review records the human verdict on a pending decision.
func (h *DecisionHandler) Review(c fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid decision id"})
	}

	var body struct {
		Verdict    string `json:"verdict"`
		ReasonCode string `json:"reason_code"`
		Notes      string `json:"notes"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	ap, err := h.approvals.Review(c.Context(), id, middleware.Actor(c), domain.Verdict(body.Verdict), body.ReasonCode, body.Notes)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ap)
}

// GetApproval returns one approval.
func (h *DecisionHandler) GetApproval(c fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid approval id"})
	}

	ap, err := h.approvals.Get(c.Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(ap)
}
