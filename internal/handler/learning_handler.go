package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
	"github.com/dbmend/dbmend/internal/service"
)

// LearningHandler handles learning record writes and reads.
type LearningHandler struct {
	learning *service.LearningService
}

// NewLearningHandler creates a new learning handler.
func NewLearningHandler(learning *service.LearningService) *LearningHandler {
	return &LearningHandler{learning: learning}
}

// Register sets up learning routes.
func (h *LearningHandler) Register(api fiber.Router) {
	learning := api.Group("/learning")
	learning.Post("/", h.Record)
	learning.Get("/", h.List)
}

// Record stores one outcome assessment for an issue.
func (h *LearningHandler) Record(c fiber.Ctx) error {
	var body struct {
		IssueID            int64    `json:"issue_id"`
		ExecutionID        *int64   `json:"execution_id"`
		Resolved           bool     `json:"resolved"`
		ImprovementPercent *float64 `json:"improvement_percent"`
		SideEffects        bool     `json:"side_effects"`
		Notes              string   `json:"notes"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	r := &domain.LearningRecord{
		IssueID:            body.IssueID,
		ExecutionID:        body.ExecutionID,
		Resolved:           body.Resolved,
		ImprovementPercent: body.ImprovementPercent,
		SideEffects:        body.SideEffects,
		Notes:              body.Notes,
	}
	r, err := h.learning.Record(c.Context(), r)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

// List returns learning records filtered by time window, category, and
// resolution flag.
func (h *LearningHandler) List(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	f := port.LearningFilter{
		Category: c.Query("category", ""),
		Limit:    limit,
	}
	if since := c.Query("since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "since must be RFC3339"})
		}
		f.Since = &t
	}
	if resolved := c.Query("resolved", ""); resolved != "" {
		v, err := strconv.ParseBool(resolved)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "resolved must be a boolean"})
		}
		f.Resolved = &v
	}

	records, err := h.learning.List(c.Context(), f)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"records": records, "count": len(records)})
}
