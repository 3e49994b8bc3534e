package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
	"github.com/dbmend/dbmend/internal/service"
)

// DetectionHandler handles detection ingestion and issue reads.
type DetectionHandler struct {
	ingest   *service.IngestService
	analysis *service.AnalysisService
}

// NewDetectionHandler creates a new detection handler.
func NewDetectionHandler(ingest *service.IngestService, analysis *service.AnalysisService) *DetectionHandler {
	return &DetectionHandler{ingest: ingest, analysis: analysis}
}

// Register sets up detection and issue routes.
func (h *DetectionHandler) Register(api fiber.Router) {
	api.Post("/detections", h.Submit)

	issues := api.Group("/issues")
	issues.Get("/", h.ListIssues)
	issues.Get("/:id", h.GetIssue)
	issues.Get("/:id/analyses", h.ListIssueAnalyses)
	issues.Post("/:id/analyses", h.RecordAnalysis)
}

// Submit ingests one detection event and returns the issue it folded into.
func (h *DetectionHandler) Submit(c fiber.Ctx) error {
	var body struct {
		Source       string  `json:"source"`
		ResourceType string  `json:"resource_type"`
		ResourceName string  `json:"resource_name"`
		Category     string  `json:"category"`
		MetricName   string  `json:"metric_name"`
		MetricValue  float64 `json:"metric_value"`
		MetricUnit   string  `json:"metric_unit"`
		Severity     string  `json:"severity"`
		Context      string  `json:"context"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	ev := &domain.DetectionEvent{
		Source:       body.Source,
		ResourceType: body.ResourceType,
		ResourceName: body.ResourceName,
		Category:     body.Category,
		MetricName:   body.MetricName,
		MetricValue:  body.MetricValue,
		MetricUnit:   body.MetricUnit,
		Severity:     domain.Severity(body.Severity),
		Context:      body.Context,
	}
	ev, issue, err := h.ingest.Submit(c.Context(), ev)
	if err != nil {
		return respondErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"event": ev, "issue": issue})
}

// ListIssues returns issues filtered by status and category.
func (h *DetectionHandler) ListIssues(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	f := port.IssueFilter{
		Status:   c.Query("status", ""),
		Category: c.Query("category", ""),
		Limit:    limit,
	}

	issues, err := h.ingest.ListIssues(c.Context(), f)
	if err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{"issues": issues, "count": len(issues)})
}

// GetIssue returns one issue.
func (h *DetectionHandler) GetIssue(c fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid issue id"})
	}

	issue, err := h.ingest.GetIssue(c.Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(issue)
}

// ListIssueAnalyses returns all analyses recorded for an issue.
func (h *DetectionHandler) ListIssueAnalyses(c fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid issue id"})
	}

	analyses, err := h.analysis.ListByIssue(c.Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"analyses": analyses, "count": len(analyses)})
}

// RecordAnalysis attaches one analysis to an issue.
func (h *DetectionHandler) RecordAnalysis(c fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid issue id"})
	}

	var body struct {
		Hypothesis          string   `json:"hypothesis"`
		Confidence          float64  `json:"confidence"`
		Factors             []string `json:"factors"`
		RecommendedActionID *int64   `json:"recommended_action_id"`
		ModelVersion        string   `json:"model_version"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	a := &domain.Analysis{
		IssueID:             id,
		Hypothesis:          body.Hypothesis,
		Confidence:          body.Confidence,
		Factors:             body.Factors,
		RecommendedActionID: body.RecommendedActionID,
		ModelVersion:        body.ModelVersion,
	}
	a, err := h.analysis.Record(c.Context(), a)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}
