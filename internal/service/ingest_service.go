package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/metrics"
	"github.com/dbmend/dbmend/internal/port"
)

// IngestService accepts detection events from monitoring sources and folds
// them into open issues.
type IngestService struct {
	store port.Store
}

// NewIngestService creates a new ingestion service.
func NewIngestService(s port.Store) *IngestService {
	return &IngestService{store: s}
}

// Submit validates and records one detection event. The matching open issue
// is created or refreshed in the same transaction; the returned issue is the
// row the event was folded into.
func (s *IngestService) Submit(ctx context.Context, ev *domain.DetectionEvent) (*domain.DetectionEvent, *domain.Issue, error) {
	if err := ev.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", port.ErrValidation, err)
	}

	ev, issue, err := s.store.SubmitDetection(ctx, ev)
	if err != nil {
		return nil, nil, fmt.Errorf("submit detection: %w", err)
	}

	metrics.CountDetection(ev.Category, string(ev.Severity))
	slog.Info("detection ingested",
		"event_id", ev.ID,
		"issue_id", issue.ID,
		"category", ev.Category,
		"resource", ev.ResourceName,
		"occurrences", issue.OccurrenceCount)
	return ev, issue, nil
}

// GetIssue returns one issue by id.
func (s *IngestService) GetIssue(ctx context.Context, id int64) (*domain.Issue, error) {
	return s.store.GetIssue(ctx, id)
}

// ListIssues returns issues matching the filter, newest first.
func (s *IngestService) ListIssues(ctx context.Context, f port.IssueFilter) ([]domain.Issue, error) {
	return s.store.ListIssues(ctx, f)
}
