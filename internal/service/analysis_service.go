package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// AnalysisService records AI interpretations of issues. Analyses only ever
// produce data for human review; nothing here can approve or execute.
type AnalysisService struct {
	store port.Store
}

// NewAnalysisService creates a new analysis service.
func NewAnalysisService(s port.Store) *AnalysisService {
	return &AnalysisService{store: s}
}

// Record stores one analysis against an open issue and advances the issue to
// under-analysis. Re-analysis of the same issue adds a new row; earlier
// analyses are never rewritten.
func (s *AnalysisService) Record(ctx context.Context, a *domain.Analysis) (*domain.Analysis, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", port.ErrValidation, err)
	}

	issue, err := s.store.GetIssue(ctx, a.IssueID)
	if err != nil {
		return nil, fmt.Errorf("load issue: %w", err)
	}
	if issue.Status.Terminal() {
		return nil, fmt.Errorf("%w: issue %d is %s", port.ErrValidation, issue.ID, issue.Status)
	}
	if a.RecommendedActionID != nil {
		if _, err := s.store.GetAction(ctx, *a.RecommendedActionID); err != nil {
			return nil, fmt.Errorf("recommended action: %w", err)
		}
	}

	a.Status = domain.AnalysisCompleted
	a, err = s.store.CreateAnalysis(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("create analysis: %w", err)
	}
	if err := s.store.AdvanceIssueStatus(ctx, a.IssueID, domain.IssueUnderAnalysis); err != nil {
		return nil, fmt.Errorf("advance issue: %w", err)
	}

	slog.Info("analysis recorded",
		"analysis_id", a.ID,
		"issue_id", a.IssueID,
		"confidence", a.Confidence,
		"model_version", a.ModelVersion)
	return a, nil
}

// Get returns one analysis by id.
func (s *AnalysisService) Get(ctx context.Context, id int64) (*domain.Analysis, error) {
	return s.store.GetAnalysis(ctx, id)
}

// ListByIssue returns all analyses for an issue, newest first.
func (s *AnalysisService) ListByIssue(ctx context.Context, issueID int64) ([]domain.Analysis, error) {
	return s.store.ListAnalysesByIssue(ctx, issueID)
}
