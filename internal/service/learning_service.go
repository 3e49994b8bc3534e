package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// LearningService records outcome assessments for offline model training. It
// holds the narrowed port.LearningStore, so the only upstream write it can
// reach is the forward-only resolved mark on the issue; improved models earn
// better proposal acceptance, never execution rights.
type LearningService struct {
	store port.LearningStore
}

// NewLearningService creates a new learning service.
func NewLearningService(s port.LearningStore) *LearningService {
	return &LearningService{store: s}
}

// Record stores one learning record for an issue. When the record references
// an execution, the execution must be terminal and must belong to the same
// issue; confidence-at-decision is filled in from the execution's decision
// when the caller did not supply it. A resolved record advances the issue to
// resolved.
func (s *LearningService) Record(ctx context.Context, r *domain.LearningRecord) (*domain.LearningRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", port.ErrValidation, err)
	}

	issue, err := s.store.GetIssue(ctx, r.IssueID)
	if err != nil {
		return nil, fmt.Errorf("load issue: %w", err)
	}

	if r.ExecutionID != nil {
		ex, err := s.store.GetExecution(ctx, *r.ExecutionID)
		if err != nil {
			return nil, fmt.Errorf("load execution: %w", err)
		}
		if ex.IssueID != issue.ID {
			return nil, fmt.Errorf("%w: execution %d belongs to issue %d", port.ErrValidation, ex.ID, ex.IssueID)
		}
		if !ex.Status.Terminal() {
			return nil, fmt.Errorf("%w: execution %d is still %s", port.ErrValidation, ex.ID, ex.Status)
		}
		if r.ConfidenceAtDecision == nil {
			d, err := s.store.GetDecision(ctx, ex.DecisionID)
			if err != nil {
				return nil, fmt.Errorf("load decision: %w", err)
			}
			r.ConfidenceAtDecision = &d.Confidence
		}
	}
	if r.TimeToResolutionMS == 0 {
		r.TimeToResolutionMS = time.Since(issue.FirstDetectedAt).Milliseconds()
	}

	r, err = s.store.CreateLearningRecord(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("create learning record: %w", err)
	}
	if r.Resolved {
		if err := s.store.AdvanceIssueStatus(ctx, issue.ID, domain.IssueResolved); err != nil {
			return nil, fmt.Errorf("advance issue: %w", err)
		}
	}

	slog.Info("learning recorded",
		"record_id", r.ID,
		"issue_id", r.IssueID,
		"resolved", r.Resolved,
		"side_effects", r.SideEffects)
	return r, nil
}

// List returns learning records matching the filter, newest first.
func (s *LearningService) List(ctx context.Context, f port.LearningFilter) ([]domain.LearningRecord, error) {
	return s.store.ListLearningRecords(ctx, f)
}
