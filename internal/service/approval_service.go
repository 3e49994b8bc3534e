package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/metrics"
	"github.com/dbmend/dbmend/internal/port"
)

// ApprovalService records human verdicts on pending decisions. This is the
// gate between proposal and execution; every execution in the system traces
// back to exactly one approval written here.
type ApprovalService struct {
	store port.Store
}

// NewApprovalService creates a new approval service.
func NewApprovalService(s port.Store) *ApprovalService {
	return &ApprovalService{store: s}
}

// Review records one verdict on a pending decision. A decision that already
// left pending yields ErrAlreadyReviewed; the loser of a concurrent race on
// the same decision yields ErrConflict. The issue advances to approved or
// declined with the verdict; a cancelled decision leaves the issue where it
// is so a new decision can be proposed later.
func (s *ApprovalService) Review(ctx context.Context, decisionID int64, approverID string, verdict domain.Verdict, reasonCode, notes string) (*domain.Approval, error) {
	ap := &domain.Approval{
		DecisionID: decisionID,
		ApproverID: approverID,
		Verdict:    verdict,
		ReasonCode: reasonCode,
		Notes:      notes,
	}
	if err := ap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", port.ErrValidation, err)
	}

	ap, err := s.store.CreateApproval(ctx, ap)
	if err != nil {
		return nil, err
	}

	d, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, fmt.Errorf("load decision: %w", err)
	}
	switch verdict {
	case domain.VerdictApproved:
		err = s.store.AdvanceIssueStatus(ctx, d.IssueID, domain.IssueApproved)
	case domain.VerdictDeclined:
		err = s.store.AdvanceIssueStatus(ctx, d.IssueID, domain.IssueDeclined)
	}
	if err != nil {
		return nil, fmt.Errorf("advance issue: %w", err)
	}

	metrics.CountDecision(string(verdict.DecisionStatus()))
	slog.Info("decision reviewed",
		"approval_id", ap.ID,
		"decision_id", decisionID,
		"approver_id", approverID,
		"verdict", verdict)
	return ap, nil
}

// Get returns one approval by id.
func (s *ApprovalService) Get(ctx context.Context, id int64) (*domain.Approval, error) {
	return s.store.GetApproval(ctx, id)
}
