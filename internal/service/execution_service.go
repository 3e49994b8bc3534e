package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// ExecutionService enqueues the run of approved decisions. The actual
// execution happens asynchronously in the worker pool; callers poll the
// execution until it reaches a terminal status.
type ExecutionService struct {
	store port.Store
}

// NewExecutionService creates a new execution service.
func NewExecutionService(s port.Store) *ExecutionService {
	return &ExecutionService{store: s}
}

// Start enqueues the execution of an approved decision's action. Params are
// screened for smuggled statements and checked against the action's declared
// parameter set before anything is written; the store then enforces
// atomically that the approval's verdict is approved and that no execution
// exists for it yet, so a duplicate start yields ErrConflict rather than a
// second run.
func (s *ExecutionService) Start(ctx context.Context, approvalID int64, params map[string]string) (*domain.Execution, error) {
	if err := domain.ScreenParams(params); err != nil {
		return nil, fmt.Errorf("%w: %s", port.ErrPolicyViolation, err)
	}

	ap, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, fmt.Errorf("load approval: %w", err)
	}
	d, err := s.store.GetDecision(ctx, ap.DecisionID)
	if err != nil {
		return nil, fmt.Errorf("load decision: %w", err)
	}
	action, err := s.store.GetAction(ctx, d.ActionID)
	if err != nil {
		return nil, fmt.Errorf("load action: %w", err)
	}
	if _, err := action.RenderCommand(params); err != nil {
		return nil, fmt.Errorf("%w: %s", port.ErrValidation, err)
	}

	ex, err := s.store.CreateExecution(ctx, approvalID, params)
	if err != nil {
		return nil, err
	}

	slog.Info("execution queued",
		"execution_id", ex.ID,
		"approval_id", approvalID,
		"decision_id", ex.DecisionID,
		"action", action.Name)
	return ex, nil
}

// Get returns one execution by id, including its current status and outcome.
func (s *ExecutionService) Get(ctx context.Context, id int64) (*domain.Execution, error) {
	return s.store.GetExecution(ctx, id)
}
