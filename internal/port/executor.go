package port

import (
	"context"

	"github.com/dbmend/dbmend/internal/domain"
)

// ActionRun is one rendered, approved command handed to an executor.
type ActionRun struct {
	ExecutionID int64
	DecisionID  int64
	Action      domain.Action
	Command     string
	Params      map[string]string
}

// Executor performs the remediation action itself. Implementations never
// decide whether to run: by the time an ActionRun reaches an executor it has
// already passed the approval gate. A failed run is reported through the
// result, not retried.
type Executor interface {
	Execute(ctx context.Context, run ActionRun) domain.ExecutionResult
}
