package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/metrics"
	"github.com/dbmend/dbmend/internal/port"
)

// Runner drains the execution queue with a pool of workers. Claims go through
// a conditional update in the store, so multiple runner processes can share
// one queue without double-running anything. A failed execution is recorded
// as terminal and never retried.
type Runner struct {
	store    port.Store
	executor port.Executor
	workers  int
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a runner with the given pool size and poll interval.
func NewRunner(store port.Store, executor port.Executor, workers int, interval time.Duration, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, executor: executor, workers: workers, interval: interval, logger: logger}
}

// Start runs the pool until ctx is cancelled. An execution claimed before
// cancellation runs to completion and its result is recorded; only idle
// workers exit immediately.
func (r *Runner) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		worker := i
		g.Go(func() error {
			return r.loop(ctx, worker)
		})
	}
	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, worker int) error {
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		ex, err := r.store.ClaimQueuedExecution(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("claim failed", "worker", worker, "error", err)
		}
		if ex != nil {
			r.run(ctx, ex)
			continue
		}

		timer.Reset(r.interval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// run carries one claimed execution to a terminal state. The executor gets a
// context detached from the pool's so shutdown never abandons an in-progress
// row; the recorded result is whatever the action produced.
func (r *Runner) run(ctx context.Context, ex *domain.Execution) {
	runCtx := context.WithoutCancel(ctx)

	if err := r.store.AdvanceIssueStatus(runCtx, ex.IssueID, domain.IssueExecuting); err != nil {
		r.logger.Error("advance issue failed", "execution_id", ex.ID, "error", err)
	}

	res := r.perform(runCtx, ex)

	if err := r.store.FinishExecution(runCtx, ex.ID, res); err != nil {
		r.logger.Error("finish execution failed", "execution_id", ex.ID, "error", err)
		return
	}
	metrics.ObserveExecution(string(res.Outcome), res.Duration)

	if res.Outcome == domain.OutcomeSuccess {
		if err := r.store.AdvanceIssueStatus(runCtx, ex.IssueID, domain.IssueResolved); err != nil {
			r.logger.Error("advance issue failed", "execution_id", ex.ID, "error", err)
		}
		r.logger.Info("execution completed",
			"execution_id", ex.ID, "issue_id", ex.IssueID, "affected", res.AffectedCount)
		return
	}
	r.logger.Warn("execution did not succeed",
		"execution_id", ex.ID, "issue_id", ex.IssueID, "outcome", res.Outcome, "error", res.ErrorDetail)
}

func (r *Runner) perform(ctx context.Context, ex *domain.Execution) domain.ExecutionResult {
	start := time.Now()

	// Params were screened when the execution was queued; screen again here
	// so a row written by an older binary still cannot reach the executor.
	if err := domain.ScreenParams(ex.Params); err != nil {
		return domain.ExecutionResult{
			Outcome:     domain.OutcomeFailed,
			ErrorDetail: fmt.Sprintf("unsafe parameters: %v", err),
			Duration:    time.Since(start),
		}
	}

	action, err := r.store.GetAction(ctx, ex.ActionID)
	if err != nil {
		return domain.ExecutionResult{
			Outcome:     domain.OutcomeFailed,
			ErrorDetail: fmt.Sprintf("load action: %v", err),
			Duration:    time.Since(start),
		}
	}
	command, err := action.RenderCommand(ex.Params)
	if err != nil {
		return domain.ExecutionResult{
			Outcome:     domain.OutcomeFailed,
			ErrorDetail: fmt.Sprintf("render command: %v", err),
			Duration:    time.Since(start),
		}
	}

	res := r.executor.Execute(ctx, port.ActionRun{
		ExecutionID: ex.ID,
		DecisionID:  ex.DecisionID,
		Action:      *action,
		Command:     command,
		Params:      ex.Params,
	})
	res.Duration = time.Since(start)
	return res
}
