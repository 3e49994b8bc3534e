package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// CreateExecution enqueues the run of an approved decision's action. The
// approval verdict is checked in the same transaction as the insert, and the
// UNIQUE(approval_id) constraint makes execution exactly-once per approval:
// a second call loses to the constraint, never to a timing window.
func (s *DB) CreateExecution(ctx context.Context, approvalID int64, params map[string]string) (*domain.Execution, error) {
	if params == nil {
		params = map[string]string{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	ts := now()

	exec := domain.Execution{
		ApprovalID: approvalID,
		Status:     domain.ExecutionQueued,
		Params:     params,
		CreatedAt:  ts,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var verdict domain.Verdict
		err := tx.QueryRowContext(ctx, s.rebind(`
			SELECT a.verdict, d.id, d.action_id, d.issue_id
			FROM approvals a
			JOIN decisions d ON d.id = a.decision_id
			WHERE a.id = ?`), approvalID).
			Scan(&verdict, &exec.DecisionID, &exec.ActionID, &exec.IssueID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("approval %d: %w", approvalID, port.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load approval: %w", err)
		}
		if verdict != domain.VerdictApproved {
			return fmt.Errorf("approval %d verdict is %s, execution requires approved: %w",
				approvalID, verdict, port.ErrPolicyViolation)
		}

		err = tx.QueryRowContext(ctx, s.rebind(`SELECT rollback_available FROM actions WHERE id = ?`), exec.ActionID).
			Scan(&exec.RollbackAvailable)
		if err != nil {
			return fmt.Errorf("load action: %w", err)
		}

		row := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO executions
				(approval_id, decision_id, action_id, issue_id, status, params, rollback_available, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			approvalID, exec.DecisionID, exec.ActionID, exec.IssueID,
			exec.Status, string(paramsJSON), exec.RollbackAvailable, ts,
		)
		if err := row.Scan(&exec.ID); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("approval %d already has an execution: %w", approvalID, port.ErrConflict)
			}
			return fmt.Errorf("insert execution: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// GetExecution retrieves an execution by ID.
func (s *DB) GetExecution(ctx context.Context, id int64) (*domain.Execution, error) {
	row := s.queryRow(ctx, selectExecution+` WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution %d: %w", id, port.ErrNotFound)
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return exec, nil
}

// ClaimQueuedExecution conditionally moves the oldest queued execution to
// in-progress. The status guard makes the claim race-safe for a worker pool:
// the loser updates zero rows and comes back empty-handed.
func (s *DB) ClaimQueuedExecution(ctx context.Context) (*domain.Execution, error) {
	row := s.queryRow(ctx, `
		UPDATE executions SET status = ?, started_at = ?
		WHERE id = (SELECT id FROM executions WHERE status = ? ORDER BY id LIMIT 1)
		  AND status = ?
		RETURNING id, approval_id, decision_id, action_id, issue_id, status, outcome, params,
		          started_at, finished_at, duration_ms, affected_count, error_detail, rollback_available, created_at`,
		domain.ExecutionInProgress, now(), domain.ExecutionQueued, domain.ExecutionQueued,
	)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim execution: %w", err)
	}
	return exec, nil
}

// FinishExecution records the terminal state of an in-progress execution.
// The in-progress guard means a terminal row can never be overwritten.
func (s *DB) FinishExecution(ctx context.Context, id int64, res domain.ExecutionResult) error {
	ts := now()
	status := domain.ExecutionCompleted
	if res.Outcome == domain.OutcomeFailed {
		status = domain.ExecutionFailed
	}

	result, err := s.exec(ctx, `
		UPDATE executions
		SET status = ?, outcome = ?, finished_at = ?, duration_ms = ?, affected_count = ?, error_detail = ?
		WHERE id = ? AND status = ?`,
		status, res.Outcome, ts, res.Duration.Milliseconds(), res.AffectedCount, res.ErrorDetail,
		id, domain.ExecutionInProgress,
	)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("execution %d is not in progress: %w", id, port.ErrConflict)
	}
	return nil
}

const selectExecution = `
	SELECT id, approval_id, decision_id, action_id, issue_id, status, outcome, params,
	       started_at, finished_at, duration_ms, affected_count, error_detail, rollback_available, created_at
	FROM executions`

func scanExecution(row scanner) (*domain.Execution, error) {
	var exec domain.Execution
	var outcome sql.NullString
	var params string
	var started, finished sql.NullTime
	if err := row.Scan(
		&exec.ID, &exec.ApprovalID, &exec.DecisionID, &exec.ActionID, &exec.IssueID,
		&exec.Status, &outcome, &params, &started, &finished,
		&exec.DurationMS, &exec.AffectedCount, &exec.ErrorDetail, &exec.RollbackAvailable, &exec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if outcome.Valid {
		exec.Outcome = domain.ExecutionOutcome(outcome.String)
	}
	if started.Valid {
		exec.StartedAt = &started.Time
	}
	if finished.Valid {
		exec.FinishedAt = &finished.Time
	}
	if err := json.Unmarshal([]byte(params), &exec.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return &exec, nil
}
