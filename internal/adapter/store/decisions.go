package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// CreateDecision binds one analysis to one catalog action and produces a
// pending decision. The enabled check happens inside the same transaction as
// the insert, so the whitelist holds at decision-creation time and no caller
// can bypass it. Confidence is copied from the analysis and never rewritten.
func (s *DB) CreateDecision(ctx context.Context, analysisID, actionID int64, rationale, proposedBy string) (*domain.Decision, error) {
	ts := now()
	d := domain.Decision{
		AnalysisID: analysisID,
		ActionID:   actionID,
		Rationale:  rationale,
		Status:     domain.DecisionPending,
		ProposedBy: proposedBy,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var enabled bool
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT enabled FROM actions WHERE id = ?`), actionID).Scan(&enabled)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("action %d does not exist in catalog: %w", actionID, port.ErrPolicyViolation)
		}
		if err != nil {
			return fmt.Errorf("check action: %w", err)
		}
		if !enabled {
			return fmt.Errorf("action %d is disabled: %w", actionID, port.ErrPolicyViolation)
		}

		err = tx.QueryRowContext(ctx, s.rebind(`SELECT issue_id, confidence FROM analyses WHERE id = ?`), analysisID).
			Scan(&d.IssueID, &d.Confidence)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("analysis %d: %w", analysisID, port.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load analysis: %w", err)
		}

		row := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO decisions
				(issue_id, analysis_id, action_id, confidence, rationale, status, proposed_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			d.IssueID, d.AnalysisID, d.ActionID, d.Confidence, d.Rationale, d.Status, d.ProposedBy, ts, ts,
		)
		if err := row.Scan(&d.ID); err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDecision retrieves a decision by ID.
func (s *DB) GetDecision(ctx context.Context, id int64) (*domain.Decision, error) {
	row := s.queryRow(ctx, selectDecision+` WHERE id = ?`, id)
	d, err := scanDecision(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("decision %d: %w", id, port.ErrNotFound)
		}
		return nil, fmt.Errorf("get decision: %w", err)
	}
	return d, nil
}

// ListDecisions returns decisions, newest first, optionally filtered by
// status.
func (s *DB) ListDecisions(ctx context.Context, status string, limit int) ([]domain.Decision, error) {
	if limit <= 0 {
		limit = 100
	}
	query := selectDecision
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, *d)
	}
	return decisions, rows.Err()
}

const selectDecision = `
	SELECT id, issue_id, analysis_id, action_id, confidence, rationale, status, proposed_by, created_at, updated_at
	FROM decisions`

func scanDecision(row scanner) (*domain.Decision, error) {
	var d domain.Decision
	if err := row.Scan(
		&d.ID, &d.IssueID, &d.AnalysisID, &d.ActionID, &d.Confidence,
		&d.Rationale, &d.Status, &d.ProposedBy, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
