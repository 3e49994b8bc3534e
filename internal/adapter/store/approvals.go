package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// CreateApproval records the single human verdict for a decision and mirrors
// it onto the decision status in one transaction. Two enforcement layers:
// the conditional update only fires while the decision is still pending, and
// the UNIQUE(decision_id) constraint rejects a second approval row even if
// two callers pass the first check simultaneously.
func (s *DB) CreateApproval(ctx context.Context, ap *domain.Approval) (*domain.Approval, error) {
	ts := now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status domain.DecisionStatus
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT status FROM decisions WHERE id = ?`), ap.DecisionID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("decision %d: %w", ap.DecisionID, port.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load decision: %w", err)
		}
		if status != domain.DecisionPending {
			return fmt.Errorf("decision %d is %s: %w", ap.DecisionID, status, port.ErrAlreadyReviewed)
		}

		res, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE decisions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
			ap.Verdict.DecisionStatus(), ts, ap.DecisionID, domain.DecisionPending,
		)
		if err != nil {
			return fmt.Errorf("update decision status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update decision status: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("decision %d reviewed concurrently: %w", ap.DecisionID, port.ErrConflict)
		}

		row := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO approvals (decision_id, approver_id, verdict, reason_code, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`),
			ap.DecisionID, ap.ApproverID, ap.Verdict, ap.ReasonCode, ap.Notes, ts,
		)
		if err := row.Scan(&ap.ID); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("decision %d already has an approval: %w", ap.DecisionID, port.ErrConflict)
			}
			return fmt.Errorf("insert approval: %w", err)
		}
		ap.CreatedAt = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ap, nil
}

// GetApproval retrieves an approval by ID.
func (s *DB) GetApproval(ctx context.Context, id int64) (*domain.Approval, error) {
	row := s.queryRow(ctx, `
		SELECT id, decision_id, approver_id, verdict, reason_code, notes, created_at
		FROM approvals WHERE id = ?`, id)

	var ap domain.Approval
	if err := row.Scan(
		&ap.ID, &ap.DecisionID, &ap.ApproverID, &ap.Verdict, &ap.ReasonCode, &ap.Notes, &ap.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("approval %d: %w", id, port.ErrNotFound)
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return &ap, nil
}
