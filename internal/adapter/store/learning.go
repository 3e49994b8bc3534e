package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// CreateLearningRecord appends one outcome assessment. Together with the
// forward-only resolved mark via AdvanceIssueStatus this is all the learning
// stage can write; port.LearningStore exposes nothing that mutates decisions,
// approvals, or executions.
func (s *DB) CreateLearningRecord(ctx context.Context, r *domain.LearningRecord) (*domain.LearningRecord, error) {
	ts := now()

	var execID sql.NullInt64
	if r.ExecutionID != nil {
		execID = sql.NullInt64{Int64: *r.ExecutionID, Valid: true}
	}
	var improvement, confidence sql.NullFloat64
	if r.ImprovementPercent != nil {
		improvement = sql.NullFloat64{Float64: *r.ImprovementPercent, Valid: true}
	}
	if r.ConfidenceAtDecision != nil {
		confidence = sql.NullFloat64{Float64: *r.ConfidenceAtDecision, Valid: true}
	}

	row := s.queryRow(ctx, `
		INSERT INTO learning_records
			(issue_id, execution_id, resolved, improvement_percent, confidence_at_decision,
			 time_to_resolution_ms, side_effects, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		r.IssueID, execID, r.Resolved, improvement, confidence,
		r.TimeToResolutionMS, r.SideEffects, r.Notes, ts,
	)
	if err := row.Scan(&r.ID); err != nil {
		return nil, fmt.Errorf("insert learning record: %w", err)
	}
	r.CreatedAt = ts
	return r, nil
}

// ListLearningRecords returns records for offline training, newest first.
func (s *DB) ListLearningRecords(ctx context.Context, f port.LearningFilter) ([]domain.LearningRecord, error) {
	query := `
		SELECT lr.id, lr.issue_id, lr.execution_id, lr.resolved, lr.improvement_percent,
		       lr.confidence_at_decision, lr.time_to_resolution_ms, lr.side_effects, lr.notes, lr.created_at
		FROM learning_records lr`
	var conds []string
	var args []any
	if f.Category != "" {
		query += ` JOIN issues i ON i.id = lr.issue_id`
		conds = append(conds, "i.category = ?")
		args = append(args, f.Category)
	}
	if f.Since != nil {
		conds = append(conds, "lr.created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if f.Resolved != nil {
		conds = append(conds, "lr.resolved = ?")
		args = append(args, *f.Resolved)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY lr.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list learning records: %w", err)
	}
	defer rows.Close()

	var records []domain.LearningRecord
	for rows.Next() {
		var r domain.LearningRecord
		var execID sql.NullInt64
		var improvement, confidence sql.NullFloat64
		if err := rows.Scan(
			&r.ID, &r.IssueID, &execID, &r.Resolved, &improvement,
			&confidence, &r.TimeToResolutionMS, &r.SideEffects, &r.Notes, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan learning record: %w", err)
		}
		if execID.Valid {
			r.ExecutionID = &execID.Int64
		}
		if improvement.Valid {
			r.ImprovementPercent = &improvement.Float64
		}
		if confidence.Valid {
			r.ConfidenceAtDecision = &confidence.Float64
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
