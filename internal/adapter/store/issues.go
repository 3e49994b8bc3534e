package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// SubmitDetection appends one row to the event ledger and upserts the
// matching open issue in the same transaction. Dedupe is keyed on the partial
// unique index over (category, resource_name) for non-terminal issues, so
// concurrent submissions cannot open duplicate issues and a resolved issue is
// never re-opened; re-occurrence after resolution starts a fresh issue.
func (s *DB) SubmitDetection(ctx context.Context, ev *domain.DetectionEvent) (*domain.DetectionEvent, *domain.Issue, error) {
	ts := now()
	var issue domain.Issue

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO detection_events
				(source, resource_type, resource_name, category, metric_name, metric_value, metric_unit, severity, context, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			ev.Source, ev.ResourceType, ev.ResourceName, ev.Category,
			ev.MetricName, ev.MetricValue, ev.MetricUnit, ev.Severity, ev.Context, ts,
		)
		if err := row.Scan(&ev.ID); err != nil {
			return fmt.Errorf("insert detection event: %w", err)
		}
		ev.CreatedAt = ts

		row = tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO issues
				(category, resource_type, resource_name, severity, status, status_rank,
				 first_event_id, last_event_id, occurrence_count,
				 first_detected_at, last_detected_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?, 1, ?, ?, ?, ?)
			ON CONFLICT (category, resource_name) WHERE status NOT IN ('resolved', 'declined')
			DO UPDATE SET
				occurrence_count = issues.occurrence_count + 1,
				last_event_id    = excluded.last_event_id,
				last_detected_at = excluded.last_detected_at,
				updated_at       = excluded.updated_at
			RETURNING id, category, resource_type, resource_name, severity, status,
			          first_event_id, last_event_id, occurrence_count,
			          first_detected_at, last_detected_at, created_at, updated_at`),
			ev.Category, ev.ResourceType, ev.ResourceName, ev.Severity, domain.IssueDetected,
			ev.ID, ev.ID, ts, ts, ts, ts,
		)
		if err := scanIssue(row, &issue); err != nil {
			return fmt.Errorf("upsert issue: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ev, &issue, nil
}

// GetIssue retrieves an issue by ID.
func (s *DB) GetIssue(ctx context.Context, id int64) (*domain.Issue, error) {
	row := s.queryRow(ctx, `
		SELECT id, category, resource_type, resource_name, severity, status,
		       first_event_id, last_event_id, occurrence_count,
		       first_detected_at, last_detected_at, created_at, updated_at
		FROM issues WHERE id = ?`, id)

	var issue domain.Issue
	if err := scanIssue(row, &issue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("issue %d: %w", id, port.ErrNotFound)
		}
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return &issue, nil
}

// ListIssues returns issues, newest first, honoring the filter.
func (s *DB) ListIssues(ctx context.Context, f port.IssueFilter) ([]domain.Issue, error) {
	query := `
		SELECT id, category, resource_type, resource_name, severity, status,
		       first_event_id, last_event_id, occurrence_count,
		       first_detected_at, last_detected_at, created_at, updated_at
		FROM issues`
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var issues []domain.Issue
	for rows.Next() {
		var issue domain.Issue
		if err := scanIssue(rows, &issue); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// AdvanceIssueStatus moves the issue forward in the fixed status ordering.
// The conditional update makes it a no-op when the issue is already at or
// past the target, and terminal statuses are never left.
func (s *DB) AdvanceIssueStatus(ctx context.Context, issueID int64, to domain.IssueStatus) error {
	rank := to.Rank()
	if rank < 0 {
		return fmt.Errorf("unknown issue status %q: %w", to, port.ErrValidation)
	}
	_, err := s.exec(ctx, `
		UPDATE issues SET status = ?, status_rank = ?, updated_at = ?
		WHERE id = ? AND status_rank < ? AND status NOT IN ('resolved', 'declined')`,
		to, rank, now(), issueID, rank,
	)
	if err != nil {
		return fmt.Errorf("advance issue status: %w", err)
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(row scanner, issue *domain.Issue) error {
	return row.Scan(
		&issue.ID, &issue.Category, &issue.ResourceType, &issue.ResourceName,
		&issue.Severity, &issue.Status,
		&issue.FirstEventID, &issue.LastEventID, &issue.OccurrenceCount,
		&issue.FirstDetectedAt, &issue.LastDetectedAt, &issue.CreatedAt, &issue.UpdatedAt,
	)
}
