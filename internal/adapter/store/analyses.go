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

// CreateAnalysis records one immutable AI interpretation of an issue.
func (s *DB) CreateAnalysis(ctx context.Context, a *domain.Analysis) (*domain.Analysis, error) {
	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return nil, fmt.Errorf("marshal factors: %w", err)
	}
	ts := now()

	var recommended sql.NullInt64
	if a.RecommendedActionID != nil {
		recommended = sql.NullInt64{Int64: *a.RecommendedActionID, Valid: true}
	}

	row := s.queryRow(ctx, `
		INSERT INTO analyses
			(issue_id, hypothesis, confidence, factors, recommended_action_id, model_version, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		a.IssueID, a.Hypothesis, a.Confidence, string(factors), recommended,
		a.ModelVersion, domain.AnalysisCompleted, ts,
	)
	if err := row.Scan(&a.ID); err != nil {
		return nil, fmt.Errorf("insert analysis: %w", err)
	}
	a.Status = domain.AnalysisCompleted
	a.CreatedAt = ts
	return a, nil
}

// GetAnalysis retrieves an analysis by ID.
func (s *DB) GetAnalysis(ctx context.Context, id int64) (*domain.Analysis, error) {
	row := s.queryRow(ctx, `
		SELECT id, issue_id, hypothesis, confidence, factors, recommended_action_id, model_version, status, created_at
		FROM analyses WHERE id = ?`, id)

	a, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("analysis %d: %w", id, port.ErrNotFound)
		}
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

// ListAnalysesByIssue returns all analyses for an issue, newest first.
func (s *DB) ListAnalysesByIssue(ctx context.Context, issueID int64) ([]domain.Analysis, error) {
	rows, err := s.query(ctx, `
		SELECT id, issue_id, hypothesis, confidence, factors, recommended_action_id, model_version, status, created_at
		FROM analyses WHERE issue_id = ? ORDER BY id DESC`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()
	return collectAnalyses(rows)
}

// ListUnproposedAnalyses returns analyses not yet referenced by any decision,
// oldest first.
func (s *DB) ListUnproposedAnalyses(ctx context.Context, limit int) ([]domain.Analysis, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx, `
		SELECT a.id, a.issue_id, a.hypothesis, a.confidence, a.factors, a.recommended_action_id, a.model_version, a.status, a.created_at
		FROM analyses a
		LEFT JOIN decisions d ON d.analysis_id = a.id
		WHERE d.id IS NULL
		ORDER BY a.id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unproposed analyses: %w", err)
	}
	defer rows.Close()
	return collectAnalyses(rows)
}

func collectAnalyses(rows *sql.Rows) ([]domain.Analysis, error) {
	var analyses []domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		analyses = append(analyses, *a)
	}
	return analyses, rows.Err()
}

func scanAnalysis(row scanner) (*domain.Analysis, error) {
	var a domain.Analysis
	var factors string
	var recommended sql.NullInt64
	if err := row.Scan(
		&a.ID, &a.IssueID, &a.Hypothesis, &a.Confidence, &factors,
		&recommended, &a.ModelVersion, &a.Status, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	if recommended.Valid {
		a.RecommendedActionID = &recommended.Int64
	}
	if err := json.Unmarshal([]byte(factors), &a.Factors); err != nil {
		return nil, fmt.Errorf("unmarshal factors: %w", err)
	}
	return &a, nil
}
