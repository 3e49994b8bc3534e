package store

import (
	"context"
	"fmt"

	"github.com/dbmend/dbmend/internal/domain"
)

// PipelineStats derives the dashboard projection by querying the durable
// entities directly. Nothing here is cached; the entities stay the single
// source of truth.
func (s *DB) PipelineStats(ctx context.Context) (*domain.PipelineStats, error) {
	stats := &domain.PipelineStats{IssuesByStatus: map[string]int64{}}

	rows, err := s.query(ctx, `SELECT status, COUNT(*) FROM issues GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("issue stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan issue stat: %w", err)
		}
		stats.IssuesByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.query(ctx, `
		SELECT status, COUNT(*), AVG(confidence)
		FROM decisions GROUP BY status ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("decision stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d domain.DecisionStat
		if err := rows.Scan(&d.Status, &d.Count, &d.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scan decision stat: %w", err)
		}
		stats.Decisions = append(stats.Decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.query(ctx, `
		SELECT outcome, COUNT(*) FROM executions
		WHERE outcome IS NOT NULL GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("execution stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o domain.OutcomeStat
		if err := rows.Scan(&o.Outcome, &o.Count); err != nil {
			return nil, fmt.Errorf("scan execution stat: %w", err)
		}
		stats.Executions = append(stats.Executions, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.query(ctx, `
		SELECT e.outcome, COUNT(*), AVG(d.confidence)
		FROM executions e
		JOIN decisions d ON d.id = e.decision_id
		WHERE e.outcome IS NOT NULL
		GROUP BY e.outcome`)
	if err != nil {
		return nil, fmt.Errorf("calibration stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.CalibrationStat
		if err := rows.Scan(&c.Outcome, &c.Count, &c.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scan calibration stat: %w", err)
		}
		stats.Calibration = append(stats.Calibration, c)
	}
	return stats, rows.Err()
}
