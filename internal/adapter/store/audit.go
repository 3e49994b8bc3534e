package store

import (
	"context"
	"fmt"

	"github.com/dbmend/dbmend/internal/domain"
)

// WriteAudit implements middleware.AuditWriter.
func (s *DB) WriteAudit(actorID, action, resource, resourceID, details, ip, userAgent string) error {
	if details == "" {
		details = "{}"
	}
	_, err := s.exec(context.Background(), `
		INSERT INTO audit_logs (actor_id, action, resource, resource_id, details, ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		actorID, action, resource, resourceID, details, ip, userAgent, now(),
	)
	return err
}

// ListAuditLogs returns recent audit logs with an optional action filter.
func (s *DB) ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error) {
	query := `
		SELECT id, actor_id, action, resource, resource_id, details, ip, user_agent, created_at
		FROM audit_logs`
	var args []any
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY id DESC`
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.ActorID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
