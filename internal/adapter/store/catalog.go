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

// SeedAction inserts a catalog action unless one with the same name already
// exists. Seeding never overwrites administrator edits.
func (s *DB) SeedAction(ctx context.Context, a *domain.Action) error {
	params, err := json.Marshal(a.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	ts := now()
	_, err = s.exec(ctx, `
		INSERT INTO actions
			(name, category, risk_level, command_template, params, rollback_available, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`,
		a.Name, a.Category, a.RiskLevel, a.CommandTemplate, string(params),
		a.RollbackAvailable, a.Enabled, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("seed action %q: %w", a.Name, err)
	}
	return nil
}

// GetAction retrieves a catalog action by ID.
func (s *DB) GetAction(ctx context.Context, id int64) (*domain.Action, error) {
	row := s.queryRow(ctx, selectAction+` WHERE id = ?`, id)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("action %d: %w", id, port.ErrNotFound)
		}
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

// GetActionByName retrieves a catalog action by its unique name.
func (s *DB) GetActionByName(ctx context.Context, name string) (*domain.Action, error) {
	row := s.queryRow(ctx, selectAction+` WHERE name = ?`, name)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("action %q: %w", name, port.ErrNotFound)
		}
		return nil, fmt.Errorf("get action by name: %w", err)
	}
	return a, nil
}

// ListActions returns the whole catalog ordered by name.
func (s *DB) ListActions(ctx context.Context) ([]domain.Action, error) {
	rows, err := s.query(ctx, selectAction+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

// SetActionEnabled flips the whitelist flag for an action. Administrative
// path only; the pipeline itself never calls this.
func (s *DB) SetActionEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.exec(ctx, `UPDATE actions SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, now(), id)
	if err != nil {
		return fmt.Errorf("set action enabled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set action enabled: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("action %d: %w", id, port.ErrNotFound)
	}
	return nil
}

const selectAction = `
	SELECT id, name, category, risk_level, command_template, params, rollback_available, enabled, created_at, updated_at
	FROM actions`

func scanAction(row scanner) (*domain.Action, error) {
	var a domain.Action
	var params string
	if err := row.Scan(
		&a.ID, &a.Name, &a.Category, &a.RiskLevel, &a.CommandTemplate,
		&params, &a.RollbackAvailable, &a.Enabled, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &a.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return &a, nil
}
