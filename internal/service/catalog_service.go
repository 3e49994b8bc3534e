package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// CatalogService exposes the administrator-curated action whitelist. The
// pipeline itself never adds entries; seeding happens only at startup from
// the catalog file.
type CatalogService struct {
	store port.Store
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(s port.Store) *CatalogService {
	return &CatalogService{store: s}
}

// List returns all catalog actions.
func (s *CatalogService) List(ctx context.Context) ([]domain.Action, error) {
	return s.store.ListActions(ctx)
}

// Get returns one action by id.
func (s *CatalogService) Get(ctx context.Context, id int64) (*domain.Action, error) {
	return s.store.GetAction(ctx, id)
}

// SetEnabled flips an action's availability for new proposals. Decisions
// already pending against the action are unaffected; executions trace back to
// the approval, not the catalog flag.
func (s *CatalogService) SetEnabled(ctx context.Context, id int64, enabled bool, actorID string) error {
	if err := s.store.SetActionEnabled(ctx, id, enabled); err != nil {
		return err
	}
	detail := fmt.Sprintf(`{"enabled":%t}`, enabled)
	if auditErr := s.store.WriteAudit(actorID, domain.AuditActionCatalogChange, "action", fmt.Sprintf("%d", id), detail, "", ""); auditErr != nil {
		slog.Error("failed to write audit log", "error", auditErr)
	}
	slog.Info("action availability changed", "action_id", id, "enabled", enabled, "actor", actorID)
	return nil
}
