package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

type catalogFile struct {
	Actions []catalogEntry `yaml:"actions"`
}

type catalogEntry struct {
	Name              string   `yaml:"name"`
	Category          string   `yaml:"category"`
	RiskLevel         string   `yaml:"risk_level"`
	CommandTemplate   string   `yaml:"command_template"`
	Params            []string `yaml:"params"`
	RollbackAvailable bool     `yaml:"rollback_available"`
	Enabled           *bool    `yaml:"enabled"`
}

// SeedCatalog reads the action catalog YAML and inserts any actions the
// store does not already have. Existing actions are left untouched so that
// runtime enable/disable decisions survive restarts.
func SeedCatalog(ctx context.Context, path string, store port.Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("catalog file missing, no actions seeded", "path", path)
			return nil
		}
		return fmt.Errorf("read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}

	seeded := 0
	for _, e := range file.Actions {
		if e.Name == "" || e.CommandTemplate == "" {
			return fmt.Errorf("catalog entry missing name or command_template")
		}
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		action := domain.Action{
			Name:              e.Name,
			Category:          e.Category,
			RiskLevel:         e.RiskLevel,
			CommandTemplate:   e.CommandTemplate,
			Params:            e.Params,
			RollbackAvailable: e.RollbackAvailable,
			Enabled:           enabled,
		}
		if err := store.SeedAction(ctx, &action); err != nil {
			return fmt.Errorf("seed action %q: %w", e.Name, err)
		}
		seeded++
	}
	logger.Info("action catalog seeded", "path", path, "actions", seeded)
	return nil
}
