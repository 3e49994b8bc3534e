package domain

import (
	"fmt"
	"strings"
	"time"
)

// Action is a pre-approved remediation primitive from the administrator
// curated catalog. The catalog is the whitelist: nothing outside it can ever
// be executed, and the pipeline itself never creates catalog entries.
type Action struct {
	ID                int64     `json:"id"                 db:"id"`
	Name              string    `json:"name"               db:"name"`
	Category          string    `json:"category"           db:"category"`
	RiskLevel         string    `json:"risk_level"         db:"risk_level"`
	CommandTemplate   string    `json:"command_template"   db:"command_template"`
	Params            []string  `json:"params"             db:"params"` // declared parameter set, stored as JSON
	RollbackAvailable bool      `json:"rollback_available" db:"rollback_available"`
	Enabled           bool      `json:"enabled"            db:"enabled"`
	CreatedAt         time.Time `json:"created_at"         db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"         db:"updated_at"`
}

// Action risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RenderCommand substitutes params into the action's command template.
// Substitution is a plain string replacement restricted to the declared
// parameter set: a supplied parameter outside that set is rejected, and a
// placeholder left without a value is rejected. Nothing is ever interpolated
// implicitly.
func (a *Action) RenderCommand(params map[string]string) (string, error) {
	declared := make(map[string]bool, len(a.Params))
	for _, p := range a.Params {
		declared[p] = true
	}
	for name := range params {
		if !declared[name] {
			return "", fmt.Errorf("parameter %q is not declared by action %q", name, a.Name)
		}
	}

	cmd := a.CommandTemplate
	for _, p := range a.Params {
		placeholder := "{" + p + "}"
		if !strings.Contains(cmd, placeholder) {
			continue
		}
		value, ok := params[p]
		if !ok {
			return "", fmt.Errorf("missing value for parameter %q of action %q", p, a.Name)
		}
		cmd = strings.ReplaceAll(cmd, placeholder, value)
	}
	return cmd, nil
}
