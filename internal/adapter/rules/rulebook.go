package rules

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Path values for a rule: whether the advisor may propose a decision on its
// own, or the category always waits for a human-initiated proposal.
const (
	PathAuto   = "auto"
	PathReview = "review"
)

// Rule maps an issue category to the catalog action the rulebook recommends
// for it. Rules only ever feed proposals; the approval gate is untouched by
// anything in this package.
type Rule struct {
	Category   string  `yaml:"category"`
	Action     string  `yaml:"action"`
	Path       string  `yaml:"path"`
	Confidence float64 `yaml:"confidence"`
	Reason     string  `yaml:"reason"`
}

type rulebookFile struct {
	Rules []Rule `yaml:"rules"`
}

// Rulebook is the administrator-curated remediation rulebook loaded from a
// YAML file.
type Rulebook struct {
	byCategory map[string]Rule
	logger     *slog.Logger
}

// NewRulebook loads rules from path. A missing file yields a nil rulebook
// and no error: the advisor is simply disabled.
func NewRulebook(path string, logger *slog.Logger) (*Rulebook, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("rulebook file missing, advisor disabled", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read rulebook: %w", err)
	}

	var file rulebookFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rulebook: %w", err)
	}

	book := &Rulebook{byCategory: make(map[string]Rule, len(file.Rules)), logger: logger}
	for _, r := range file.Rules {
		if r.Category == "" || r.Action == "" {
			return nil, fmt.Errorf("rulebook entry missing category or action")
		}
		if r.Path != PathAuto && r.Path != PathReview {
			return nil, fmt.Errorf("rulebook entry %q has unknown path %q", r.Category, r.Path)
		}
		book.byCategory[r.Category] = r
	}
	logger.Info("rulebook loaded", "path", path, "rules", len(file.Rules))
	return book, nil
}

// RuleFor returns the rule for a category, if any.
func (b *Rulebook) RuleFor(category string) (Rule, bool) {
	if b == nil {
		return Rule{}, false
	}
	r, ok := b.byCategory[category]
	return r, ok
}
