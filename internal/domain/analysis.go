package domain

import (
	"fmt"
	"time"
)

// Analysis is one AI interpretation of an issue: a root-cause hypothesis with
// a confidence score. Analyses are immutable after creation; re-analysis adds
// a new row rather than rewriting an old one.
type Analysis struct {
	ID                  int64     `json:"id"                    db:"id"`
	IssueID             int64     `json:"issue_id"              db:"issue_id"`
	Hypothesis          string    `json:"hypothesis"            db:"hypothesis"`
	Confidence          float64   `json:"confidence"            db:"confidence"`
	Factors             []string  `json:"factors"               db:"factors"` // stored as JSON
	RecommendedActionID *int64    `json:"recommended_action_id" db:"recommended_action_id"`
	ModelVersion        string    `json:"model_version"         db:"model_version"`
	Status              string    `json:"status"                db:"status"`
	CreatedAt           time.Time `json:"created_at"            db:"created_at"`
}

// Analysis status values.
const (
	AnalysisCompleted = "completed"
)

// ValidateConfidence rejects scores outside [0, 1]. Values are never
// silently clamped.
func ValidateConfidence(score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("confidence must be within [0.00, 1.00], got %v", score)
	}
	return nil
}

// Validate checks the analysis before it is recorded.
func (a *Analysis) Validate() error {
	if a.IssueID == 0 {
		return fmt.Errorf("issue_id is required")
	}
	if a.Hypothesis == "" {
		return fmt.Errorf("hypothesis is required")
	}
	if err := ValidateConfidence(a.Confidence); err != nil {
		return err
	}
	return nil
}
