package domain

import (
	"fmt"
	"time"
)

// LearningRecord is a durable outcome assessment consumed by offline model
// training. The learning stage reads decision and execution history but has
// no write path back into any upstream entity: models improve recommendations
// over time but can never grant themselves execution rights.
type LearningRecord struct {
	ID                   int64     `json:"id"                     db:"id"`
	IssueID              int64     `json:"issue_id"               db:"issue_id"`
	ExecutionID          *int64    `json:"execution_id"           db:"execution_id"` // absent for issues closed without execution
	Resolved             bool      `json:"resolved"               db:"resolved"`
	ImprovementPercent   *float64  `json:"improvement_percent"    db:"improvement_percent"`
	ConfidenceAtDecision *float64  `json:"confidence_at_decision" db:"confidence_at_decision"`
	TimeToResolutionMS   int64     `json:"time_to_resolution_ms"  db:"time_to_resolution_ms"`
	SideEffects          bool      `json:"side_effects"           db:"side_effects"`
	Notes                string    `json:"notes"                  db:"notes"`
	CreatedAt            time.Time `json:"created_at"             db:"created_at"`
}

// ValidateImprovement rejects percentages outside [-100, 100].
func ValidateImprovement(pct float64) error {
	if pct < -100 || pct > 100 {
		return fmt.Errorf("improvement_percent must be within [-100, 100], got %v", pct)
	}
	return nil
}

// Validate checks the record before it is written.
func (r *LearningRecord) Validate() error {
	if r.IssueID == 0 {
		return fmt.Errorf("issue_id is required")
	}
	if r.ImprovementPercent != nil {
		if err := ValidateImprovement(*r.ImprovementPercent); err != nil {
			return err
		}
	}
	return nil
}
