package domain

import "time"

// Decision proposes applying one catalog action to one analysis. The
// confidence is copied from the analysis at proposal time and frozen; later
// analyses never rewrite an existing decision. Status transitions happen only
// through the approval gate.
type Decision struct {
	ID         int64          `json:"id"          db:"id"`
	IssueID    int64          `json:"issue_id"    db:"issue_id"`
	AnalysisID int64          `json:"analysis_id" db:"analysis_id"`
	ActionID   int64          `json:"action_id"   db:"action_id"`
	Confidence float64        `json:"confidence"  db:"confidence"`
	Rationale  string         `json:"rationale"   db:"rationale"`
	Status     DecisionStatus `json:"status"      db:"status"`
	ProposedBy string         `json:"proposed_by" db:"proposed_by"`
	CreatedAt  time.Time      `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"  db:"updated_at"`
}

// DecisionStatus values. Pending is the only non-terminal state.
type DecisionStatus string

const (
	DecisionPending   DecisionStatus = "pending"
	DecisionApproved  DecisionStatus = "approved"
	DecisionDeclined  DecisionStatus = "declined"
	DecisionCancelled DecisionStatus = "cancelled"
)

// Terminal reports whether the decision has been disposed of.
func (s DecisionStatus) Terminal() bool {
	return s == DecisionApproved || s == DecisionDeclined || s == DecisionCancelled
}
