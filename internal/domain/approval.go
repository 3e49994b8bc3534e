package domain

import (
	"fmt"
	"time"
)

// Approval is a human verdict on exactly one decision. At most one approval
// row exists per decision, enforced by a uniqueness constraint in the store
// rather than application logic, so the guarantee holds under concurrent
// double-submission.
type Approval struct {
	ID         int64     `json:"id"          db:"id"`
	DecisionID int64     `json:"decision_id" db:"decision_id"`
	ApproverID string    `json:"approver_id" db:"approver_id"`
	Verdict    Verdict   `json:"verdict"     db:"verdict"`
	ReasonCode string    `json:"reason_code" db:"reason_code"`
	Notes      string    `json:"notes"       db:"notes"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// Verdict values a reviewer can record.
type Verdict string

const (
	VerdictApproved  Verdict = "approved"
	VerdictDeclined  Verdict = "declined"
	VerdictCancelled Verdict = "cancelled"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApproved, VerdictDeclined, VerdictCancelled:
		return true
	}
	return false
}

// DecisionStatus maps the verdict onto the decision state it produces.
func (v Verdict) DecisionStatus() DecisionStatus {
	switch v {
	case VerdictApproved:
		return DecisionApproved
	case VerdictDeclined:
		return DecisionDeclined
	default:
		return DecisionCancelled
	}
}

// Validate checks the approval before it is recorded.
func (a *Approval) Validate() error {
	if a.DecisionID == 0 {
		return fmt.Errorf("decision_id is required")
	}
	if a.ApproverID == "" {
		return fmt.Errorf("approver_id is required")
	}
	if !a.Verdict.Valid() {
		return fmt.Errorf("unknown verdict %q", a.Verdict)
	}
	return nil
}
