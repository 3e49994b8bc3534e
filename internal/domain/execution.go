package domain

import "time"

// Execution is the actual run of an approved decision's action. An execution
// can only exist for an approval whose verdict is approved, and exactly one
// execution exists per approval. Rows transition queued -> in-progress ->
// terminal and are otherwise append-only.
type Execution struct {
	ID                int64             `json:"id"                 db:"id"`
	ApprovalID        int64             `json:"approval_id"        db:"approval_id"`
	DecisionID        int64             `json:"decision_id"        db:"decision_id"`
	ActionID          int64             `json:"action_id"          db:"action_id"`
	IssueID           int64             `json:"issue_id"           db:"issue_id"`
	Status            ExecutionStatus   `json:"status"             db:"status"`
	Outcome           ExecutionOutcome  `json:"outcome,omitempty"  db:"outcome"`
	Params            map[string]string `json:"params"             db:"params"` // stored as JSON
	StartedAt         *time.Time        `json:"started_at"         db:"started_at"`
	FinishedAt        *time.Time        `json:"finished_at"        db:"finished_at"`
	DurationMS        int64             `json:"duration_ms"        db:"duration_ms"`
	AffectedCount     int64             `json:"affected_count"     db:"affected_count"`
	ErrorDetail       string            `json:"error_detail"       db:"error_detail"`
	RollbackAvailable bool              `json:"rollback_available" db:"rollback_available"`
	CreatedAt         time.Time         `json:"created_at"         db:"created_at"`
}

// ExecutionStatus values.
type ExecutionStatus string

const (
	ExecutionQueued     ExecutionStatus = "queued"
	ExecutionInProgress ExecutionStatus = "in-progress"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
)

// Terminal reports whether the execution has finished.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// ExecutionOutcome values recorded on terminal executions.
type ExecutionOutcome string

const (
	OutcomeSuccess    ExecutionOutcome = "success"
	OutcomePartial    ExecutionOutcome = "partial"
	OutcomeFailed     ExecutionOutcome = "failed"
	OutcomeRolledBack ExecutionOutcome = "rolled-back"
)

// ExecutionResult is what the worker records when an execution terminates.
type ExecutionResult struct {
	Outcome       ExecutionOutcome
	AffectedCount int64
	ErrorDetail   string
	Duration      time.Duration
}
