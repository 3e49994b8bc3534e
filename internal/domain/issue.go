package domain

import "time"

// Issue is a tracked, categorized problem aggregating one or more detection
// events for the same resource. Status only ever advances; it never moves
// backward, and a resolved issue is never re-opened by new events.
type Issue struct {
	ID              int64       `json:"id"                db:"id"`
	Category        string      `json:"category"          db:"category"`
	ResourceType    string      `json:"resource_type"     db:"resource_type"`
	ResourceName    string      `json:"resource_name"     db:"resource_name"`
	Severity        Severity    `json:"severity"          db:"severity"`
	Status          IssueStatus `json:"status"            db:"status"`
	FirstEventID    int64       `json:"first_event_id"    db:"first_event_id"`
	LastEventID     int64       `json:"last_event_id"     db:"last_event_id"`
	OccurrenceCount int64       `json:"occurrence_count"  db:"occurrence_count"`
	FirstDetectedAt time.Time   `json:"first_detected_at" db:"first_detected_at"`
	LastDetectedAt  time.Time   `json:"last_detected_at"  db:"last_detected_at"`
	CreatedAt       time.Time   `json:"created_at"        db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"        db:"updated_at"`
}

// IssueStatus is the fixed lifecycle of an issue.
type IssueStatus string

const (
	IssueDetected         IssueStatus = "detected"
	IssueUnderAnalysis    IssueStatus = "under-analysis"
	IssueAwaitingDecision IssueStatus = "awaiting-decision"
	IssueDecisionMade     IssueStatus = "decision-made"
	IssueApproved         IssueStatus = "approved"
	IssueExecuting        IssueStatus = "executing"
	IssueResolved         IssueStatus = "resolved"
	IssueDeclined         IssueStatus = "declined" // terminal branch off the main ordering
)

// issueRanks orders statuses so advancement can be enforced with a single
// conditional update. Declined shares the terminal rank with resolved.
var issueRanks = map[IssueStatus]int{
	IssueDetected:         0,
	IssueUnderAnalysis:    1,
	IssueAwaitingDecision: 2,
	IssueDecisionMade:     3,
	IssueApproved:         4,
	IssueExecuting:        5,
	IssueResolved:         6,
	IssueDeclined:         6,
}

// Rank returns the position of s in the fixed ordering, or -1 for an
// unknown status.
func (s IssueStatus) Rank() int {
	r, ok := issueRanks[s]
	if !ok {
		return -1
	}
	return r
}

// Terminal reports whether no further transitions are allowed.
func (s IssueStatus) Terminal() bool {
	return s == IssueResolved || s == IssueDeclined
}
