package port

import (
	"context"
	"time"

	"github.com/dbmend/dbmend/internal/domain"
)

// IssueFilter narrows issue listings.
type IssueFilter struct {
	Status   string
	Category string
	Limit    int
}

// LearningFilter narrows learning record listings.
type LearningFilter struct {
	Since    *time.Time
	Category string
	Resolved *bool
	Limit    int
}

// Store is the durable, transactional backing of the pipeline. All
// concurrency discipline lives here: uniqueness constraints and conditional
// updates, not in-process locks, so the contracts stay safe when the pipeline
// is exercised by multiple independent processes.
type Store interface {
	// SubmitDetection appends the event to the ledger and atomically creates
	// or refreshes the matching open issue. Exactly one issue row is created
	// or updated per call; concurrent submissions for the same (category,
	// resource) never produce duplicate open issues.
	SubmitDetection(ctx context.Context, ev *domain.DetectionEvent) (*domain.DetectionEvent, *domain.Issue, error)
	GetIssue(ctx context.Context, id int64) (*domain.Issue, error)
	ListIssues(ctx context.Context, f IssueFilter) ([]domain.Issue, error)
	// AdvanceIssueStatus moves the issue forward in the fixed ordering. It is
	// a no-op when the issue is already at or past the target status or is
	// terminal; it never moves status backward.
	AdvanceIssueStatus(ctx context.Context, issueID int64, to domain.IssueStatus) error

	CreateAnalysis(ctx context.Context, a *domain.Analysis) (*domain.Analysis, error)
	GetAnalysis(ctx context.Context, id int64) (*domain.Analysis, error)
	ListAnalysesByIssue(ctx context.Context, issueID int64) ([]domain.Analysis, error)
	// ListUnproposedAnalyses returns analyses that no decision references yet,
	// oldest first. Input for the advisor pass.
	ListUnproposedAnalyses(ctx context.Context, limit int) ([]domain.Analysis, error)

	// SeedAction inserts a catalog action if no action with the same name
	// exists. Used only by the administrative seed path at startup.
	SeedAction(ctx context.Context, a *domain.Action) error
	GetAction(ctx context.Context, id int64) (*domain.Action, error)
	GetActionByName(ctx context.Context, name string) (*domain.Action, error)
	ListActions(ctx context.Context) ([]domain.Action, error)
	SetActionEnabled(ctx context.Context, id int64, enabled bool) error

	// CreateDecision binds an analysis to a catalog action, checking inside
	// one transaction that the action exists and is enabled. Returns
	// ErrPolicyViolation otherwise; there is no override. Confidence is
	// copied from the analysis and frozen.
	CreateDecision(ctx context.Context, analysisID, actionID int64, rationale, proposedBy string) (*domain.Decision, error)
	GetDecision(ctx context.Context, id int64) (*domain.Decision, error)
	ListDecisions(ctx context.Context, status string, limit int) ([]domain.Decision, error)

	// CreateApproval records the single human verdict for a decision and
	// mirrors it onto the decision status, atomically. A decision that has
	// already left pending yields ErrAlreadyReviewed; the loser of a
	// concurrent race yields ErrConflict. At most one approval row can exist
	// per decision.
	CreateApproval(ctx context.Context, ap *domain.Approval) (*domain.Approval, error)
	GetApproval(ctx context.Context, id int64) (*domain.Approval, error)

	// CreateExecution enqueues the run of an approved decision's action.
	// Preconditions checked atomically: the approval's verdict is approved
	// and no execution exists for it yet. A second call for the same
	// approval yields ErrConflict, never a duplicate row.
	CreateExecution(ctx context.Context, approvalID int64, params map[string]string) (*domain.Execution, error)
	GetExecution(ctx context.Context, id int64) (*domain.Execution, error)
	// ClaimQueuedExecution conditionally moves the oldest queued execution to
	// in-progress and returns it, or (nil, nil) when the queue is empty.
	// Safe for a pool of concurrent workers.
	ClaimQueuedExecution(ctx context.Context) (*domain.Execution, error)
	// FinishExecution records the terminal state of an in-progress execution.
	FinishExecution(ctx context.Context, id int64, res domain.ExecutionResult) error

	CreateLearningRecord(ctx context.Context, r *domain.LearningRecord) (*domain.LearningRecord, error)
	ListLearningRecords(ctx context.Context, f LearningFilter) ([]domain.LearningRecord, error)

	PipelineStats(ctx context.Context) (*domain.PipelineStats, error)

	WriteAudit(actorID, action, resource, resourceID, details, ip, userAgent string) error
	ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error)

	Ping(ctx context.Context) error
	Close() error
}

// LearningStore is the narrow slice of Store the learning stage holds. It
// reads upstream history and appends learning records; the only upstream
// write it carries is the forward-only resolved mark on the issue.
type LearningStore interface {
	GetIssue(ctx context.Context, id int64) (*domain.Issue, error)
	GetDecision(ctx context.Context, id int64) (*domain.Decision, error)
	GetExecution(ctx context.Context, id int64) (*domain.Execution, error)
	CreateLearningRecord(ctx context.Context, r *domain.LearningRecord) (*domain.LearningRecord, error)
	ListLearningRecords(ctx context.Context, f LearningFilter) ([]domain.LearningRecord, error)
	AdvanceIssueStatus(ctx context.Context, issueID int64, to domain.IssueStatus) error
}
