package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedIndexAction(t *testing.T, db *DB) *domain.Action {
	t.Helper()
	err := db.SeedAction(context.Background(), &domain.Action{
		Name:              "add_missing_index",
		Category:          "schema",
		RiskLevel:         domain.RiskMedium,
		CommandTemplate:   "CREATE INDEX {index_name} ON {table} ({columns})",
		Params:            []string{"index_name", "table", "columns"},
		RollbackAvailable: true,
		Enabled:           true,
	})
	require.NoError(t, err)
	action, err := db.GetActionByName(context.Background(), "add_missing_index")
	require.NoError(t, err)
	return action
}

func submitEvent(t *testing.T, db *DB, category, resource string) (*domain.DetectionEvent, *domain.Issue) {
	t.Helper()
	ev, issue, err := db.SubmitDetection(context.Background(), &domain.DetectionEvent{
		Source:       "monitor-1",
		ResourceType: "table",
		ResourceName: resource,
		Category:     category,
		MetricName:   "avg_query_time_ms",
		MetricValue:  5432,
		MetricUnit:   "ms",
		Severity:     domain.SeverityHigh,
	})
	require.NoError(t, err)
	return ev, issue
}

func recordAnalysis(t *testing.T, db *DB, issueID int64) *domain.Analysis {
	t.Helper()
	a, err := db.CreateAnalysis(context.Background(), &domain.Analysis{
		IssueID:      issueID,
		Hypothesis:   "missing index on users.email",
		Confidence:   0.92,
		Factors:      []string{"seq scan", "high row count"},
		ModelVersion: "v1",
		Status:       domain.AnalysisCompleted,
	})
	require.NoError(t, err)
	return a
}

// pipelineToApproval walks one issue through proposal and an approved verdict.
func pipelineToApproval(t *testing.T, db *DB, resource string) (*domain.Decision, *domain.Approval) {
	t.Helper()
	ctx := context.Background()
	action := seedIndexAction(t, db)
	_, issue := submitEvent(t, db, domain.CategoryQueryPerformance, resource)
	a := recordAnalysis(t, db, issue.ID)
	d, err := db.CreateDecision(ctx, a.ID, action.ID, "index fixes plan", "operator")
	require.NoError(t, err)
	ap, err := db.CreateApproval(ctx, &domain.Approval{
		DecisionID: d.ID, ApproverID: "dba-1", Verdict: domain.VerdictApproved,
	})
	require.NoError(t, err)
	return d, ap
}

func TestSubmitDetectionDedupe(t *testing.T) {
	db := newTestDB(t)

	_, first := submitEvent(t, db, domain.CategoryQueryPerformance, "users")
	assert.Equal(t, domain.IssueDetected, first.Status)
	assert.EqualValues(t, 1, first.OccurrenceCount)

	ev2, second := submitEvent(t, db, domain.CategoryQueryPerformance, "users")
	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 2, second.OccurrenceCount)
	assert.Equal(t, ev2.ID, second.LastEventID)
	assert.Equal(t, first.FirstEventID, second.FirstEventID)

	_, other := submitEvent(t, db, domain.CategoryQueryPerformance, "orders")
	assert.NotEqual(t, first.ID, other.ID)

	_, otherCat := submitEvent(t, db, domain.CategoryDeadlock, "users")
	assert.NotEqual(t, first.ID, otherCat.ID)
}

func TestSubmitDetectionAfterResolution(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, issue := submitEvent(t, db, domain.CategoryDeadlock, "orders")
	require.NoError(t, db.AdvanceIssueStatus(ctx, issue.ID, domain.IssueResolved))

	// Re-occurrence after resolution opens a fresh issue, never reopens.
	_, fresh := submitEvent(t, db, domain.CategoryDeadlock, "orders")
	assert.NotEqual(t, issue.ID, fresh.ID)
	assert.Equal(t, domain.IssueDetected, fresh.Status)
	assert.EqualValues(t, 1, fresh.OccurrenceCount)

	old, err := db.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueResolved, old.Status)
}

func TestAdvanceIssueStatusMonotonic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, issue := submitEvent(t, db, domain.CategorySlowQuery, "users")

	require.NoError(t, db.AdvanceIssueStatus(ctx, issue.ID, domain.IssueApproved))
	got, err := db.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueApproved, got.Status)

	// Backward move is a silent no-op.
	require.NoError(t, db.AdvanceIssueStatus(ctx, issue.ID, domain.IssueUnderAnalysis))
	got, err = db.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueApproved, got.Status)

	require.NoError(t, db.AdvanceIssueStatus(ctx, issue.ID, domain.IssueDeclined))
	got, err = db.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueDeclined, got.Status)

	// Terminal statuses are never left.
	require.NoError(t, db.AdvanceIssueStatus(ctx, issue.ID, domain.IssueResolved))
	got, err = db.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueDeclined, got.Status)
}

func TestListIssuesFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	submitEvent(t, db, domain.CategoryQueryPerformance, "users")
	_, locked := submitEvent(t, db, domain.CategoryLockWait, "orders")
	require.NoError(t, db.AdvanceIssueStatus(ctx, locked.ID, domain.IssueUnderAnalysis))

	all, err := db.ListIssues(ctx, port.IssueFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	detected, err := db.ListIssues(ctx, port.IssueFilter{Status: string(domain.IssueDetected)})
	require.NoError(t, err)
	require.Len(t, detected, 1)
	assert.Equal(t, "users", detected[0].ResourceName)

	byCat, err := db.ListIssues(ctx, port.IssueFilter{Category: domain.CategoryLockWait})
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	assert.Equal(t, locked.ID, byCat[0].ID)
}

func TestAnalysesRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, issue := submitEvent(t, db, domain.CategoryQueryPerformance, "users")
	a := recordAnalysis(t, db, issue.ID)
	require.NotZero(t, a.ID)

	got, err := db.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Hypothesis, got.Hypothesis)
	assert.Equal(t, []string{"seq scan", "high row count"}, got.Factors)
	assert.InDelta(t, 0.92, got.Confidence, 0.0001)

	listed, err := db.ListAnalysesByIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	_, err = db.GetAnalysis(ctx, 9999)
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestListUnproposedAnalyses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	action := seedIndexAction(t, db)
	_, issue := submitEvent(t, db, domain.CategoryQueryPerformance, "users")
	a := recordAnalysis(t, db, issue.ID)

	pending, err := db.ListUnproposedAnalyses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	_, err = db.CreateDecision(ctx, a.ID, action.ID, "fix it", "operator")
	require.NoError(t, err)

	pending, err = db.ListUnproposedAnalyses(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSeedActionIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := seedIndexAction(t, db)
	require.NoError(t, db.SetActionEnabled(ctx, first.ID, false))

	// Re-seeding must not resurrect the enabled flag.
	again := seedIndexAction(t, db)
	assert.Equal(t, first.ID, again.ID)
	assert.False(t, again.Enabled)

	actions, err := db.ListActions(ctx)
	require.NoError(t, err)
	assert.Len(t, actions, 1)

	assert.ErrorIs(t, db.SetActionEnabled(ctx, 9999, true), port.ErrNotFound)
}

func TestCreateDecisionWhitelist(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	action := seedIndexAction(t, db)
	_, issue := submitEvent(t, db, domain.CategoryQueryPerformance, "users")
	a := recordAnalysis(t, db, issue.ID)

	_, err := db.CreateDecision(ctx, a.ID, 9999, "", "operator")
	assert.ErrorIs(t, err, port.ErrPolicyViolation)

	require.NoError(t, db.SetActionEnabled(ctx, action.ID, false))
	_, err = db.CreateDecision(ctx, a.ID, action.ID, "", "operator")
	assert.ErrorIs(t, err, port.ErrPolicyViolation)

	require.NoError(t, db.SetActionEnabled(ctx, action.ID, true))
	_, err = db.CreateDecision(ctx, 9999, action.ID, "", "operator")
	assert.ErrorIs(t, err, port.ErrNotFound)

	d, err := db.CreateDecision(ctx, a.ID, action.ID, "index fixes plan", "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionPending, d.Status)
	assert.Equal(t, issue.ID, d.IssueID)
	assert.InDelta(t, 0.92, d.Confidence, 0.0001, "confidence is copied from the analysis")
}

func TestApprovalSingleVerdict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	action := seedIndexAction(t, db)
	_, issue := submitEvent(t, db, domain.CategoryQueryPerformance, "users")
	a := recordAnalysis(t, db, issue.ID)
	d, err := db.CreateDecision(ctx, a.ID, action.ID, "", "operator")
	require.NoError(t, err)

	ap, err := db.CreateApproval(ctx, &domain.Approval{
		DecisionID: d.ID, ApproverID: "dba-1", Verdict: domain.VerdictApproved,
	})
	require.NoError(t, err)
	require.NotZero(t, ap.ID)

	got, err := db.GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApproved, got.Status)

	// A second verdict, even an identical one, is rejected.
	_, err = db.CreateApproval(ctx, &domain.Approval{
		DecisionID: d.ID, ApproverID: "dba-2", Verdict: domain.VerdictApproved,
	})
	assert.ErrorIs(t, err, port.ErrAlreadyReviewed)

	_, err = db.CreateApproval(ctx, &domain.Approval{
		DecisionID: 9999, ApproverID: "dba-1", Verdict: domain.VerdictApproved,
	})
	assert.ErrorIs(t, err, port.ErrNotFound)

	fetched, err := db.GetApproval(ctx, ap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictApproved, fetched.Verdict)
}

func TestApprovalConcurrentReviews(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	action := seedIndexAction(t, db)
	_, issue := submitEvent(t, db, domain.CategoryQueryPerformance, "users")
	a := recordAnalysis(t, db, issue.ID)
	d, err := db.CreateDecision(ctx, a.ID, action.ID, "", "operator")
	require.NoError(t, err)

	const reviewers = 8
	errs := make([]error, reviewers)
	var wg sync.WaitGroup
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			verdict := domain.VerdictApproved
			if i%2 == 1 {
				verdict = domain.VerdictDeclined
			}
			_, errs[i] = db.CreateApproval(ctx, &domain.Approval{
				DecisionID: d.ID,
				ApproverID: fmt.Sprintf("dba-%d", i),
				Verdict:    verdict,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t,
			errors.Is(err, port.ErrAlreadyReviewed) || errors.Is(err, port.ErrConflict),
			"reviewer %d: unexpected error %v", i, err)
	}
	assert.Equal(t, 1, winners, "exactly one reviewer wins the race")

	var rows int
	require.NoError(t, db.queryRow(ctx,
		`SELECT COUNT(*) FROM approvals WHERE decision_id = ?`, d.ID).Scan(&rows))
	assert.Equal(t, 1, rows, "exactly one approval row per decision")

	got, err := db.GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Contains(t, []domain.DecisionStatus{domain.DecisionApproved, domain.DecisionDeclined}, got.Status)
}

func TestSubmitDetectionConcurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const monitors = 12
	errs := make([]error, monitors)
	var wg sync.WaitGroup
	for i := 0; i < monitors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = db.SubmitDetection(ctx, &domain.DetectionEvent{
				Source:       fmt.Sprintf("monitor-%d", i),
				ResourceType: "table",
				ResourceName: "users",
				Category:     domain.CategoryQueryPerformance,
				MetricName:   "avg_query_time_ms",
				MetricValue:  5432,
				MetricUnit:   "ms",
				Severity:     domain.SeverityHigh,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "monitor %d", i)
	}

	var open int
	require.NoError(t, db.queryRow(ctx,
		`SELECT COUNT(*) FROM issues WHERE category = ? AND resource_name = ?`,
		domain.CategoryQueryPerformance, "users").Scan(&open))
	assert.Equal(t, 1, open, "concurrent submissions collapse onto one issue")

	issues, err := db.ListIssues(ctx, port.IssueFilter{Category: domain.CategoryQueryPerformance})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.EqualValues(t, monitors, issues[0].OccurrenceCount)
}

func TestExecutionExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, ap := pipelineToApproval(t, db, "users")
	params := map[string]string{"index_name": "idx_users_email", "table": "users", "columns": "email"}

	ex, err := db.CreateExecution(ctx, ap.ID, params)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionQueued, ex.Status)
	assert.Equal(t, params, ex.Params)
	assert.True(t, ex.RollbackAvailable)

	// The uniqueness constraint, not a lock, rejects the double start.
	_, err = db.CreateExecution(ctx, ap.ID, params)
	assert.ErrorIs(t, err, port.ErrConflict)

	_, err = db.CreateExecution(ctx, 9999, nil)
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestExecutionRequiresApprovedVerdict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	action := seedIndexAction(t, db)
	_, issue := submitEvent(t, db, domain.CategoryQueryPerformance, "users")
	a := recordAnalysis(t, db, issue.ID)
	d, err := db.CreateDecision(ctx, a.ID, action.ID, "", "operator")
	require.NoError(t, err)
	ap, err := db.CreateApproval(ctx, &domain.Approval{
		DecisionID: d.ID, ApproverID: "dba-1", Verdict: domain.VerdictDeclined,
	})
	require.NoError(t, err)

	_, err = db.CreateExecution(ctx, ap.ID, nil)
	assert.ErrorIs(t, err, port.ErrPolicyViolation)
}

func TestClaimAndFinishExecution(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, ap := pipelineToApproval(t, db, "users")
	ex, err := db.CreateExecution(ctx, ap.ID, map[string]string{
		"index_name": "idx_users_email", "table": "users", "columns": "email",
	})
	require.NoError(t, err)

	claimed, err := db.ClaimQueuedExecution(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, ex.ID, claimed.ID)
	assert.Equal(t, domain.ExecutionInProgress, claimed.Status)
	require.NotNil(t, claimed.StartedAt)

	// The queue is drained; the next claim comes back empty, not an error.
	empty, err := db.ClaimQueuedExecution(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)

	res := domain.ExecutionResult{
		Outcome:       domain.OutcomeSuccess,
		AffectedCount: 42,
		Duration:      1500 * time.Millisecond,
	}
	require.NoError(t, db.FinishExecution(ctx, ex.ID, res))

	done, err := db.GetExecution(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, done.Status)
	assert.Equal(t, domain.OutcomeSuccess, done.Outcome)
	assert.EqualValues(t, 42, done.AffectedCount)
	assert.EqualValues(t, 1500, done.DurationMS)
	require.NotNil(t, done.FinishedAt)

	// Finishing twice is a conflict, not a rewrite.
	assert.ErrorIs(t, db.FinishExecution(ctx, ex.ID, res), port.ErrConflict)
}

func TestFinishFailedExecution(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, ap := pipelineToApproval(t, db, "users")
	ex, err := db.CreateExecution(ctx, ap.ID, map[string]string{
		"index_name": "idx", "table": "users", "columns": "email",
	})
	require.NoError(t, err)

	_, err = db.ClaimQueuedExecution(ctx)
	require.NoError(t, err)

	require.NoError(t, db.FinishExecution(ctx, ex.ID, domain.ExecutionResult{
		Outcome:     domain.OutcomeFailed,
		ErrorDetail: "lock timeout while building index",
		Duration:    80 * time.Millisecond,
	}))

	done, err := db.GetExecution(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, done.Status)
	assert.Equal(t, domain.OutcomeFailed, done.Outcome)
	assert.Equal(t, "lock timeout while building index", done.ErrorDetail)
}

func TestLearningRecordsAndFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, usersIssue := submitEvent(t, db, domain.CategoryQueryPerformance, "users")
	_, ordersIssue := submitEvent(t, db, domain.CategoryDeadlock, "orders")

	improvement := 68.0
	confidence := 0.92
	_, err := db.CreateLearningRecord(ctx, &domain.LearningRecord{
		IssueID:              usersIssue.ID,
		Resolved:             true,
		ImprovementPercent:   &improvement,
		ConfidenceAtDecision: &confidence,
		TimeToResolutionMS:   90000,
	})
	require.NoError(t, err)
	_, err = db.CreateLearningRecord(ctx, &domain.LearningRecord{
		IssueID:  ordersIssue.ID,
		Resolved: false,
		Notes:    "rollback simulated, deadlock recurred",
	})
	require.NoError(t, err)

	all, err := db.ListLearningRecords(ctx, port.LearningFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	resolved := true
	got, err := db.ListLearningRecords(ctx, port.LearningFilter{Resolved: &resolved})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, usersIssue.ID, got[0].IssueID)
	require.NotNil(t, got[0].ImprovementPercent)
	assert.InDelta(t, 68.0, *got[0].ImprovementPercent, 0.0001)

	got, err = db.ListLearningRecords(ctx, port.LearningFilter{Category: domain.CategoryDeadlock})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ordersIssue.ID, got[0].IssueID)

	future := time.Now().UTC().Add(time.Hour)
	got, err = db.ListLearningRecords(ctx, port.LearningFilter{Since: &future})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPipelineStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d, ap := pipelineToApproval(t, db, "users")
	ex, err := db.CreateExecution(ctx, ap.ID, map[string]string{
		"index_name": "idx", "table": "users", "columns": "email",
	})
	require.NoError(t, err)
	_, err = db.ClaimQueuedExecution(ctx)
	require.NoError(t, err)
	require.NoError(t, db.FinishExecution(ctx, ex.ID, domain.ExecutionResult{
		Outcome: domain.OutcomeSuccess, AffectedCount: 1, Duration: time.Second,
	}))

	stats, err := db.PipelineStats(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 1, stats.IssuesByStatus[string(domain.IssueDetected)])
	require.Len(t, stats.Decisions, 1)
	assert.Equal(t, string(domain.DecisionApproved), stats.Decisions[0].Status)
	assert.InDelta(t, d.Confidence, stats.Decisions[0].AvgConfidence, 0.0001)
	require.Len(t, stats.Executions, 1)
	assert.Equal(t, string(domain.OutcomeSuccess), stats.Executions[0].Outcome)
	require.Len(t, stats.Calibration, 1)
	assert.Equal(t, string(domain.OutcomeSuccess), stats.Calibration[0].Outcome)
}

func TestAuditRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.WriteAudit("dba-1", "http_request", "api", "/api/v1/decisions", `{"status":201}`, "127.0.0.1", "curl"))
	require.NoError(t, db.WriteAudit("anonymous", "http_request", "api", "/health", `{"status":200}`, "127.0.0.1", "kube-probe"))

	logs, err := db.ListAuditLogs(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = db.ListAuditLogs(ctx, 10, "http_request")
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}
