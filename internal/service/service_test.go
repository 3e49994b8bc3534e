package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbmend/dbmend/internal/adapter/remedy"
	"github.com/dbmend/dbmend/internal/adapter/rules"
	"github.com/dbmend/dbmend/internal/adapter/store"
	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
	"github.com/dbmend/dbmend/internal/worker"
)

type env struct {
	db        *store.DB
	ingest    *IngestService
	analysis  *AnalysisService
	decisions *DecisionService
	approvals *ApprovalService
	execs     *ExecutionService
	learning  *LearningService
	catalog   *CatalogService
}

func newEnv(t *testing.T, rulebook *rules.Rulebook) *env {
	t.Helper()
	db, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &env{
		db:        db,
		ingest:    NewIngestService(db),
		analysis:  NewAnalysisService(db),
		decisions: NewDecisionService(db, rulebook),
		approvals: NewApprovalService(db),
		execs:     NewExecutionService(db),
		learning:  NewLearningService(db),
		catalog:   NewCatalogService(db),
	}
}

func (e *env) seedAction(t *testing.T, name, template string, params []string) *domain.Action {
	t.Helper()
	err := e.db.SeedAction(context.Background(), &domain.Action{
		Name:            name,
		Category:        "schema",
		RiskLevel:       domain.RiskMedium,
		CommandTemplate: template,
		Params:          params,
		Enabled:         true,
	})
	require.NoError(t, err)
	action, err := e.db.GetActionByName(context.Background(), name)
	require.NoError(t, err)
	return action
}

func (e *env) submit(t *testing.T, category, resource string, metric float64) *domain.Issue {
	t.Helper()
	_, issue, err := e.ingest.Submit(context.Background(), &domain.DetectionEvent{
		Source:       "monitor-1",
		ResourceType: "table",
		ResourceName: resource,
		Category:     category,
		MetricName:   "avg_query_time_ms",
		MetricValue:  metric,
		MetricUnit:   "ms",
		Severity:     domain.SeverityHigh,
	})
	require.NoError(t, err)
	return issue
}

func (e *env) analyze(t *testing.T, issueID int64, confidence float64) *domain.Analysis {
	t.Helper()
	a, err := e.analysis.Record(context.Background(), &domain.Analysis{
		IssueID:      issueID,
		Hypothesis:   "missing index",
		Confidence:   confidence,
		ModelVersion: "v1",
	})
	require.NoError(t, err)
	return a
}

func (e *env) issueStatus(t *testing.T, id int64) domain.IssueStatus {
	t.Helper()
	issue, err := e.db.GetIssue(context.Background(), id)
	require.NoError(t, err)
	return issue.Status
}

func TestPipelineEndToEnd(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	action := e.seedAction(t, "add_missing_index",
		"CREATE INDEX {index_name} ON {table} ({columns})",
		[]string{"index_name", "table", "columns"})

	issue := e.submit(t, domain.CategoryQueryPerformance, "users", 5432)
	assert.Equal(t, domain.IssueDetected, issue.Status)

	a := e.analyze(t, issue.ID, 0.92)
	assert.Equal(t, domain.IssueUnderAnalysis, e.issueStatus(t, issue.ID))

	d, err := e.decisions.Propose(ctx, a.ID, action.ID, "index fixes seq scan", "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionPending, d.Status)
	assert.InDelta(t, 0.92, d.Confidence, 0.0001)
	assert.Equal(t, domain.IssueDecisionMade, e.issueStatus(t, issue.ID))

	ap, err := e.approvals.Review(ctx, d.ID, "dba-1", domain.VerdictApproved, "", "looks right")
	require.NoError(t, err)
	assert.Equal(t, domain.IssueApproved, e.issueStatus(t, issue.ID))

	ex, err := e.execs.Start(ctx, ap.ID, map[string]string{
		"index_name": "idx_users_email", "table": "users", "columns": "email",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionQueued, ex.Status)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runner := worker.NewRunner(e.db, remedy.NewSimulator(0), 1, 10*time.Millisecond, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runner.Start(runCtx)
	}()

	require.Eventually(t, func() bool {
		got, err := e.execs.Get(ctx, ex.ID)
		return err == nil && got.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	got, err := e.execs.Get(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, got.Status)
	assert.Equal(t, domain.OutcomeSuccess, got.Outcome)
	assert.Equal(t, domain.IssueResolved, e.issueStatus(t, issue.ID))

	improvement := 68.0
	rec, err := e.learning.Record(ctx, &domain.LearningRecord{
		IssueID:            issue.ID,
		ExecutionID:        &ex.ID,
		Resolved:           true,
		ImprovementPercent: &improvement,
	})
	require.NoError(t, err)
	require.NotNil(t, rec.ExecutionID)
	assert.Equal(t, ex.ID, *rec.ExecutionID)
	require.NotNil(t, rec.ConfidenceAtDecision, "confidence is backfilled from the decision")
	assert.InDelta(t, 0.92, *rec.ConfidenceAtDecision, 0.0001)
	assert.Positive(t, rec.TimeToResolutionMS)
}

func TestProposeDisabledActionRejected(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	action := e.seedAction(t, "optimize_query", "EXPLAIN ANALYZE {query}", []string{"query"})
	issue := e.submit(t, domain.CategorySlowQuery, "orders", 1900)
	a := e.analyze(t, issue.ID, 0.75)

	require.NoError(t, e.catalog.SetEnabled(ctx, action.ID, false, "dba-7"))

	_, err := e.decisions.Propose(ctx, a.ID, action.ID, "", "operator")
	assert.ErrorIs(t, err, port.ErrPolicyViolation)
	assert.Equal(t, domain.IssueUnderAnalysis, e.issueStatus(t, issue.ID))

	decisions, err := e.decisions.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, decisions, "a rejected proposal leaves no decision row")
}

func TestReviewDeclinedTerminatesIssue(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	action := e.seedAction(t, "kill_idle_connections", "KILL IDLE {idle_seconds}", []string{"idle_seconds"})
	issue := e.submit(t, domain.CategoryConnectionOverload, "pool-main", 180)
	a := e.analyze(t, issue.ID, 0.6)
	d, err := e.decisions.Propose(ctx, a.ID, action.ID, "", "operator")
	require.NoError(t, err)

	ap, err := e.approvals.Review(ctx, d.ID, "dba-1", domain.VerdictDeclined, "too-risky", "")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictDeclined, ap.Verdict)
	assert.Equal(t, domain.IssueDeclined, e.issueStatus(t, issue.ID))

	_, err = e.approvals.Review(ctx, d.ID, "dba-2", domain.VerdictApproved, "", "")
	assert.ErrorIs(t, err, port.ErrAlreadyReviewed)

	// Execution against a declined decision is structurally impossible.
	_, err = e.execs.Start(ctx, ap.ID, map[string]string{"idle_seconds": "300"})
	assert.ErrorIs(t, err, port.ErrPolicyViolation)
}

func TestReviewCancelledLeavesIssueOpen(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	action := e.seedAction(t, "retry_operation", "RETRY {transaction_id}", []string{"transaction_id"})
	issue := e.submit(t, domain.CategoryTransactionFailure, "tx-pool", 3)
	a := e.analyze(t, issue.ID, 0.8)
	d, err := e.decisions.Propose(ctx, a.ID, action.ID, "", "operator")
	require.NoError(t, err)

	_, err = e.approvals.Review(ctx, d.ID, "dba-1", domain.VerdictCancelled, "stale", "")
	require.NoError(t, err)
	assert.Equal(t, domain.IssueDecisionMade, e.issueStatus(t, issue.ID))

	// The issue stays open, so a fresh analysis can still be proposed.
	a2 := e.analyze(t, issue.ID, 0.85)
	d2, err := e.decisions.Propose(ctx, a2.ID, action.ID, "second attempt", "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionPending, d2.Status)
}

func TestStartExecutionValidatesParams(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	action := e.seedAction(t, "add_missing_index",
		"CREATE INDEX {index_name} ON {table} ({columns})",
		[]string{"index_name", "table", "columns"})
	issue := e.submit(t, domain.CategoryQueryPerformance, "users", 5432)
	a := e.analyze(t, issue.ID, 0.92)
	d, err := e.decisions.Propose(ctx, a.ID, action.ID, "", "operator")
	require.NoError(t, err)
	ap, err := e.approvals.Review(ctx, d.ID, "dba-1", domain.VerdictApproved, "", "")
	require.NoError(t, err)

	_, err = e.execs.Start(ctx, ap.ID, map[string]string{"table": "users"})
	assert.ErrorIs(t, err, port.ErrValidation)

	_, err = e.execs.Start(ctx, ap.ID, map[string]string{
		"index_name": "i", "table": "t", "columns": "c", "extra": "x",
	})
	assert.ErrorIs(t, err, port.ErrValidation)
}

func TestStartExecutionScreensParamValues(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	action := e.seedAction(t, "add_missing_index",
		"CREATE INDEX {index_name} ON {table} ({columns})",
		[]string{"index_name", "table", "columns"})
	issue := e.submit(t, domain.CategoryQueryPerformance, "users", 5432)
	a := e.analyze(t, issue.ID, 0.92)
	d, err := e.decisions.Propose(ctx, a.ID, action.ID, "", "operator")
	require.NoError(t, err)
	ap, err := e.approvals.Review(ctx, d.ID, "dba-1", domain.VerdictApproved, "", "")
	require.NoError(t, err)

	// A declared parameter whose value smuggles a second statement is a
	// policy violation, not a validation slip, and nothing is enqueued.
	_, err = e.execs.Start(ctx, ap.ID, map[string]string{
		"index_name": "idx_users_email",
		"table":      "users",
		"columns":    "email); DROP TABLE users",
	})
	assert.ErrorIs(t, err, port.ErrPolicyViolation)

	// The approval is untouched, so a clean retry still goes through.
	ex, err := e.execs.Start(ctx, ap.ID, map[string]string{
		"index_name": "idx_users_email",
		"table":      "users",
		"columns":    "email",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionQueued, ex.Status)
}

func TestRunnerRefusesUnsafeQueuedParams(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	action := e.seedAction(t, "add_missing_index",
		"CREATE INDEX {index_name} ON {table} ({columns})",
		[]string{"index_name", "table", "columns"})
	issue := e.submit(t, domain.CategoryQueryPerformance, "users", 5432)
	a := e.analyze(t, issue.ID, 0.92)
	d, err := e.decisions.Propose(ctx, a.ID, action.ID, "", "operator")
	require.NoError(t, err)
	ap, err := e.approvals.Review(ctx, d.ID, "dba-1", domain.VerdictApproved, "", "")
	require.NoError(t, err)

	// Enqueue straight through the store, as a row written before the
	// screen existed would have been.
	ex, err := e.db.CreateExecution(ctx, ap.ID, map[string]string{
		"index_name": "idx_users_email",
		"table":      "users",
		"columns":    "email); DROP TABLE users",
	})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runner := worker.NewRunner(e.db, remedy.NewSimulator(0), 1, 10*time.Millisecond, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runner.Start(runCtx)
	}()

	require.Eventually(t, func() bool {
		got, err := e.execs.Get(ctx, ex.ID)
		return err == nil && got.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	got, err := e.execs.Get(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, got.Status)
	assert.Equal(t, domain.OutcomeFailed, got.Outcome)
	assert.Contains(t, got.ErrorDetail, "unsafe parameters")
}

func TestAnalysisRejectedOnTerminalIssue(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	issue := e.submit(t, domain.CategoryDeadlock, "orders", 2)
	require.NoError(t, e.db.AdvanceIssueStatus(ctx, issue.ID, domain.IssueResolved))

	_, err := e.analysis.Record(ctx, &domain.Analysis{
		IssueID: issue.ID, Hypothesis: "late hypothesis", Confidence: 0.5,
	})
	assert.ErrorIs(t, err, port.ErrValidation)
}

func writeRulebook(t *testing.T) *rules.Rulebook {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rulebook.yaml")
	content := `rules:
  - category: DEADLOCK
    action: rollback_transaction
    path: auto
    confidence: 0.95
    reason: "rollback is safe and deterministic"
  - category: SLOW_QUERY
    action: optimize_query
    path: review
    confidence: 1.00
    reason: "requires human tradeoff"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	book, err := rules.NewRulebook(path, nil)
	require.NoError(t, err)
	require.NotNil(t, book)
	return book
}

func TestAdvise(t *testing.T) {
	e := newEnv(t, writeRulebook(t))
	ctx := context.Background()

	e.seedAction(t, "rollback_transaction", "XA ROLLBACK '{transaction_id}'", []string{"transaction_id"})
	e.seedAction(t, "optimize_query", "EXPLAIN ANALYZE {query}", []string{"query"})

	deadlock := e.submit(t, domain.CategoryDeadlock, "orders", 2)
	e.analyze(t, deadlock.ID, 0.97)
	slow := e.submit(t, domain.CategorySlowQuery, "reports", 2300)
	e.analyze(t, slow.ID, 0.88)

	advice, err := e.decisions.Advise(ctx, 10)
	require.NoError(t, err)
	require.Len(t, advice, 2)

	byIssue := map[int64]Advice{}
	for _, item := range advice {
		byIssue[item.IssueID] = item
	}

	auto := byIssue[deadlock.ID]
	assert.Equal(t, rules.PathAuto, auto.Path)
	require.NotZero(t, auto.DecisionID)
	d, err := e.decisions.Get(ctx, auto.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionPending, d.Status, "auto means auto-proposed, never auto-approved")
	assert.Equal(t, "rulebook", d.ProposedBy)
	assert.Equal(t, domain.IssueDecisionMade, e.issueStatus(t, deadlock.ID))

	review := byIssue[slow.ID]
	assert.Equal(t, rules.PathReview, review.Path)
	assert.Zero(t, review.DecisionID)
	assert.Equal(t, domain.IssueAwaitingDecision, e.issueStatus(t, slow.ID))
}

func TestAdviseBelowThresholdRoutesToReview(t *testing.T) {
	e := newEnv(t, writeRulebook(t))
	ctx := context.Background()

	e.seedAction(t, "rollback_transaction", "XA ROLLBACK '{transaction_id}'", []string{"transaction_id"})

	deadlock := e.submit(t, domain.CategoryDeadlock, "orders", 2)
	e.analyze(t, deadlock.ID, 0.70)

	advice, err := e.decisions.Advise(ctx, 10)
	require.NoError(t, err)
	require.Len(t, advice, 1)
	assert.Equal(t, rules.PathReview, advice[0].Path)
	assert.Zero(t, advice[0].DecisionID)
	assert.Equal(t, domain.IssueAwaitingDecision, e.issueStatus(t, deadlock.ID))
}

func TestLearningRejectsForeignExecution(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	action := e.seedAction(t, "rollback_transaction", "XA ROLLBACK '{tx}'", []string{"tx"})
	issue := e.submit(t, domain.CategoryDeadlock, "orders", 2)
	a := e.analyze(t, issue.ID, 0.95)
	d, err := e.decisions.Propose(ctx, a.ID, action.ID, "", "operator")
	require.NoError(t, err)
	ap, err := e.approvals.Review(ctx, d.ID, "dba-1", domain.VerdictApproved, "", "")
	require.NoError(t, err)
	ex, err := e.execs.Start(ctx, ap.ID, map[string]string{"tx": "42"})
	require.NoError(t, err)

	other := e.submit(t, domain.CategorySlowQuery, "reports", 900)

	_, err = e.learning.Record(ctx, &domain.LearningRecord{
		IssueID: other.ID, ExecutionID: &ex.ID, Resolved: true,
	})
	assert.ErrorIs(t, err, port.ErrValidation)

	// Still queued, so not a valid learning target for its own issue either.
	_, err = e.learning.Record(ctx, &domain.LearningRecord{
		IssueID: issue.ID, ExecutionID: &ex.ID, Resolved: true,
	})
	assert.ErrorIs(t, err, port.ErrValidation)
}
