package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dbmend/dbmend/internal/adapter/rules"
	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// DecisionService proposes catalog actions for analyzed issues. A proposal is
// the last step any automated path takes: everything after it waits for a
// human verdict.
type DecisionService struct {
	store    port.Store
	rulebook *rules.Rulebook
}

// NewDecisionService creates a new decision service. rulebook may be nil, in
// which case the advisor pass only routes analyses to human review.
func NewDecisionService(s port.Store, rulebook *rules.Rulebook) *DecisionService {
	return &DecisionService{store: s, rulebook: rulebook}
}

// Propose binds an analysis to a whitelisted action and records a pending
// decision. A disabled or unknown action is a policy violation with no
// override. The issue advances to decision-made.
func (s *DecisionService) Propose(ctx context.Context, analysisID, actionID int64, rationale, proposedBy string) (*domain.Decision, error) {
	if proposedBy == "" {
		proposedBy = "operator"
	}
	d, err := s.store.CreateDecision(ctx, analysisID, actionID, rationale, proposedBy)
	if err != nil {
		if errors.Is(err, port.ErrPolicyViolation) {
			slog.Warn("decision proposal rejected",
				"analysis_id", analysisID,
				"action_id", actionID,
				"proposed_by", proposedBy,
				"error", err)
			detail := fmt.Sprintf(`{"analysis_id":%d,"action_id":%d,"error":%q}`, analysisID, actionID, err.Error())
			if auditErr := s.store.WriteAudit(proposedBy, domain.AuditActionPolicyViolation, "decision", "", detail, "", ""); auditErr != nil {
				slog.Error("failed to write audit log", "error", auditErr)
			}
		}
		return nil, err
	}
	if err := s.store.AdvanceIssueStatus(ctx, d.IssueID, domain.IssueDecisionMade); err != nil {
		return nil, fmt.Errorf("advance issue: %w", err)
	}

	slog.Info("decision proposed",
		"decision_id", d.ID,
		"issue_id", d.IssueID,
		"action_id", d.ActionID,
		"confidence", d.Confidence,
		"proposed_by", proposedBy)
	return d, nil
}

// Get returns one decision by id.
func (s *DecisionService) Get(ctx context.Context, id int64) (*domain.Decision, error) {
	return s.store.GetDecision(ctx, id)
}

// List returns decisions, optionally filtered to one status, newest first.
func (s *DecisionService) List(ctx context.Context, status string, limit int) ([]domain.Decision, error) {
	return s.store.ListDecisions(ctx, status, limit)
}

// Advice describes what the advisor pass did with one analysis.
type Advice struct {
	AnalysisID int64   `json:"analysis_id"`
	IssueID    int64   `json:"issue_id"`
	Category   string  `json:"category"`
	Action     string  `json:"action,omitempty"`
	Path       string  `json:"path"`
	Confidence float64 `json:"confidence"`
	DecisionID int64   `json:"decision_id,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Advise scans analyses that no decision references yet and applies the
// rulebook. An analysis whose category has an auto rule and whose confidence
// clears the rule's threshold gets a pending decision proposed on its behalf;
// everything else is routed to human review and the issue advances to
// awaiting-decision. Either way the human gate is untouched: auto here means
// auto-proposed, never auto-approved.
func (s *DecisionService) Advise(ctx context.Context, limit int) ([]Advice, error) {
	analyses, err := s.store.ListUnproposedAnalyses(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unproposed analyses: %w", err)
	}

	cycleID := uuid.NewString()
	advice := make([]Advice, 0, len(analyses))
	for _, a := range analyses {
		issue, err := s.store.GetIssue(ctx, a.IssueID)
		if err != nil {
			return advice, fmt.Errorf("load issue %d: %w", a.IssueID, err)
		}
		if issue.Status.Terminal() {
			continue
		}

		item := Advice{
			AnalysisID: a.ID,
			IssueID:    issue.ID,
			Category:   issue.Category,
			Path:       rules.PathReview,
			Confidence: a.Confidence,
		}

		rule, ok := s.rulebook.RuleFor(issue.Category)
		if ok {
			item.Action = rule.Action
			item.Reason = rule.Reason
			if rule.Path == rules.PathAuto && a.Confidence >= rule.Confidence {
				action, err := s.store.GetActionByName(ctx, rule.Action)
				if err != nil {
					return advice, fmt.Errorf("rulebook action %q: %w", rule.Action, err)
				}
				d, err := s.Propose(ctx, a.ID, action.ID, rule.Reason, "rulebook")
				if err != nil {
					if errors.Is(err, port.ErrPolicyViolation) || errors.Is(err, port.ErrConflict) {
						slog.Warn("advisor proposal skipped",
							"cycle_id", cycleID, "analysis_id", a.ID, "error", err)
						advice = append(advice, item)
						continue
					}
					return advice, err
				}
				item.Path = rules.PathAuto
				item.DecisionID = d.ID
				advice = append(advice, item)
				continue
			}
		}

		if err := s.store.AdvanceIssueStatus(ctx, issue.ID, domain.IssueAwaitingDecision); err != nil {
			return advice, fmt.Errorf("advance issue: %w", err)
		}
		advice = append(advice, item)
	}

	slog.Info("advisor pass complete", "cycle_id", cycleID, "analyses", len(analyses))
	return advice, nil
}
