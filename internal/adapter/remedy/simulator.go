package remedy

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

// Simulator is an executor that performs no real mutation. Every run is
// logged with its rendered command and reported as if it had been applied,
// which keeps the rest of the pipeline honest while the surrounding system
// is still being trusted with real actions.
type Simulator struct {
	// Latency delays each run to mimic a real remediation. Zero means none.
	Latency time.Duration
}

// NewSimulator creates a simulated executor.
func NewSimulator(latency time.Duration) *Simulator {
	return &Simulator{Latency: latency}
}

// Execute implements port.Executor.
func (s *Simulator) Execute(ctx context.Context, run port.ActionRun) domain.ExecutionResult {
	start := time.Now()

	slog.Info("simulating remediation",
		"execution_id", run.ExecutionID,
		"decision_id", run.DecisionID,
		"action", run.Action.Name,
		"risk_level", run.Action.RiskLevel,
		"command", run.Command,
	)

	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return domain.ExecutionResult{
				Outcome:     domain.OutcomeFailed,
				ErrorDetail: fmt.Sprintf("simulation interrupted: %v", ctx.Err()),
				Duration:    time.Since(start),
			}
		}
	}

	return domain.ExecutionResult{
		Outcome:       domain.OutcomeSuccess,
		AffectedCount: simulatedAffected(run.Command),
		ErrorDetail:   "",
		Duration:      time.Since(start),
	}
}

// simulatedAffected derives a stable, plausible affected-row count from the
// rendered command so repeated simulations of the same action agree.
func simulatedAffected(command string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(command))
	return int64(h.Sum32() % 1000)
}
