package remedy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dbmend/dbmend/internal/domain"
	"github.com/dbmend/dbmend/internal/port"
)

func testRun() port.ActionRun {
	return port.ActionRun{
		ExecutionID: 1,
		DecisionID:  1,
		Action:      domain.Action{Name: "add_missing_index", RiskLevel: domain.RiskMedium},
		Command:     "CREATE INDEX idx_users_email ON users (email)",
	}
}

func TestSimulatorExecute(t *testing.T) {
	s := NewSimulator(0)

	res := s.Execute(context.Background(), testRun())
	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Empty(t, res.ErrorDetail)

	// Same command, same simulated effect.
	again := s.Execute(context.Background(), testRun())
	assert.Equal(t, res.AffectedCount, again.AffectedCount)

	other := testRun()
	other.Command = "XA ROLLBACK '42'"
	assert.NotEqual(t, res.AffectedCount, s.Execute(context.Background(), other).AffectedCount)
}

func TestSimulatorCancelled(t *testing.T) {
	s := NewSimulator(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := s.Execute(ctx, testRun())
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.ErrorDetail, "interrupted")
}
