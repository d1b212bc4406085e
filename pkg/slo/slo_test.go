package slo

import (
	"testing"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/events"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completed(status types.OutcomeStatus, revert time.Duration) events.Event {
	outcome := &types.InjectionOutcome{Status: status, Held: time.Second, Revert: revert}
	if status != types.OutcomeFailed {
		outcome.AppliedAt = time.Now()
	}
	return events.Event{Type: events.InjectionCompleted, Outcome: outcome}
}

func TestTrackerReport(t *testing.T) {
	tracker := NewTracker()
	assert.Equal(t, Report{}, tracker.Report())

	tracker.Handle(completed(types.OutcomeSucceeded, 10*time.Millisecond))
	tracker.Handle(completed(types.OutcomeSucceeded, 30*time.Millisecond))
	tracker.Handle(completed(types.OutcomeRevertFailed, 200*time.Millisecond))
	tracker.Handle(completed(types.OutcomeFailed, 0))
	tracker.Handle(completed(types.OutcomeSkipped, 0))
	tracker.Handle(events.Event{Type: events.InjectionApplied, Outcome: &types.InjectionOutcome{Status: types.OutcomeSucceeded}})

	report := tracker.Report()
	assert.Equal(t, 4, report.Outcomes)
	assert.Equal(t, 1, report.RevertFailures)
	assert.Equal(t, time.Second, report.HoldMean)
	assert.InDelta(t, float64(80*time.Millisecond), float64(report.RevertMean), float64(time.Microsecond))
	assert.InDelta(t, float64(200*time.Millisecond), float64(report.RevertMax), float64(time.Microsecond))
	assert.GreaterOrEqual(t, report.RevertP99, 30*time.Millisecond)
}

func TestEvaluate(t *testing.T) {
	result := types.ScenarioResult{PhaseResults: []types.PhaseResult{{InjectionCount: 10, Succeeded: 8, Failed: 2}}}
	report := Report{RevertFailures: 2, RevertP99: 2 * time.Second}

	assert.Empty(t, Evaluate(result, report, Objectives{}))
	assert.False(t, Objectives{}.Enabled())

	violations := Evaluate(result, report, Objectives{MinSuccessRate: 0.9, MaxRevertFailures: 1, MaxRevertP99: time.Second})
	require.Len(t, violations, 3)
	assert.Equal(t, "success_rate", violations[0].Objective)
	assert.Equal(t, "0.80", violations[0].Observed)
	assert.Equal(t, "revert_failures: expected <= 1, observed 2", violations[1].String())
	assert.Equal(t, "revert_latency_p99", violations[2].Objective)

	assert.Empty(t, Evaluate(result, report, Objectives{MinSuccessRate: 0.8}))
}
