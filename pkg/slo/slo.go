// Package slo checks a finished run against service level objectives.
package slo

import (
	"fmt"
	"sync"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/events"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/montanaflynn/stats"
)

// Objectives are the thresholds a run is held to. Zero values disable a check.
type Objectives struct {
	MinSuccessRate    float64       `mapstructure:"min_success_rate"`
	MaxRevertFailures int           `mapstructure:"max_revert_failures"`
	MaxRevertP99      time.Duration `mapstructure:"max_revert_p99"`
}

// Enabled reports whether any objective is set
func (o Objectives) Enabled() bool {
	return o.MinSuccessRate > 0 || o.MaxRevertFailures > 0 || o.MaxRevertP99 > 0
}

// Violation describes one objective the run missed
type Violation struct {
	Objective string
	Expected  string
	Observed  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: expected %s, observed %s", v.Objective, v.Expected, v.Observed)
}

// Report summarizes the timings collected during a run
type Report struct {
	Outcomes       int
	RevertFailures int
	HoldMean       time.Duration
	RevertMean     time.Duration
	RevertP99      time.Duration
	RevertMax      time.Duration
}

// Tracker collects injection timings from the event stream
type Tracker struct {
	mu             sync.Mutex
	holds          stats.Float64Data
	reverts        stats.Float64Data
	outcomes       int
	revertFailures int
}

// NewTracker returns an empty tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// Handle records completed injections
func (t *Tracker) Handle(e events.Event) {
	if e.Type != events.InjectionCompleted || e.Outcome == nil || !e.Outcome.Attempted() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes++
	if e.Outcome.Status == types.OutcomeRevertFailed {
		t.revertFailures++
	}
	if e.Outcome.AppliedAt.IsZero() {
		return
	}
	t.holds = append(t.holds, e.Outcome.Held.Seconds())
	t.reverts = append(t.reverts, e.Outcome.Revert.Seconds())
}

// Report computes the timing statistics seen so far
func (t *Tracker) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := Report{Outcomes: t.outcomes, RevertFailures: t.revertFailures}
	if len(t.reverts) == 0 {
		return r
	}
	r.HoldMean = seconds(stats.Mean(t.holds))
	r.RevertMean = seconds(stats.Mean(t.reverts))
	r.RevertP99 = seconds(stats.Percentile(t.reverts, 99))
	r.RevertMax = seconds(stats.Max(t.reverts))
	return r
}

// Evaluate returns the objectives the run missed
func Evaluate(result types.ScenarioResult, report Report, objectives Objectives) []Violation {
	var violations []Violation
	if objectives.MinSuccessRate > 0 && result.SuccessRate() < objectives.MinSuccessRate {
		violations = append(violations, Violation{
			Objective: "success_rate",
			Expected:  fmt.Sprintf(">= %.2f", objectives.MinSuccessRate),
			Observed:  fmt.Sprintf("%.2f", result.SuccessRate()),
		})
	}
	if objectives.MaxRevertFailures > 0 && report.RevertFailures > objectives.MaxRevertFailures {
		violations = append(violations, Violation{
			Objective: "revert_failures",
			Expected:  fmt.Sprintf("<= %d", objectives.MaxRevertFailures),
			Observed:  fmt.Sprintf("%d", report.RevertFailures),
		})
	}
	if objectives.MaxRevertP99 > 0 && report.RevertP99 > objectives.MaxRevertP99 {
		violations = append(violations, Violation{
			Objective: "revert_latency_p99",
			Expected:  fmt.Sprintf("<= %v", objectives.MaxRevertP99),
			Observed:  report.RevertP99.String(),
		})
	}
	return violations
}

func seconds(v float64, err error) time.Duration {
	if err != nil {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
