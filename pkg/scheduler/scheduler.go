// Package scheduler turns scenario timing into plans. It never runs a fault,
// the runner consumes the plans and drives the executor.
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/litmuschaos/litmus-scenarios/pkg/math"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
)

// Window is the slice of wall-clock time given to one phase, relative to run start
type Window struct {
	Phase    int
	Name     string
	Start    time.Duration
	Duration time.Duration
	// Truncated is set when the scenario total cut the phase short
	Truncated bool
}

// End returns the offset at which the window closes
func (w Window) End() time.Duration {
	return w.Start + w.Duration
}

// Timeline lays the phases end to end. Phases starting at or after the scenario
// total are dropped and a phase crossing the total is truncated to the remaining time.
// A scenario without a total runs every phase in full.
func Timeline(scenario types.Scenario) ([]Window, error) {
	if scenario.Duration < 0 {
		return nil, cerrors.Scheduling{Reason: fmt.Sprintf("negative scenario duration %v", scenario.Duration)}
	}
	if err := Check(scenario); err != nil {
		return nil, err
	}

	var (
		windows []Window
		start   time.Duration
	)
	for i, phase := range scenario.Phases {
		if scenario.Duration > 0 && start >= scenario.Duration {
			break
		}
		w := Window{Phase: i, Name: phase.Name, Start: start, Duration: phase.Duration}
		if scenario.Duration > 0 && w.End() > scenario.Duration {
			w.Duration = scenario.Duration - start
			w.Truncated = true
		}
		windows = append(windows, w)
		start += phase.Duration
	}
	return windows, nil
}

// Span returns the offset at which the last window closes
func Span(windows []Window) time.Duration {
	if len(windows) == 0 {
		return 0
	}
	return windows[len(windows)-1].End()
}

// Check rejects timing values no plan can be built from
func Check(scenario types.Scenario) error {
	for _, phase := range scenario.Phases {
		if phase.Duration < 0 {
			return cerrors.Scheduling{Phase: phase.Name, Reason: fmt.Sprintf("negative duration %v", phase.Duration)}
		}
		for i, injection := range phase.Injections {
			if injection.Duration < 0 {
				return cerrors.Scheduling{Phase: phase.Name, Reason: fmt.Sprintf("injection %d has negative duration %v", i, injection.Duration)}
			}
		}
	}
	return nil
}

// Slot is the hold window of one injection, relative to phase start
type Slot struct {
	Index    int
	Start    time.Duration
	Duration time.Duration
}

// End returns the offset at which the slot closes
func (s Slot) End() time.Duration {
	return s.Start + s.Duration
}

// Plan is the schedule of one phase
type Plan struct {
	Mode   types.SchedulingMode
	Budget time.Duration
	Slots  []Slot
}

// PlanPhase splits budget among the phase injections.
//
// Sequential slots run back to back: each gets the remaining budget divided evenly
// among the remaining injections, capped by its own explicit duration. The last
// slot absorbs whatever is left. Concurrent slots all start at zero and last for
// the budget or their shorter explicit duration.
func PlanPhase(phase types.Phase, budget time.Duration) (Plan, error) {
	if budget < 0 {
		return Plan{}, cerrors.Scheduling{Phase: phase.Name, Reason: fmt.Sprintf("negative budget %v", budget)}
	}
	if err := Check(types.Scenario{Phases: []types.Phase{phase}}); err != nil {
		return Plan{}, err
	}

	plan := Plan{Mode: phase.EffectiveMode(), Budget: budget, Slots: make([]Slot, 0, len(phase.Injections))}
	switch plan.Mode {
	case types.Concurrent:
		for i, injection := range phase.Injections {
			plan.Slots = append(plan.Slots, Slot{Index: i, Duration: math.MinimumPositive(budget, injection.Duration)})
		}
	case types.Sequential:
		var (
			start     time.Duration
			remaining = budget
			n         = len(phase.Injections)
		)
		for i, injection := range phase.Injections {
			share := remaining
			if i < n-1 {
				share = remaining / time.Duration(n-i)
			}
			share = math.MinimumPositive(share, injection.Duration)
			plan.Slots = append(plan.Slots, Slot{Index: i, Start: start, Duration: share})
			start += share
			remaining -= share
		}
	default:
		return Plan{}, cerrors.Scheduling{Phase: phase.Name, Reason: fmt.Sprintf("unknown scheduling mode '%s'", phase.Mode)}
	}
	return plan, nil
}

// Active returns the indices of the injections that should be live at elapsed
func (p Plan) Active(elapsed time.Duration) []int {
	var active []int
	for _, slot := range p.Slots {
		if slot.Start <= elapsed && elapsed < slot.End() {
			active = append(active, slot.Index)
		}
	}
	sort.Ints(active)
	return active
}

// End returns the offset at which the last slot closes
func (p Plan) End() time.Duration {
	var end time.Duration
	for _, slot := range p.Slots {
		if slot.End() > end {
			end = slot.End()
		}
	}
	return end
}
