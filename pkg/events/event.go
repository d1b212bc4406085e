package events

import (
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/types"
)

// Type names a step of a scenario run
type Type string

const (
	RunStarted         Type = "RunStarted"
	PhaseStarted       Type = "PhaseStarted"
	InjectionApplied   Type = "InjectionApplied"
	InjectionReverted  Type = "InjectionReverted"
	InjectionCompleted Type = "InjectionCompleted"
	PhaseCompleted     Type = "PhaseCompleted"
	RunFinished        Type = "RunFinished"
)

// Event is emitted by the runner and the executor in the order things happen
type Event struct {
	Type     Type
	Time     time.Time
	RunID    string
	Scenario string
	Phase    string
	// Outcome is set on injection events
	Outcome *types.InjectionOutcome
	// PhaseResult is set on PhaseCompleted
	PhaseResult *types.PhaseResult
	// Result and State are set on RunFinished
	Result *types.ScenarioResult
	State  string
	Err    error
}

// Sink consumes events. Handle is called from a single goroutine at a time.
type Sink interface {
	Handle(Event)
}

// FuncSink adapts a function to a Sink
type FuncSink func(Event)

func (f FuncSink) Handle(e Event) {
	f(e)
}
