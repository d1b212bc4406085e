// Package runner drives a scenario through its phases. A runner executes at
// most one scenario at a time, its progress is published through a status tracker.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/litmuschaos/litmus-scenarios/pkg/events"
	"github.com/litmuschaos/litmus-scenarios/pkg/executor"
	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/litmuschaos/litmus-scenarios/pkg/math"
	"github.com/litmuschaos/litmus-scenarios/pkg/result"
	"github.com/litmuschaos/litmus-scenarios/pkg/scheduler"
	"github.com/litmuschaos/litmus-scenarios/pkg/status"
	"github.com/litmuschaos/litmus-scenarios/pkg/telemetry"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultStatusTick is the interval at which the elapsed time is published
const DefaultStatusTick = 500 * time.Millisecond

// Runner executes scenarios one at a time
type Runner struct {
	executor   *executor.Executor
	tracker    *status.Tracker
	sink       result.Sink
	recorder   *events.Recorder
	statusTick time.Duration

	mu      sync.Mutex
	state   types.RunState
	current *RunHandle
}

// Option configures a Runner
type Option func(*Runner)

// WithTracker publishes progress to tracker
func WithTracker(tracker *status.Tracker) Option {
	return func(r *Runner) { r.tracker = tracker }
}

// WithSink persists completed and stopped runs to sink
func WithSink(sink result.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithRecorder emits run, phase and injection events to recorder
func WithRecorder(recorder *events.Recorder) Option {
	return func(r *Runner) { r.recorder = recorder }
}

// WithStatusTick sets the status refresh interval
func WithStatusTick(tick time.Duration) Option {
	return func(r *Runner) {
		if tick > 0 {
			r.statusTick = tick
		}
	}
}

// New returns an idle runner executing injections through exec
func New(exec *executor.Executor, opts ...Option) *Runner {
	r := &Runner{
		executor:   exec,
		statusTick: DefaultStatusTick,
		state:      types.StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracker == nil {
		r.tracker = status.NewTracker(status.DefaultRecentLimit)
	}
	return r
}

// RunHandle follows one run started by Start
type RunHandle struct {
	ID       string
	Scenario string

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	state  types.RunState
	result types.ScenarioResult
	err    error
}

// Done is closed once the run reached a terminal state and every fault was reverted
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run is over and returns its result. The error is set
// for failed runs only, the result is valid in every case.
func (h *RunHandle) Wait() (types.ScenarioResult, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// State returns the current state of the run
func (h *RunHandle) State() types.RunState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Stop requests the run to stop, live faults are reverted before Done closes
func (h *RunHandle) Stop() {
	h.cancel()
}

// Start begins a run and returns without waiting for it. It fails with
// cerrors.ErrAlreadyRunning while another run is in progress.
func (r *Runner) Start(ctx context.Context, scenario types.Scenario) (*RunHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == types.StateRunning {
		return nil, cerrors.ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := &RunHandle{
		ID:       uuid.New().String(),
		Scenario: scenario.Name,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    types.StateRunning,
	}
	r.state = types.StateRunning
	r.current = handle

	owned := scenario.Clone()
	started := time.Now()
	r.tracker.Begin(handle.ID, owned.Name, expectedTotal(owned), started)
	log.InfoWithValues("[Info]: Starting the scenario with the following details", map[string]interface{}{
		"RunID":    handle.ID,
		"Scenario": owned.Name,
		"Duration": owned.Duration,
		"Phases":   len(owned.Phases),
	})

	go r.execute(runCtx, handle, owned, started)
	return handle, nil
}

// Run starts the scenario and blocks until it is over
func (r *Runner) Run(ctx context.Context, scenario types.Scenario) (types.ScenarioResult, error) {
	handle, err := r.Start(ctx, scenario)
	if err != nil {
		return types.ScenarioResult{}, err
	}
	return handle.Wait()
}

// RequestStop stops the current run. It has no effect when nothing is running.
func (r *Runner) RequestStop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == types.StateRunning && r.current != nil {
		log.Info("[Abort]: Stop requested, reverting live faults")
		r.current.cancel()
	}
}

// State returns the state of the last run, idle before the first one
func (r *Runner) State() types.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status returns a snapshot of the run progress
func (r *Runner) Status() status.Snapshot {
	return r.tracker.Snapshot()
}

// Recent returns the summaries of the latest runs, newest first
func (r *Runner) Recent() []types.ResultSummary {
	return r.tracker.Recent()
}

func (r *Runner) execute(ctx context.Context, handle *RunHandle, scenario types.Scenario, started time.Time) {
	ctx, span := telemetry.StartSpan(ctx, "Scenario:"+scenario.Name,
		attribute.String("chaos.run_id", handle.ID),
		attribute.Int("chaos.phases", len(scenario.Phases)),
	)
	exec := r.executor.WithEvents(r.recorder, handle.ID, scenario.Name)
	r.emit(events.Event{Type: events.RunStarted, RunID: handle.ID, Scenario: scenario.Name})

	res := types.ScenarioResult{ScenarioName: scenario.Name, StartedAt: started}
	state, err := r.phases(ctx, exec, handle, scenario, started, &res)
	if err == nil && ctx.Err() != nil {
		state = types.StateStopped
	}
	res.TotalDuration = time.Since(started)
	for _, phase := range res.PhaseResults {
		res.TotalInjections += phase.InjectionCount
	}

	if state != types.StateFailed {
		r.persist(handle.ID, res)
	}
	r.tracker.Finish(state, res.TotalDuration, err)
	telemetry.EndSpan(span, err)
	r.emit(events.Event{Type: events.RunFinished, RunID: handle.ID, Scenario: scenario.Name, Result: &res, State: string(state), Err: err})

	log.InfoWithValues("[The End]: Scenario finished", map[string]interface{}{
		"RunID":       handle.ID,
		"State":       state,
		"Duration":    res.TotalDuration.Round(time.Millisecond),
		"SuccessRate": fmt.Sprintf("%.2f", res.SuccessRate()),
	})

	handle.mu.Lock()
	handle.state = state
	handle.result = res
	handle.err = err
	handle.mu.Unlock()

	r.mu.Lock()
	r.state = state
	r.mu.Unlock()

	handle.cancel()
	close(handle.done)
}

// phases runs the timeline and appends one result per entered phase. It
// returns StateFailed with the cause for scenario level defects.
func (r *Runner) phases(ctx context.Context, exec *executor.Executor, handle *RunHandle, scenario types.Scenario, started time.Time, res *types.ScenarioResult) (state types.RunState, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("[Error]: Runner panicked, %v\n%s", p, debug.Stack())
			state, err = types.StateFailed, cerrors.Generic{Phase: "run", Reason: fmt.Sprintf("panic: %v", p)}
		}
	}()

	windows, err := scheduler.Timeline(scenario)
	if err != nil {
		log.Errorf("[Error]: Invalid scenario timing, err: %v", err)
		return types.StateFailed, err
	}
	if skipped := len(scenario.Phases) - len(windows); skipped > 0 {
		log.Warnf("[Info]: %d phase(s) start after the scenario duration and will not run", skipped)
	}

	ticker := r.startTicker(started)
	defer ticker()

	for _, window := range windows {
		if ctx.Err() != nil {
			return types.StateStopped, nil
		}
		phase := scenario.Phases[window.Phase]
		// a phase never holds longer than its own duration, nor past its window end
		budget := math.Maximum(math.Minimum(window.Duration, window.End()-time.Since(started)), 0)
		plan, err := scheduler.PlanPhase(phase, budget)
		if err != nil {
			log.Errorf("[Error]: Unable to plan phase %s, err: %v", phase.Name, err)
			return types.StateFailed, err
		}

		res.PhaseResults = append(res.PhaseResults, r.runPhase(ctx, exec, handle, window, phase, plan, started))
	}
	return types.StateCompleted, nil
}

func (r *Runner) runPhase(ctx context.Context, exec *executor.Executor, handle *RunHandle, window scheduler.Window, phase types.Phase, plan scheduler.Plan, started time.Time) types.PhaseResult {
	ctx, span := telemetry.StartSpan(ctx, "Phase:"+phase.Name,
		attribute.String("chaos.mode", string(plan.Mode)),
		attribute.Int("chaos.injections", len(phase.Injections)),
	)
	defer span.End()

	phaseStart := time.Now()
	r.tracker.Progress(window.Phase, phase.Name, phaseStart.Sub(started))
	r.emit(events.Event{Type: events.PhaseStarted, RunID: handle.ID, Scenario: handle.Scenario, Phase: phase.Name})
	log.Infof("[Chaos]: Phase %s started, mode: %s, budget: %v", phase.Name, plan.Mode, plan.Budget.Round(time.Millisecond))

	active := newActiveSet(r.tracker)
	outcomes := make([]types.InjectionOutcome, len(plan.Slots))
	run := func(slot scheduler.Slot) {
		injection := phase.Injections[slot.Index]
		hold := time.Until(phaseStart.Add(slot.End()))
		if hold <= 0 || slot.Duration <= 0 {
			outcomes[slot.Index] = skipped(phase.Name, slot.Index, injection, "phase budget exhausted")
			return
		}
		desc := fmt.Sprintf("%s %s", injection.Type, injection.Target)
		active.add(desc)
		defer active.remove(desc)
		outcomes[slot.Index] = exec.RunInjection(ctx, phase.Name, slot.Index, injection, hold)
	}

	switch plan.Mode {
	case types.Concurrent:
		var g errgroup.Group
		for _, slot := range plan.Slots {
			slot := slot
			g.Go(func() error {
				run(slot)
				return nil
			})
		}
		g.Wait()
	default:
		for _, slot := range plan.Slots {
			if ctx.Err() != nil {
				injection := phase.Injections[slot.Index]
				outcomes[slot.Index] = skipped(phase.Name, slot.Index, injection, "stop requested")
				continue
			}
			run(slot)
		}
	}

	pr := types.PhaseResult{Name: phase.Name, Duration: time.Since(phaseStart)}
	for _, outcome := range outcomes {
		pr.Record(outcome)
	}
	r.emit(events.Event{Type: events.PhaseCompleted, RunID: handle.ID, Scenario: handle.Scenario, Phase: phase.Name, PhaseResult: &pr})
	log.Infof("[Chaos]: Phase %s completed, injections: %d, succeeded: %d, failed: %d", pr.Name, pr.InjectionCount, pr.Succeeded, pr.Failed)
	return pr
}

// expectedTotal is the scenario duration, or the length of its timeline when unbounded
func expectedTotal(scenario types.Scenario) time.Duration {
	if scenario.Duration != 0 {
		return scenario.Duration
	}
	windows, err := scheduler.Timeline(scenario)
	if err != nil {
		return 0
	}
	return scheduler.Span(windows)
}

func (r *Runner) startTicker(started time.Time) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.statusTick)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.tracker.Tick(time.Since(started))
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (r *Runner) persist(runID string, res types.ScenarioResult) {
	summary := types.Summarize(runID, "", res)
	if r.sink != nil {
		saved, err := r.sink.Save(res)
		if err != nil {
			log.Errorf("[Result]: Unable to save the result of %s, err: %v", res.ScenarioName, err)
		} else {
			summary = saved
		}
	}
	r.tracker.AddResult(summary)
}

func (r *Runner) emit(e events.Event) {
	r.recorder.Emit(e)
}

func skipped(phase string, index int, injection types.Injection, reason string) types.InjectionOutcome {
	return types.InjectionOutcome{
		Phase:     phase,
		Index:     index,
		Kind:      injection.Type,
		Target:    injection.Target,
		Status:    types.OutcomeSkipped,
		Reason:    reason,
		StartedAt: time.Now(),
	}
}

// activeSet mirrors the live injections of a phase into the tracker
type activeSet struct {
	mu      sync.Mutex
	tracker *status.Tracker
	live    map[string]int
}

func newActiveSet(tracker *status.Tracker) *activeSet {
	return &activeSet{tracker: tracker, live: map[string]int{}}
}

func (a *activeSet) add(desc string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live[desc]++
	a.publish()
}

func (a *activeSet) remove(desc string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live[desc]--
	if a.live[desc] <= 0 {
		delete(a.live, desc)
	}
	a.publish()
}

func (a *activeSet) publish() {
	names := make([]string, 0, len(a.live))
	for name := range a.live {
		names = append(names, name)
	}
	sort.Strings(names)
	a.tracker.SetActive(names)
}
