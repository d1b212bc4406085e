package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/litmuschaos/litmus-scenarios/pkg/events"
	"github.com/litmuschaos/litmus-scenarios/pkg/injector"
	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/litmuschaos/litmus-scenarios/pkg/target"
	"github.com/litmuschaos/litmus-scenarios/pkg/telemetry"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/litmuschaos/litmus-scenarios/pkg/utils/common"
	"github.com/litmuschaos/litmus-scenarios/pkg/utils/retry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Resolver locates the resource behind a selector
type Resolver interface {
	Resolve(ctx context.Context, selector string) (target.Resolved, error)
}

// Injectors applies and reverts faults
type Injectors interface {
	Apply(ctx context.Context, kind types.InjectionKind, resolved target.Resolved, params map[string]string) (*injector.Effect, error)
	Revert(ctx context.Context, effect *injector.Effect) error
}

// Config tunes the executor
type Config struct {
	// HoldTick is the granularity at which a hold notices cancellation
	HoldTick time.Duration
	// RevertTimeout bounds a single revert, it is never shortened by cancellation
	RevertTimeout time.Duration
	// ApplyAttempts is the number of resolve/apply attempts for transient failures
	ApplyAttempts uint
	RetryWait     time.Duration
}

// DefaultConfig holds the executor defaults
var DefaultConfig = Config{
	HoldTick:      100 * time.Millisecond,
	RevertTimeout: 30 * time.Second,
	ApplyAttempts: 1,
	RetryWait:     time.Second,
}

// Executor runs single injections through apply, hold and revert
type Executor struct {
	resolver  Resolver
	injectors Injectors
	config    Config
	recorder  *events.Recorder
	runID     string
	scenario  string
}

// New returns an executor, zero config fields fall back to DefaultConfig
func New(resolver Resolver, injectors Injectors, config Config) *Executor {
	if config.HoldTick <= 0 {
		config.HoldTick = DefaultConfig.HoldTick
	}
	if config.RevertTimeout <= 0 {
		config.RevertTimeout = DefaultConfig.RevertTimeout
	}
	if config.ApplyAttempts == 0 {
		config.ApplyAttempts = DefaultConfig.ApplyAttempts
	}
	return &Executor{resolver: resolver, injectors: injectors, config: config}
}

// WithEvents returns a copy of the executor emitting to recorder on behalf of a run
func (e *Executor) WithEvents(recorder *events.Recorder, runID, scenario string) *Executor {
	c := *e
	c.recorder = recorder
	c.runID = runID
	c.scenario = scenario
	return &c
}

// RunInjection resolves, applies, holds and reverts one injection.
// It never returns an error, every failure is captured in the outcome.
// Once apply succeeds the revert runs on every exit path, including
// cancellation of ctx and panics raised while the fault is live. Panics
// raised before the fault is live end the injection as failed.
func (e *Executor) RunInjection(ctx context.Context, phase string, index int, spec types.Injection, hold time.Duration) (outcome types.InjectionOutcome) {
	outcome = types.InjectionOutcome{
		Phase:     phase,
		Index:     index,
		Kind:      spec.Type,
		Target:    spec.Target,
		StartedAt: time.Now(),
	}
	if ctx.Err() != nil {
		outcome.Status = types.OutcomeSkipped
		outcome.Reason = "stop requested before start"
		outcome.Cancelled = true
		e.emit(events.InjectionCompleted, phase, &outcome)
		return outcome
	}

	ctx, span := telemetry.StartSpan(ctx, "Injection:"+string(spec.Type),
		attribute.String("chaos.phase", phase),
		attribute.String("chaos.target", spec.Target),
		attribute.Int("chaos.index", index),
	)
	defer func() {
		var spanErr error
		if outcome.Status != types.OutcomeSucceeded {
			spanErr = fmt.Errorf("%s: %s", outcome.Status, outcome.Reason)
		}
		telemetry.EndSpan(span, spanErr)
		e.emit(events.InjectionCompleted, phase, &outcome)
	}()

	logger := log.WithFields(logrus.Fields{"Phase": phase, "Kind": spec.Type, "Target": spec.Target})
	defer func() {
		if panicked := recover(); panicked != nil {
			if outcome.Status != types.OutcomeRevertFailed {
				outcome.Status = types.OutcomeFailed
			}
			outcome.Reason = fmt.Sprintf("panic: %v", panicked)
			logger.Errorf("[Chaos]: %s\n%s", outcome.Reason, debug.Stack())
		}
	}()

	resolved, err := e.resolve(ctx, spec.Target)
	if err != nil {
		logger.Warnf("[Target]: Unable to resolve target, err: %v", err)
		outcome.Status = types.OutcomeFailed
		outcome.Reason = err.Error()
		return outcome
	}

	effect, err := e.apply(ctx, spec, resolved)
	if err != nil {
		logger.Warnf("[Chaos]: Unable to apply fault, err: %v", err)
		outcome.Status = types.OutcomeFailed
		outcome.Reason = err.Error()
		return outcome
	}

	handle := newHandle(effect, e.injectors.Revert)
	outcome.AppliedAt = handle.AcquiredAt()
	defer e.release(ctx, handle, &outcome, logger)

	e.emit(events.InjectionApplied, phase, &outcome)

	logger.Infof("[Wait]: Holding the fault for %v", hold)
	if !common.WaitForDuration(ctx, hold, e.config.HoldTick) {
		outcome.Cancelled = true
		logger.Info("[Wait]: Stop requested, reverting early")
	}
	outcome.Held = time.Since(outcome.AppliedAt)
	outcome.Status = types.OutcomeSucceeded
	return outcome
}

// release reverts the handle. It is deferred right after a successful apply,
// so it also runs when the hold panics.
func (e *Executor) release(ctx context.Context, handle *Handle, outcome *types.InjectionOutcome, logger *logrus.Entry) {
	panicked := recover()
	if panicked != nil {
		outcome.Status = types.OutcomeFailed
		outcome.Reason = fmt.Sprintf("panic while fault was live: %v", panicked)
		outcome.Held = time.Since(outcome.AppliedAt)
		logger.Errorf("[Chaos]: %s\n%s", outcome.Reason, debug.Stack())
	}

	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.RevertTimeout)
	defer cancel()

	err := handle.Revert(revertCtx)
	outcome.Revert = handle.revertDuration()
	if err != nil {
		outcome.Status = types.OutcomeRevertFailed
		outcome.Reason = err.Error()
		log.ErrorWithValues("[Revert]: Fault could not be reverted, the target may remain degraded", map[string]interface{}{
			"Phase":  outcome.Phase,
			"Kind":   outcome.Kind,
			"Target": outcome.Target,
			"Reason": err.Error(),
		})
		return
	}
	e.emit(events.InjectionReverted, outcome.Phase, outcome)
}

func (e *Executor) resolve(ctx context.Context, selector string) (target.Resolved, error) {
	var resolved target.Resolved
	err := retry.
		Times(e.config.ApplyAttempts).
		Wait(e.config.RetryWait).
		If(transient).
		TryWithContext(ctx, func(attempt uint) error {
			var err error
			resolved, err = e.resolver.Resolve(ctx, selector)
			return err
		})
	return resolved, err
}

func (e *Executor) apply(ctx context.Context, spec types.Injection, resolved target.Resolved) (*injector.Effect, error) {
	var effect *injector.Effect
	err := retry.
		Times(e.config.ApplyAttempts).
		Wait(e.config.RetryWait).
		If(transient).
		TryWithContext(ctx, func(attempt uint) error {
			if attempt > 0 {
				log.Infof("[Retry]: Applying %s on %s, attempt %d", spec.Type, spec.Target, attempt+1)
			}
			var err error
			effect, err = e.injectors.Apply(ctx, spec.Type, resolved, spec.Parameters)
			return err
		})
	return effect, err
}

// transient reports whether a failure may go away on its own
func transient(err error) bool {
	return cerrors.HasReason(err, cerrors.ReasonTargetUnavailable)
}

func (e *Executor) emit(t events.Type, phase string, outcome *types.InjectionOutcome) {
	if e.recorder == nil {
		return
	}
	snapshot := *outcome
	e.recorder.Emit(events.Event{
		Type:     t,
		RunID:    e.runID,
		Scenario: e.scenario,
		Phase:    phase,
		Outcome:  &snapshot,
	})
}
