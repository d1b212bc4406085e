package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/injector"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
)

// Handle owns one live fault. It can only be created by the executor and
// its revert runs at most once, whichever exit path triggers it.
type Handle struct {
	kind       types.InjectionKind
	target     string
	acquiredAt time.Time
	effect     *injector.Effect
	revert     func(context.Context, *injector.Effect) error

	once     sync.Once
	mu       sync.Mutex
	reverted bool
	err      error
	took     time.Duration
}

func newHandle(effect *injector.Effect, revert func(context.Context, *injector.Effect) error) *Handle {
	return &Handle{
		kind:       effect.Kind,
		target:     effect.Target.Identity(),
		acquiredAt: effect.AppliedAt,
		effect:     effect,
		revert:     revert,
	}
}

// Kind returns the injector kind of the live fault
func (h *Handle) Kind() types.InjectionKind { return h.kind }

// AcquiredAt returns the time the fault was applied
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// Reverted reports whether the revert action has run
func (h *Handle) Reverted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reverted
}

// Revert invokes the revert action exactly once and returns its error on every call
func (h *Handle) Revert(ctx context.Context) error {
	h.once.Do(func() {
		start := time.Now()
		err := h.invoke(ctx)
		h.mu.Lock()
		h.reverted = true
		h.err = err
		h.took = time.Since(start)
		h.mu.Unlock()
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during revert: %v", r)
		}
	}()
	return h.revert(ctx, h.effect)
}

func (h *Handle) revertDuration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.took
}
