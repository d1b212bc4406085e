package injector

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	disklib "github.com/litmuschaos/litmus-scenarios/chaoslib/litmus/disk-slow/lib"
	networklib "github.com/litmuschaos/litmus-scenarios/chaoslib/litmus/network-chaos/lib"
	processlib "github.com/litmuschaos/litmus-scenarios/chaoslib/litmus/process-kill/lib"
	stresslib "github.com/litmuschaos/litmus-scenarios/chaoslib/litmus/stress-chaos/lib"
	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/litmuschaos/litmus-scenarios/pkg/target"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/litmuschaos/litmus-scenarios/pkg/utils/exec"
	"github.com/litmuschaos/litmus-scenarios/pkg/utils/stringutils"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// MemoryInfo reports the memory currently available on the host
type MemoryInfo interface {
	AvailableMemory() (uint64, error)
}

// Effect is one live fault. It carries what the matching revert needs.
type Effect struct {
	Kind        types.InjectionKind
	Target      target.Resolved
	AppliedAt   time.Time
	Description string

	key   string
	state interface{}
}

// Injectors applies and reverts every supported fault kind
type Injectors struct {
	Runner   exec.Runner
	Memory   MemoryInfo
	Blkio    disklib.Hierarchy
	Signaler processlib.Signaler
	// Tag prefixes every host artefact created by this process
	Tag string

	mu     sync.Mutex
	active map[string]types.InjectionKind
	seq    uint64
}

// New returns injectors acting on the local host
func New(memory MemoryInfo) *Injectors {
	return &Injectors{
		Runner:   exec.LocalRunner{},
		Memory:   memory,
		Blkio:    disklib.V1Hierarchy{},
		Signaler: processlib.HostSignaler{},
		Tag:      "litmus-scenarios-" + stringutils.GetRunID(),
	}
}

// Apply installs the fault. On error nothing is left behind on the host.
func (i *Injectors) Apply(ctx context.Context, kind types.InjectionKind, resolved target.Resolved, params map[string]string) (*Effect, error) {
	parsed, err := parseParams(kind, params)
	if err != nil {
		return nil, err
	}
	if !kind.Supports(resolved.Capability()) {
		return nil, unsupported(kind, "cannot act on %s target %s", resolved.Capability(), resolved.Identity())
	}

	key := string(kind) + "|" + resolved.Identity()
	if err := i.reserve(key, kind); err != nil {
		return nil, err
	}

	effect := &Effect{Kind: kind, Target: resolved, key: key}
	switch kind {
	case types.NetworkLatency:
		err = i.applyNetem(ctx, effect, latencyArgs(parsed.(latencyParams)))
	case types.PacketLoss:
		err = i.applyNetem(ctx, effect, networklib.LossArgs(parsed.(lossParams).Probability))
	case types.TCPReset:
		err = i.applyReset(ctx, effect, parsed.(resetParams))
	case types.CPUStarvation:
		err = i.applyCPU(effect, parsed.(cpuParams))
	case types.MemoryPressure:
		err = i.applyMemory(effect, parsed.(memoryParams))
	case types.DiskSlow:
		err = i.applyDisk(effect, parsed.(diskParams))
	case types.ProcessKill:
		err = i.applyKill(effect, parsed.(killParams))
	default:
		err = unsupported(kind, "unknown injection kind")
	}
	if err != nil {
		i.release(key)
		return nil, classify(kind, err)
	}

	effect.AppliedAt = time.Now()
	log.InfoWithValues("[Chaos]: Fault applied", map[string]interface{}{
		"Kind":   kind,
		"Target": resolved.Identity(),
		"Effect": effect.Description,
	})
	return effect, nil
}

// Revert removes the fault. A failed revert keeps the target reserved,
// the host may still be degraded and must not be faulted again.
func (i *Injectors) Revert(ctx context.Context, effect *Effect) error {
	if effect == nil || effect.state == nil {
		return nil
	}

	var err error
	switch state := effect.state.(type) {
	case netemState:
		err = networklib.Netem{Runner: i.Runner}.Remove(ctx, string(state))
	case *networklib.TCPReset:
		err = state.Stop(ctx)
	case *stresslib.CPUBurner:
		state.Stop()
	case *stresslib.MemoryHog:
		state.Release()
	case *disklib.Throttle:
		err = state.Remove()
	case *processlib.Kill:
		err = state.Revert()
	default:
		err = errors.Errorf("no revert known for %T", state)
	}
	if err != nil {
		return cerrors.Revert{Kind: string(effect.Kind), Target: effect.Target.Identity(), Cause: err}
	}

	effect.state = nil
	i.release(effect.key)
	return nil
}

// Live returns the keys of the faults currently applied, sorted
func (i *Injectors) Live() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	keys := make([]string, 0, len(i.active))
	for key := range i.active {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (i *Injectors) reserve(key string, kind types.InjectionKind) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active == nil {
		i.active = make(map[string]types.InjectionKind)
	}
	if _, ok := i.active[key]; ok {
		return cerrors.Injector{Kind: string(kind), Reason: cerrors.ReasonAlreadyActive, Detail: strings.SplitN(key, "|", 2)[1]}
	}
	i.active[key] = kind
	return nil
}

func (i *Injectors) release(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.active, key)
}

func (i *Injectors) nextName(kind types.InjectionKind) string {
	return fmt.Sprintf("%s-%s-%d", i.Tag, strings.ReplaceAll(string(kind), "_", "-"), atomic.AddUint64(&i.seq, 1))
}

type netemState string

func latencyArgs(p latencyParams) []string {
	return networklib.LatencyArgs(p.Latency, p.Jitter, p.Distribution, p.Correlation)
}

func (i *Injectors) applyNetem(ctx context.Context, effect *Effect, args []string) error {
	iface, ok := effect.Target.(*target.NetworkInterface)
	if !ok {
		return unsupported(effect.Kind, "needs a network interface target")
	}
	if err := (networklib.Netem{Runner: i.Runner}).Inject(ctx, iface.Name, args); err != nil {
		return err
	}
	effect.state = netemState(iface.Name)
	effect.Description = "netem " + strings.Join(args, " ")
	return nil
}

func (i *Injectors) applyReset(ctx context.Context, effect *Effect, p resetParams) error {
	iface, ok := effect.Target.(*target.NetworkInterface)
	if !ok {
		return unsupported(effect.Kind, "needs a network interface target")
	}
	reset := &networklib.TCPReset{
		Runner: i.Runner,
		Rule:   networklib.ResetRule{Interface: iface.Name, Port: p.Port, Tag: i.nextName(effect.Kind)},
		Pulse:  p.Pulse,
	}
	if p.Periodic {
		reset.Interval = p.Interval
	}
	if err := reset.Start(ctx); err != nil {
		return err
	}
	effect.state = reset
	effect.Description = fmt.Sprintf("tcp reset pulse %v every %v", p.Pulse, p.Interval)
	return nil
}

func (i *Injectors) applyCPU(effect *Effect, p cpuParams) error {
	burner, err := stresslib.NewCPUBurner(p.Workers, p.Utilization)
	if err != nil {
		return err
	}
	burner.Start()
	effect.state = burner
	effect.Description = fmt.Sprintf("%d cpu burners at %.0f%%", burner.Workers, p.Utilization*100)
	return nil
}

func (i *Injectors) applyMemory(effect *Effect, p memoryParams) error {
	size := p.Bytes
	if p.Fraction > 0 {
		if i.Memory == nil {
			return errors.New("available memory is unknown")
		}
		available, err := i.Memory.AvailableMemory()
		if err != nil {
			return err
		}
		size = int64(float64(available) * p.Fraction)
	} else if i.Memory != nil {
		// the runtime aborts the process on out of memory, it cannot be recovered
		available, err := i.Memory.AvailableMemory()
		if err != nil {
			return err
		}
		if uint64(size) > available {
			return cerrors.Injector{
				Kind:   string(types.MemoryPressure),
				Reason: cerrors.ReasonUnsupportedParameter,
				Detail: fmt.Sprintf("%s requested, %s available", units.BytesSize(float64(size)), units.BytesSize(float64(available))),
			}
		}
	}
	hog := &stresslib.MemoryHog{}
	if err := hog.Allocate(size); err != nil {
		return err
	}
	effect.state = hog
	effect.Description = "holding " + units.BytesSize(float64(size))
	return nil
}

func (i *Injectors) applyDisk(effect *Effect, p diskParams) error {
	proc, ok := effect.Target.(*target.Process)
	if !ok {
		return unsupported(effect.Kind, "needs a process target")
	}
	device, err := disklib.DeviceOf(p.Path)
	if err != nil {
		return err
	}
	throttle := &disklib.Throttle{
		Hierarchy:   i.Blkio,
		PID:         proc.PID,
		Origin:      proc.Cgroups["blkio"],
		Device:      device,
		BytesPerSec: p.BytesPerSec,
		Direction:   p.Direction,
		Name:        i.nextName(effect.Kind),
	}
	if err := throttle.Apply(); err != nil {
		return err
	}
	effect.state = throttle
	effect.Description = fmt.Sprintf("%s I/O capped at %s/s on %s", p.Direction, units.BytesSize(float64(p.BytesPerSec)), p.Path)
	return nil
}

func (i *Injectors) applyKill(effect *Effect, p killParams) error {
	proc, ok := effect.Target.(*target.Process)
	if !ok {
		return unsupported(effect.Kind, "needs a process target")
	}
	kill := &processlib.Kill{
		Signaler: i.Signaler,
		PID:      proc.PID,
		Signal:   p.Signal,
		Restart:  p.Restart,
		Cmdline:  proc.Cmdline,
		Cwd:      proc.Cwd,
	}
	if err := kill.Apply(); err != nil {
		return err
	}
	effect.state = kill
	effect.Description = fmt.Sprintf("%s, restart %s", unix.SignalName(p.Signal), p.Restart)
	return nil
}

// classify maps a mechanics failure onto the injector error taxonomy
func classify(kind types.InjectionKind, err error) error {
	var injErr cerrors.Injector
	if errors.As(err, &injErr) {
		return err
	}
	reason := cerrors.ReasonTargetUnavailable
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, networklib.ErrQdiscExists):
		reason = cerrors.ReasonAlreadyActive
	case errors.Is(err, os.ErrPermission), errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES),
		strings.Contains(msg, "permission denied"), strings.Contains(msg, "operation not permitted"):
		reason = cerrors.ReasonPermissionDenied
	}
	return cerrors.Injector{Kind: string(kind), Reason: reason, Detail: err.Error()}
}
