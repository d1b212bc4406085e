package target

import (
	"strconv"
	"strings"

	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/pkg/errors"
)

// Kind is the prefix of a target selector
type Kind string

const (
	// KindInterface selects a network interface by name, e.g. interface:eth0
	KindInterface Kind = "interface"
	// KindPID selects a process by id, e.g. pid:4242
	KindPID Kind = "pid"
	// KindProcess selects a process by command name, e.g. process:nginx
	KindProcess Kind = "process"
	// KindHost selects a host-wide resource, host:cpu or host:memory
	KindHost Kind = "host"
)

const (
	HostCPU    = "cpu"
	HostMemory = "memory"
)

// Selector is the parsed form of an injection target
type Selector struct {
	Kind  Kind
	Value string
}

// ParseSelector validates the selector syntax, nothing is looked up on the host
func ParseSelector(raw string) (Selector, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return Selector{}, errors.Errorf("invalid target selector %q, expected <kind>:<value>", raw)
	}
	sel := Selector{Kind: Kind(strings.ToLower(parts[0])), Value: parts[1]}

	switch sel.Kind {
	case KindInterface, KindProcess:
		if strings.ContainsAny(sel.Value, " /") {
			return Selector{}, errors.Errorf("invalid %s name %q", sel.Kind, sel.Value)
		}
	case KindPID:
		pid, err := strconv.Atoi(sel.Value)
		if err != nil || pid <= 0 {
			return Selector{}, errors.Errorf("invalid pid %q, must be a positive integer", sel.Value)
		}
	case KindHost:
		if sel.Value != HostCPU && sel.Value != HostMemory {
			return Selector{}, errors.Errorf("unknown host resource %q, supported: %s, %s", sel.Value, HostCPU, HostMemory)
		}
	default:
		return Selector{}, errors.Errorf("unknown target kind %q", parts[0])
	}
	return sel, nil
}

// Capability returns the class of resource the selector points at
func (s Selector) Capability() types.Capability {
	switch s.Kind {
	case KindInterface:
		return types.CapabilityNetwork
	case KindPID, KindProcess:
		return types.CapabilityProcess
	default:
		return types.CapabilityResource
	}
}

func (s Selector) String() string {
	return string(s.Kind) + ":" + s.Value
}

// CheckKind verifies that the injection kind can act upon the selected target
func CheckKind(kind types.InjectionKind, sel Selector) error {
	if !kind.Supports(sel.Capability()) {
		return errors.Errorf("%s cannot target %s resources (%s)", kind, sel.Capability(), sel)
	}
	if sel.Kind == KindHost {
		switch {
		case kind == types.CPUStarvation && sel.Value != HostCPU,
			kind == types.MemoryPressure && sel.Value != HostMemory:
			return errors.Errorf("%s cannot target %s", kind, sel)
		}
	}
	return nil
}
