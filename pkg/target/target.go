package target

import (
	"fmt"

	"github.com/litmuschaos/litmus-scenarios/pkg/types"
)

// Resolved is a concrete resource located on the host.
// Identity is stable for the same resource whatever selector resolved it.
type Resolved interface {
	Capability() types.Capability
	Identity() string
	Selector() string
}

// NetworkInterface is a resolved network target, faults insert and remove rules on it
type NetworkInterface struct {
	Name     string
	Index    int
	selector string
}

func (n *NetworkInterface) Capability() types.Capability { return types.CapabilityNetwork }
func (n *NetworkInterface) Identity() string             { return "interface:" + n.Name }
func (n *NetworkInterface) Selector() string             { return n.selector }

// Process is a resolved process target, faults deliver signals to it or change its resource limits
type Process struct {
	PID     int
	Comm    string
	Cmdline []string
	Cwd     string
	// Cgroups maps each v1 controller to the process cgroup path at resolve time
	Cgroups  map[string]string
	selector string
}

func (p *Process) Capability() types.Capability { return types.CapabilityProcess }
func (p *Process) Identity() string             { return fmt.Sprintf("pid:%d", p.PID) }
func (p *Process) Selector() string             { return p.selector }

// HostResource is a host-wide resource, the process itself competes for it
type HostResource struct {
	Name     string
	selector string
}

func (h *HostResource) Capability() types.Capability { return types.CapabilityResource }
func (h *HostResource) Identity() string             { return "host:" + h.Name }
func (h *HostResource) Selector() string             { return h.selector }
