package types

import (
	"time"
)

// InjectionKind is the closed set of faults a scenario can request
type InjectionKind string

const (
	// NetworkLatency adds delay to matching traffic
	NetworkLatency InjectionKind = "network_latency"
	// PacketLoss drops a fraction of matching packets
	PacketLoss InjectionKind = "packet_loss"
	// TCPReset forcibly resets matching connections
	TCPReset InjectionKind = "tcp_reset"
	// CPUStarvation consumes CPU cycles competing with the target
	CPUStarvation InjectionKind = "cpu_starvation"
	// MemoryPressure allocates and holds memory
	MemoryPressure InjectionKind = "memory_pressure"
	// DiskSlow throttles I/O throughput of a process on a device
	DiskSlow InjectionKind = "disk_slow"
	// ProcessKill sends a termination signal to a process
	ProcessKill InjectionKind = "process_kill"
)

// InjectionKinds lists every supported kind in declaration order
var InjectionKinds = []InjectionKind{
	NetworkLatency, PacketLoss, TCPReset, CPUStarvation, MemoryPressure, DiskSlow, ProcessKill,
}

// Capability is the class of resource a target belongs to
type Capability string

const (
	CapabilityNetwork  Capability = "network"
	CapabilityProcess  Capability = "process"
	CapabilityResource Capability = "resource"
)

// Valid reports whether k is one of the supported kinds
func (k InjectionKind) Valid() bool {
	for _, kind := range InjectionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Capabilities returns the target classes the kind can act upon
func (k InjectionKind) Capabilities() []Capability {
	switch k {
	case NetworkLatency, PacketLoss, TCPReset:
		return []Capability{CapabilityNetwork}
	case CPUStarvation, MemoryPressure:
		return []Capability{CapabilityResource, CapabilityProcess}
	case DiskSlow, ProcessKill:
		return []Capability{CapabilityProcess}
	}
	return nil
}

// Supports reports whether the kind accepts a target of the given capability
func (k InjectionKind) Supports(c Capability) bool {
	for _, capability := range k.Capabilities() {
		if capability == c {
			return true
		}
	}
	return false
}

// SchedulingMode decides how the injections of a phase share its time budget
type SchedulingMode string

const (
	// Sequential runs injections one at a time in list order
	Sequential SchedulingMode = "sequential"
	// Concurrent starts every injection together
	Concurrent SchedulingMode = "concurrent"
)

// Scenario is the top level declarative test definition
type Scenario struct {
	Name        string        `json:"name" yaml:"name" validate:"required"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Phases      []Phase       `json:"phases" yaml:"phases" validate:"required,min=1,unique=Name,dive"`
}

// Phase is a time-bounded stage of a scenario
type Phase struct {
	Name       string         `json:"name" yaml:"name" validate:"required"`
	Duration   time.Duration  `json:"duration" yaml:"duration"`
	Mode       SchedulingMode `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=sequential concurrent"`
	Injections []Injection    `json:"injections" yaml:"injections" validate:"required,min=1,dive"`
}

// Injection is a single fault instance: kind, target selector and fault parameters
type Injection struct {
	Type       InjectionKind     `json:"type" yaml:"type" validate:"required"`
	Target     string            `json:"target" yaml:"target" validate:"required"`
	Duration   time.Duration     `json:"duration,omitempty" yaml:"duration,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// EffectiveMode returns the declared mode, sequential when unset
func (p Phase) EffectiveMode() SchedulingMode {
	if p.Mode == "" {
		return Sequential
	}
	return p.Mode
}

// InjectionCount returns the number of injections declared across all phases
func (s Scenario) InjectionCount() int {
	count := 0
	for _, phase := range s.Phases {
		count += len(phase.Injections)
	}
	return count
}

// Clone returns a deep copy, every run owns its scenario exclusively
func (s Scenario) Clone() Scenario {
	clone := s
	clone.Phases = make([]Phase, len(s.Phases))
	for i, phase := range s.Phases {
		p := phase
		p.Injections = make([]Injection, len(phase.Injections))
		for j, injection := range phase.Injections {
			inj := injection
			if injection.Parameters != nil {
				inj.Parameters = make(map[string]string, len(injection.Parameters))
				for k, v := range injection.Parameters {
					inj.Parameters[k] = v
				}
			}
			p.Injections[j] = inj
		}
		clone.Phases[i] = p
	}
	return clone
}

// RunState is the lifecycle state of a scenario run
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateStopped   RunState = "stopped"
	StateFailed    RunState = "failed"
)

// Terminal reports whether no further transition can happen
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateFailed
}
