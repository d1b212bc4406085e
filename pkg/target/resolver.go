package target

import (
	"context"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// InterfaceLookup finds a network interface by name
type InterfaceLookup func(name string) (*net.Interface, error)

// Resolver turns selectors into concrete host resources.
// Resolution only reads /proc and the interface table, it never alters them.
type Resolver struct {
	fs     procfs.FS
	lookup InterfaceLookup
}

// Option customises a Resolver
type Option func(*Resolver)

// WithInterfaceLookup replaces the interface table lookup
func WithInterfaceLookup(lookup InterfaceLookup) Option {
	return func(r *Resolver) {
		r.lookup = lookup
	}
}

// NewResolver returns a resolver reading processes from the given proc mount
func NewResolver(procMount string, opts ...Option) (*Resolver, error) {
	fs, err := procfs.NewFS(procMount)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open proc filesystem at %s", procMount)
	}
	r := &Resolver{fs: fs, lookup: net.InterfaceByName}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve locates the resource named by the selector
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolved, error) {
	sel, err := ParseSelector(raw)
	if err != nil {
		return nil, cerrors.Target{Selector: raw, Reason: cerrors.ReasonNotFound, Detail: err.Error()}
	}
	if err := ctx.Err(); err != nil {
		return nil, cerrors.Target{Selector: raw, Reason: cerrors.ReasonTargetUnavailable, Detail: err.Error()}
	}

	switch sel.Kind {
	case KindInterface:
		return r.resolveInterface(sel, raw)
	case KindPID:
		pid, _ := strconv.Atoi(sel.Value)
		return r.resolvePID(pid, raw)
	case KindProcess:
		return r.resolveProcessName(sel.Value, raw)
	default:
		return &HostResource{Name: sel.Value, selector: raw}, nil
	}
}

func (r *Resolver) resolveInterface(sel Selector, raw string) (Resolved, error) {
	iface, err := r.lookup(sel.Value)
	if err != nil || iface == nil {
		return nil, cerrors.Target{Selector: raw, Reason: cerrors.ReasonNotFound, Detail: "no such network interface"}
	}
	if iface.Flags&net.FlagUp == 0 {
		return nil, cerrors.Target{Selector: raw, Reason: cerrors.ReasonTargetUnavailable, Detail: "interface is down"}
	}
	return &NetworkInterface{Name: iface.Name, Index: iface.Index, selector: raw}, nil
}

func (r *Resolver) resolvePID(pid int, raw string) (Resolved, error) {
	proc, err := r.fs.Proc(pid)
	if err != nil {
		return nil, procError(raw, err)
	}
	return r.describe(proc, raw)
}

// resolveProcessName picks the lowest matching pid, so that re-resolving
// the same name while the process lives returns the same identity
func (r *Resolver) resolveProcessName(name, raw string) (Resolved, error) {
	procs, err := r.fs.AllProcs()
	if err != nil {
		return nil, procError(raw, err)
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
	for _, proc := range procs {
		comm, err := proc.Comm()
		if err != nil || comm != name {
			continue
		}
		resolved, err := r.describe(proc, raw)
		if err != nil {
			continue
		}
		return resolved, nil
	}
	return nil, cerrors.Target{Selector: raw, Reason: cerrors.ReasonNotFound, Detail: "no running process with this name"}
}

func (r *Resolver) describe(proc procfs.Proc, raw string) (*Process, error) {
	stat, err := proc.Stat()
	if err != nil {
		return nil, procError(raw, err)
	}
	if stat.State == "Z" || stat.State == "X" {
		return nil, cerrors.Target{Selector: raw, Reason: cerrors.ReasonTargetUnavailable, Detail: "process is exiting"}
	}

	p := &Process{PID: proc.PID, Comm: stat.Comm, selector: raw}
	// the remaining details are best effort, they only serve restart and cgroup placement
	if cmdline, err := proc.CmdLine(); err == nil {
		p.Cmdline = cmdline
	}
	if cwd, err := proc.Cwd(); err == nil {
		p.Cwd = cwd
	}
	if cgroups, err := proc.Cgroups(); err == nil {
		p.Cgroups = make(map[string]string)
		for _, cg := range cgroups {
			for _, controller := range cg.Controllers {
				p.Cgroups[controller] = cg.Path
			}
		}
	}
	return p, nil
}

// AvailableMemory returns MemAvailable in bytes
func (r *Resolver) AvailableMemory() (uint64, error) {
	meminfo, err := r.fs.Meminfo()
	if err != nil {
		return 0, errors.Wrap(err, "unable to read meminfo")
	}
	if meminfo.MemAvailableBytes != nil {
		return *meminfo.MemAvailableBytes, nil
	}
	if meminfo.MemAvailable != nil {
		return *meminfo.MemAvailable * 1024, nil
	}
	return 0, errors.New("MemAvailable is not reported by this kernel")
}

func procError(raw string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cerrors.Target{Selector: raw, Reason: cerrors.ReasonNotFound, Detail: "no such process"}
	case errors.Is(err, os.ErrPermission):
		return cerrors.Target{Selector: raw, Reason: cerrors.ReasonPermissionDenied, Detail: err.Error()}
	}
	return cerrors.Target{Selector: raw, Reason: cerrors.ReasonTargetUnavailable, Detail: err.Error()}
}
