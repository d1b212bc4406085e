package lib

import (
	"fmt"
	"path"

	"github.com/containerd/cgroups"
	"github.com/docker/go-units"
	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Direction selects which I/O is throttled
type Direction string

const (
	Read  Direction = "read"
	Write Direction = "write"
	Both  Direction = "both"
)

// Group is the subset of a blkio cgroup used by the throttle
type Group interface {
	Add(pid int) error
	Delete() error
}

// Hierarchy creates and loads blkio cgroups
type Hierarchy interface {
	New(path string, resources *specs.LinuxResources) (Group, error)
	Load(path string) (Group, error)
}

// Device is a block device major:minor pair
type Device struct {
	Major int64
	Minor int64
}

// DeviceOf returns the device backing the given path
func DeviceOf(p string) (Device, error) {
	var st unix.Stat_t
	if err := unix.Stat(p, &st); err != nil {
		return Device{}, errors.Wrapf(err, "unable to stat %s", p)
	}
	dev := uint64(st.Dev)
	return Device{Major: int64(unix.Major(dev)), Minor: int64(unix.Minor(dev))}, nil
}

// Throttle moves a process into a dedicated blkio cgroup that caps its
// throughput on one device, and moves it back on Remove
type Throttle struct {
	Hierarchy Hierarchy
	PID       int
	// Origin is the blkio cgroup the process lives in before the fault
	Origin      string
	Device      Device
	BytesPerSec uint64
	Direction   Direction
	// Name is the leaf of the throttle cgroup, unique per fault
	Name string

	group Group
}

func (t *Throttle) path() string {
	return path.Join("/litmus-scenarios", t.Name)
}

func (t *Throttle) resources() *specs.LinuxResources {
	device := specs.LinuxThrottleDevice{Rate: t.BytesPerSec}
	device.Major = t.Device.Major
	device.Minor = t.Device.Minor

	blkio := &specs.LinuxBlockIO{}
	if t.Direction == Read || t.Direction == Both {
		blkio.ThrottleReadBpsDevice = []specs.LinuxThrottleDevice{device}
	}
	if t.Direction == Write || t.Direction == Both {
		blkio.ThrottleWriteBpsDevice = []specs.LinuxThrottleDevice{device}
	}
	return &specs.LinuxResources{BlockIO: blkio}
}

// Apply creates the throttle cgroup and moves the process into it.
// The cgroup is deleted again when the process cannot be moved.
func (t *Throttle) Apply() error {
	if t.Origin == "" {
		return errors.Errorf("no blkio cgroup recorded for pid %d", t.PID)
	}
	group, err := t.Hierarchy.New(t.path(), t.resources())
	if err != nil {
		return errors.Wrapf(err, "unable to create blkio cgroup %s", t.path())
	}
	if err := group.Add(t.PID); err != nil {
		if delErr := group.Delete(); delErr != nil {
			log.Errorf("[Chaos]: Failed to delete blkio cgroup %s, err: %v", t.path(), delErr)
		}
		return errors.Wrapf(err, "unable to move pid %d into %s", t.PID, t.path())
	}
	t.group = group
	log.Infof("[Chaos]: Throttled %s I/O of pid %d on %d:%d to %s/s", t.Direction, t.PID, t.Device.Major, t.Device.Minor, units.BytesSize(float64(t.BytesPerSec)))
	return nil
}

// Remove moves the process back to its original cgroup and deletes the throttle cgroup
func (t *Throttle) Remove() error {
	if t.group == nil {
		return nil
	}
	origin, err := t.Hierarchy.Load(t.Origin)
	if err != nil {
		return errors.Wrapf(err, "unable to load original blkio cgroup %s", t.Origin)
	}
	if err := origin.Add(t.PID); err != nil {
		if processAlive(t.PID) {
			return errors.Wrapf(err, "unable to move pid %d back to %s", t.PID, t.Origin)
		}
		log.Warnf("[Revert]: pid %d exited during the fault", t.PID)
	}
	if err := t.group.Delete(); err != nil {
		return errors.Wrapf(err, "unable to delete blkio cgroup %s", t.path())
	}
	t.group = nil
	log.Infof("[Revert]: Lifted I/O throttle of pid %d", t.PID)
	return nil
}

var processAlive = func(pid int) bool {
	return unix.Kill(pid, 0) != unix.ESRCH
}

// V1Hierarchy is the blkio controller of a cgroup v1 host
type V1Hierarchy struct{}

type v1Group struct {
	cgroups.Cgroup
}

func (g v1Group) Add(pid int) error {
	return g.Cgroup.Add(cgroups.Process{Pid: pid})
}

func hierarchy() cgroups.Hierarchy {
	return cgroups.SingleSubsystem(cgroups.V1, cgroups.Blkio)
}

func (V1Hierarchy) New(p string, resources *specs.LinuxResources) (Group, error) {
	if cgroups.Mode() == cgroups.Unified {
		return nil, fmt.Errorf("blkio throttling needs the cgroup v1 blkio controller")
	}
	cg, err := cgroups.New(hierarchy(), cgroups.StaticPath(p), resources)
	if err != nil {
		return nil, err
	}
	return v1Group{cg}, nil
}

func (V1Hierarchy) Load(p string) (Group, error) {
	cg, err := cgroups.Load(hierarchy(), cgroups.StaticPath(p))
	if err != nil {
		return nil, err
	}
	return v1Group{cg}, nil
}
