package lib

import (
	"os"
	osexec "os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// RestartPolicy decides what happens to a killed process on revert
type RestartPolicy string

const (
	RestartNever  RestartPolicy = "never"
	RestartAlways RestartPolicy = "always"
)

// Signaler delivers signals and launches processes
type Signaler interface {
	Signal(pid int, sig unix.Signal) error
	Alive(pid int) bool
	Launch(cmdline []string, dir string) (int, error)
}

// HostSignaler acts on the local host
type HostSignaler struct{}

func (HostSignaler) Signal(pid int, sig unix.Signal) error {
	return unix.Kill(pid, sig)
}

func (HostSignaler) Alive(pid int) bool {
	return unix.Kill(pid, 0) != unix.ESRCH
}

// Launch starts the command detached in its own session
func (HostSignaler) Launch(cmdline []string, dir string) (int, error) {
	cmd := osexec.Command(cmdline[0], cmdline[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	go func() {
		// reap the child when it exits
		_ = cmd.Wait()
	}()
	return pid, nil
}

// ParseSignal accepts SIGTERM, TERM, sigkill and numeric forms
func ParseSignal(name string) (unix.Signal, error) {
	if name == "" {
		return unix.SIGTERM, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(upper, "SIG") {
		upper = "SIG" + upper
	}
	if sig := unix.SignalNum(upper); sig != 0 {
		return sig, nil
	}
	num, err := strconv.Atoi(name)
	if err != nil || num <= 0 || unix.SignalName(unix.Signal(num)) == "" {
		return 0, errors.Errorf("unknown signal %q", name)
	}
	return unix.Signal(num), nil
}

// Pausing reports whether the signal suspends rather than terminates
func Pausing(sig unix.Signal) bool {
	return sig == unix.SIGSTOP || sig == unix.SIGTSTP
}

// Kill is one signal delivery and the work needed to undo it
type Kill struct {
	Signaler Signaler
	PID      int
	Signal   unix.Signal
	Restart  RestartPolicy
	Cmdline  []string
	Cwd      string

	// RestartedPID is set once the process was relaunched
	RestartedPID int
}

// Apply delivers the signal
func (k *Kill) Apply() error {
	if k.Restart == RestartAlways && len(k.Cmdline) == 0 {
		return errors.Errorf("pid %d has no command line to restart it with", k.PID)
	}
	log.Infof("[Chaos]: Sending %s to pid %d", unix.SignalName(k.Signal), k.PID)
	if err := k.Signaler.Signal(k.PID, k.Signal); err != nil {
		return errors.Wrapf(err, "unable to signal pid %d", k.PID)
	}
	return nil
}

// Revert resumes a paused process or relaunches a killed one per the restart policy
func (k *Kill) Revert() error {
	if Pausing(k.Signal) {
		log.Infof("[Revert]: Resuming pid %d", k.PID)
		if err := k.Signaler.Signal(k.PID, unix.SIGCONT); err != nil && k.Signaler.Alive(k.PID) {
			return errors.Wrapf(err, "unable to resume pid %d", k.PID)
		}
		return nil
	}
	if k.Restart != RestartAlways || k.RestartedPID != 0 {
		return nil
	}
	if k.Signaler.Alive(k.PID) && !waitExit(k.Signaler, k.PID, time.Second) {
		log.Infof("[Revert]: pid %d survived the signal, no restart needed", k.PID)
		return nil
	}
	pid, err := k.Signaler.Launch(k.Cmdline, k.Cwd)
	if err != nil {
		return errors.Wrapf(err, "unable to restart %v", k.Cmdline)
	}
	k.RestartedPID = pid
	log.Infof("[Revert]: Restarted %s as pid %d", k.Cmdline[0], pid)
	return nil
}

func waitExit(s Signaler, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !s.Alive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !s.Alive(pid)
}
