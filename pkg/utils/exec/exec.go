package exec

import (
	"bytes"
	"context"
	osexec "os/exec"
	"strings"
	"sync"

	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/pkg/errors"
)

// Runner runs host commands on behalf of the fault libraries
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// LocalRunner runs the commands on the local host
type LocalRunner struct{}

// Run executes the command and returns its combined output
func (LocalRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.Debugf("[Exec]: %s %s", name, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if _, lookErr := osexec.LookPath(name); lookErr != nil {
			return "", errors.Wrapf(lookErr, "%s is not available on this host", name)
		}
		return out.String(), errors.Errorf("%s %s failed, err: %v, output: %s", name, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// IsNotInstalled reports whether err was produced because the binary is missing
func IsNotInstalled(err error) bool {
	return errors.Is(err, osexec.ErrNotFound)
}

// Call is one invocation recorded by a Recorder
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Recorder is a Runner that records every call instead of running it.
// Fail maps a command line prefix to the error returned for it.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	Fail  map[string]error
}

// Run records the call and returns the configured failure, if any
func (r *Recorder) Run(_ context.Context, name string, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := Call{Name: name, Args: append([]string(nil), args...)}
	r.calls = append(r.calls, call)
	line := call.String()
	for prefix, err := range r.Fail {
		if strings.HasPrefix(line, prefix) {
			return "", err
		}
	}
	return "", nil
}

// Calls returns a copy of the recorded calls in order
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Lines returns the recorded calls as command lines
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, c.String())
	}
	return lines
}
