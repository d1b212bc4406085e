package injector

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/go-units"
	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/litmuschaos/litmus-scenarios/pkg/target"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/litmuschaos/litmus-scenarios/pkg/utils/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeMemory uint64

func (f fakeMemory) AvailableMemory() (uint64, error) { return uint64(f), nil }

type fakeSignaler struct {
	signals []unix.Signal
	alive   bool
}

func (f *fakeSignaler) Signal(pid int, sig unix.Signal) error {
	f.signals = append(f.signals, sig)
	return nil
}
func (f *fakeSignaler) Alive(pid int) bool { return f.alive }
func (f *fakeSignaler) Launch(cmdline []string, dir string) (int, error) {
	return 0, fmt.Errorf("launch not expected")
}

func newTestInjectors(runner exec.Runner) *Injectors {
	return &Injectors{
		Runner:   runner,
		Memory:   fakeMemory(64 * units.MiB),
		Signaler: &fakeSignaler{alive: true},
		Tag:      "test",
	}
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name    string
		kind    types.InjectionKind
		params  map[string]string
		wantErr bool
	}{
		{name: "latency", kind: types.NetworkLatency, params: map[string]string{"latency": "100ms", "jitter": "10ms", "distribution": "normal"}},
		{name: "latency missing", kind: types.NetworkLatency, params: nil, wantErr: true},
		{name: "distribution without jitter", kind: types.NetworkLatency, params: map[string]string{"latency": "100ms", "distribution": "pareto"}, wantErr: true},
		{name: "loss", kind: types.PacketLoss, params: map[string]string{"probability": "0.25"}},
		{name: "loss as percent", kind: types.PacketLoss, params: map[string]string{"probability": "25%"}},
		{name: "loss above one", kind: types.PacketLoss, params: map[string]string{"probability": "1.5"}, wantErr: true},
		{name: "loss not a number", kind: types.PacketLoss, params: map[string]string{"probability": "NaN"}, wantErr: true},
		{name: "loss infinite", kind: types.PacketLoss, params: map[string]string{"probability": "+Inf"}, wantErr: true},
		{name: "unknown parameter", kind: types.PacketLoss, params: map[string]string{"probability": "0.1", "rate": "5"}, wantErr: true},
		{name: "reset one shot default", kind: types.TCPReset, params: nil},
		{name: "reset periodic", kind: types.TCPReset, params: map[string]string{"mode": "periodic", "interval": "5s", "port": "443"}},
		{name: "reset periodic without interval", kind: types.TCPReset, params: map[string]string{"mode": "periodic"}, wantErr: true},
		{name: "reset interval shorter than pulse", kind: types.TCPReset, params: map[string]string{"mode": "periodic", "interval": "500ms"}, wantErr: true},
		{name: "reset bad port", kind: types.TCPReset, params: map[string]string{"port": "70000"}, wantErr: true},
		{name: "cpu defaults", kind: types.CPUStarvation, params: nil},
		{name: "cpu zero utilization", kind: types.CPUStarvation, params: map[string]string{"utilization": "0"}, wantErr: true},
		{name: "cpu utilization not a number", kind: types.CPUStarvation, params: map[string]string{"utilization": "NaN"}, wantErr: true},
		{name: "memory bytes", kind: types.MemoryPressure, params: map[string]string{"bytes": "256MiB"}},
		{name: "memory fraction", kind: types.MemoryPressure, params: map[string]string{"fraction": "0.5"}},
		{name: "memory fraction not a number", kind: types.MemoryPressure, params: map[string]string{"fraction": "nan"}, wantErr: true},
		{name: "memory fraction infinite", kind: types.MemoryPressure, params: map[string]string{"fraction": "-Inf"}, wantErr: true},
		{name: "memory both", kind: types.MemoryPressure, params: map[string]string{"bytes": "1m", "fraction": "0.5"}, wantErr: true},
		{name: "memory none", kind: types.MemoryPressure, params: map[string]string{}, wantErr: true},
		{name: "disk", kind: types.DiskSlow, params: map[string]string{"bytes_per_sec": "1MiB", "direction": "write", "path": "/var"}},
		{name: "disk relative path", kind: types.DiskSlow, params: map[string]string{"bytes_per_sec": "1MiB", "path": "var"}, wantErr: true},
		{name: "disk missing rate", kind: types.DiskSlow, params: map[string]string{"path": "/"}, wantErr: true},
		{name: "kill defaults", kind: types.ProcessKill, params: nil},
		{name: "kill restart", kind: types.ProcessKill, params: map[string]string{"signal": "SIGKILL", "restart": "always"}},
		{name: "kill unknown signal", kind: types.ProcessKill, params: map[string]string{"signal": "SIGFOO"}, wantErr: true},
		{name: "stop with restart", kind: types.ProcessKill, params: map[string]string{"signal": "SIGSTOP", "restart": "always"}, wantErr: true},
		{name: "unknown kind", kind: types.InjectionKind("fork_bomb"), params: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.kind, tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, cerrors.HasReason(err, cerrors.ReasonUnsupportedParameter))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestApplyAndRevertPacketLoss(t *testing.T) {
	runner := &exec.Recorder{}
	injectors := newTestInjectors(runner)
	iface := &target.NetworkInterface{Name: "eth0"}

	effect, err := injectors.Apply(context.Background(), types.PacketLoss, iface, map[string]string{"probability": "0.3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"packet_loss|interface:eth0"}, injectors.Live())
	assert.False(t, effect.AppliedAt.IsZero())

	require.NoError(t, injectors.Revert(context.Background(), effect))
	require.NoError(t, injectors.Revert(context.Background(), effect))
	assert.Empty(t, injectors.Live())

	assert.Equal(t, []string{
		"tc qdisc add dev eth0 root netem loss 30%",
		"tc qdisc del dev eth0 root",
	}, runner.Lines())
}

func TestApplyAlreadyActive(t *testing.T) {
	injectors := newTestInjectors(&exec.Recorder{})
	iface := &target.NetworkInterface{Name: "eth0"}
	params := map[string]string{"latency": "50ms"}

	first, err := injectors.Apply(context.Background(), types.NetworkLatency, iface, params)
	require.NoError(t, err)

	_, err = injectors.Apply(context.Background(), types.NetworkLatency, iface, params)
	require.Error(t, err)
	assert.True(t, cerrors.HasReason(err, cerrors.ReasonAlreadyActive))

	require.NoError(t, injectors.Revert(context.Background(), first))
	second, err := injectors.Apply(context.Background(), types.NetworkLatency, iface, params)
	require.NoError(t, err)
	require.NoError(t, injectors.Revert(context.Background(), second))
}

func TestApplyFailureLeavesNoFault(t *testing.T) {
	tests := []struct {
		name       string
		failure    error
		wantReason cerrors.Reason
	}{
		{
			name:       "permission denied",
			failure:    fmt.Errorf("RTNETLINK answers: Operation not permitted"),
			wantReason: cerrors.ReasonPermissionDenied,
		},
		{
			name:       "existing qdisc",
			failure:    fmt.Errorf("RTNETLINK answers: File exists"),
			wantReason: cerrors.ReasonAlreadyActive,
		},
		{
			name:       "other failure",
			failure:    fmt.Errorf("Cannot find device"),
			wantReason: cerrors.ReasonTargetUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &exec.Recorder{Fail: map[string]error{"tc qdisc add": tt.failure}}
			injectors := newTestInjectors(runner)

			effect, err := injectors.Apply(context.Background(), types.PacketLoss, &target.NetworkInterface{Name: "eth0"}, map[string]string{"probability": "1"})
			require.Error(t, err)
			assert.Nil(t, effect)
			assert.True(t, cerrors.HasReason(err, tt.wantReason), "got %v", err)
			assert.Empty(t, injectors.Live())
			assert.Len(t, runner.Lines(), 1)
		})
	}
}

func TestRevertFailureKeepsReservation(t *testing.T) {
	runner := &exec.Recorder{Fail: map[string]error{"tc qdisc del": fmt.Errorf("device or resource busy")}}
	injectors := newTestInjectors(runner)
	iface := &target.NetworkInterface{Name: "eth0"}

	effect, err := injectors.Apply(context.Background(), types.PacketLoss, iface, map[string]string{"probability": "0.1"})
	require.NoError(t, err)

	err = injectors.Revert(context.Background(), effect)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeRevert, cerrors.GetErrorType(err))
	assert.Equal(t, []string{"packet_loss|interface:eth0"}, injectors.Live())

	_, err = injectors.Apply(context.Background(), types.PacketLoss, iface, map[string]string{"probability": "0.1"})
	assert.True(t, cerrors.HasReason(err, cerrors.ReasonAlreadyActive))
}

func TestApplyResourceFaults(t *testing.T) {
	tests := []struct {
		name   string
		kind   types.InjectionKind
		target target.Resolved
		params map[string]string
	}{
		{name: "cpu on host", kind: types.CPUStarvation, target: &target.HostResource{Name: "cpu"}, params: map[string]string{"utilization": "0.1", "workers": "1"}},
		{name: "memory bytes", kind: types.MemoryPressure, target: &target.HostResource{Name: "memory"}, params: map[string]string{"bytes": "1MiB"}},
		{name: "memory fraction", kind: types.MemoryPressure, target: &target.Process{PID: 10}, params: map[string]string{"fraction": "0.05"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			injectors := newTestInjectors(&exec.Recorder{})
			effect, err := injectors.Apply(context.Background(), tt.kind, tt.target, tt.params)
			require.NoError(t, err)
			assert.NotEmpty(t, effect.Description)
			assert.Len(t, injectors.Live(), 1)
			require.NoError(t, injectors.Revert(context.Background(), effect))
			assert.Empty(t, injectors.Live())
		})
	}
}

func TestApplyMemoryAboveAvailable(t *testing.T) {
	injectors := newTestInjectors(&exec.Recorder{})
	effect, err := injectors.Apply(context.Background(), types.MemoryPressure, &target.HostResource{Name: "memory"}, map[string]string{"bytes": "128MiB"})
	require.Error(t, err)
	assert.Nil(t, effect)
	assert.True(t, cerrors.HasReason(err, cerrors.ReasonUnsupportedParameter))
	assert.Empty(t, injectors.Live())
}

func TestApplyProcessKillPause(t *testing.T) {
	injectors := newTestInjectors(&exec.Recorder{})
	signaler := injectors.Signaler.(*fakeSignaler)

	effect, err := injectors.Apply(context.Background(), types.ProcessKill, &target.Process{PID: 99}, map[string]string{"signal": "SIGSTOP"})
	require.NoError(t, err)
	require.NoError(t, injectors.Revert(context.Background(), effect))
	assert.Equal(t, []unix.Signal{unix.SIGSTOP, unix.SIGCONT}, signaler.signals)
}

func TestApplyCapabilityMismatch(t *testing.T) {
	injectors := newTestInjectors(&exec.Recorder{})
	_, err := injectors.Apply(context.Background(), types.ProcessKill, &target.NetworkInterface{Name: "lo"}, nil)
	require.Error(t, err)
	assert.True(t, cerrors.HasReason(err, cerrors.ReasonUnsupportedParameter))

	_, err = injectors.Apply(context.Background(), types.DiskSlow, &target.Process{PID: 1}, map[string]string{"bytes_per_sec": "1MiB"})
	require.Error(t, err)
	assert.Empty(t, injectors.Live())
}
