package lib

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/utils/exec"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetemArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "plain delay",
			args:     LatencyArgs(100*time.Millisecond, 0, "", 0),
			expected: []string{"delay", "100ms"},
		},
		{
			name:     "delay with jitter and distribution",
			args:     LatencyArgs(200*time.Millisecond, 20*time.Millisecond, "normal", 0.25),
			expected: []string{"delay", "200ms", "20ms", "25%", "distribution", "normal"},
		},
		{
			name:     "sub millisecond delay",
			args:     LatencyArgs(1500*time.Microsecond, 0, "", 0),
			expected: []string{"delay", "1500us"},
		},
		{
			name:     "loss",
			args:     LossArgs(0.125),
			expected: []string{"loss", "12.5%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.args)
		})
	}
}

func TestNetemInjectAndRemove(t *testing.T) {
	runner := &exec.Recorder{}
	netem := Netem{Runner: runner}

	require.NoError(t, netem.Inject(context.Background(), "eth0", LossArgs(0.1)))
	require.NoError(t, netem.Remove(context.Background(), "eth0"))

	assert.Equal(t, []string{
		"tc qdisc add dev eth0 root netem loss 10%",
		"tc qdisc del dev eth0 root",
	}, runner.Lines())
}

func TestNetemExistingQdisc(t *testing.T) {
	runner := &exec.Recorder{Fail: map[string]error{
		"tc qdisc add": fmt.Errorf("tc failed, output: %s", qdiscExists),
	}}
	err := Netem{Runner: runner}.Inject(context.Background(), "eth0", LossArgs(0.5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQdiscExists))
}

func TestNetemRemoveAlreadyGone(t *testing.T) {
	runner := &exec.Recorder{Fail: map[string]error{
		"tc qdisc del": fmt.Errorf("tc failed, output: %s", qdiscNoFileFound),
	}}
	assert.NoError(t, Netem{Runner: runner}.Remove(context.Background(), "eth0"))

	runner = &exec.Recorder{Fail: map[string]error{"tc qdisc del": fmt.Errorf("device busy")}}
	assert.Error(t, Netem{Runner: runner}.Remove(context.Background(), "eth0"))
}

func TestTCPResetOneShot(t *testing.T) {
	runner := &exec.Recorder{}
	reset := &TCPReset{
		Runner: runner,
		Rule:   ResetRule{Interface: "eth0", Port: 8080, Tag: "scenario-abc123"},
		Pulse:  10 * time.Millisecond,
	}

	require.NoError(t, reset.Start(context.Background()))
	assert.True(t, reset.Active())
	assert.Eventually(t, func() bool { return !reset.Active() }, time.Second, 5*time.Millisecond)
	require.NoError(t, reset.Stop(context.Background()))

	lines := runner.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "iptables -I INPUT -i eth0 -p tcp --dport 8080 -m comment --comment scenario-abc123 -j REJECT --reject-with tcp-reset", lines[0])
	assert.Equal(t, "iptables -D INPUT -i eth0 -p tcp --dport 8080 -m comment --comment scenario-abc123 -j REJECT --reject-with tcp-reset", lines[1])
}

func TestTCPResetPeriodicStopRemovesRule(t *testing.T) {
	runner := &exec.Recorder{}
	reset := &TCPReset{
		Runner:   runner,
		Rule:     ResetRule{Interface: "lo", Tag: "scenario-def456"},
		Pulse:    time.Hour,
		Interval: 2 * time.Hour,
	}

	require.NoError(t, reset.Start(context.Background()))
	require.NoError(t, reset.Stop(context.Background()))
	assert.False(t, reset.Active())

	lines := runner.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "iptables -D INPUT -i lo -p tcp -m comment")
}

func TestTCPResetInsertFailureLeavesNothing(t *testing.T) {
	runner := &exec.Recorder{Fail: map[string]error{"iptables -I": fmt.Errorf("permission denied")}}
	reset := &TCPReset{Runner: runner, Rule: ResetRule{Interface: "lo", Tag: "x"}, Pulse: time.Second}

	require.Error(t, reset.Start(context.Background()))
	assert.False(t, reset.Active())
	require.NoError(t, reset.Stop(context.Background()))
	assert.Len(t, runner.Lines(), 1)
}
