package lib

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/litmuschaos/litmus-scenarios/pkg/utils/exec"
)

const ruleNotFound = "does a matching rule exist in that chain?"

// ResetRule describes the iptables rule that answers matching tcp traffic with a reset
type ResetRule struct {
	Interface string
	// Port restricts the rule to one destination port, 0 matches every port
	Port int
	// Tag is stored as the rule comment so that only our own rule is ever deleted
	Tag string
}

func (r ResetRule) spec() []string {
	args := []string{"INPUT", "-i", r.Interface, "-p", "tcp"}
	if r.Port > 0 {
		args = append(args, "--dport", strconv.Itoa(r.Port))
	}
	return append(args, "-m", "comment", "--comment", r.Tag, "-j", "REJECT", "--reject-with", "tcp-reset")
}

// TCPReset toggles a ResetRule. In one-shot mode the rule is live for a
// single pulse, in periodic mode it is re-inserted every interval.
type TCPReset struct {
	Runner   exec.Runner
	Rule     ResetRule
	Pulse    time.Duration
	Interval time.Duration

	mu     sync.Mutex
	active bool
	stop   chan struct{}
	done   chan struct{}
}

// Start inserts the rule and schedules its removal. The rule is in place when Start returns.
func (t *TCPReset) Start(ctx context.Context) error {
	if err := t.insert(ctx); err != nil {
		return err
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop()
	return nil
}

func (t *TCPReset) loop() {
	defer close(t.done)
	ctx := context.Background()
	for {
		select {
		case <-t.stop:
			return
		case <-time.After(t.Pulse):
		}
		if err := t.delete(ctx); err != nil {
			log.Errorf("[Chaos]: Failed to lift tcp reset rule on %s, err: %v", t.Rule.Interface, err)
		}
		if t.Interval <= 0 {
			return
		}
		select {
		case <-t.stop:
			return
		case <-time.After(t.Interval - t.Pulse):
		}
		if err := t.insert(ctx); err != nil {
			log.Errorf("[Chaos]: Failed to re-insert tcp reset rule on %s, err: %v", t.Rule.Interface, err)
		}
	}
}

// Stop halts the periodic loop and makes sure the rule is gone
func (t *TCPReset) Stop(ctx context.Context) error {
	if t.stop != nil {
		close(t.stop)
		<-t.done
		t.stop = nil
	}
	return t.delete(ctx)
}

// Active reports whether the rule is currently inserted
func (t *TCPReset) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *TCPReset) insert(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return nil
	}
	log.Infof("[Chaos]: Inserting tcp reset rule: %s", strings.Join(t.Rule.spec(), " "))
	if _, err := t.Runner.Run(ctx, "iptables", append([]string{"-I"}, t.Rule.spec()...)...); err != nil {
		return err
	}
	t.active = true
	return nil
}

func (t *TCPReset) delete(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return nil
	}
	if _, err := t.Runner.Run(ctx, "iptables", append([]string{"-D"}, t.Rule.spec()...)...); err != nil {
		if !strings.Contains(err.Error(), ruleNotFound) {
			return err
		}
		log.Warn("[Revert]: The tcp reset rule has already been removed")
	}
	t.active = false
	return nil
}
