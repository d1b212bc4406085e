package lib

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/litmuschaos/litmus-scenarios/pkg/utils/exec"
	"github.com/pkg/errors"
)

const (
	qdiscNotFound    = "Cannot delete qdisc with handle of zero"
	qdiscNoFileFound = "RTNETLINK answers: No such file or directory"
	qdiscExists      = "RTNETLINK answers: File exists"
)

// ErrQdiscExists is returned when the interface already carries a root qdisc
var ErrQdiscExists = errors.New("interface already has a root qdisc")

// Netem drives the tc netem queueing discipline of an interface
type Netem struct {
	Runner exec.Runner
}

// LatencyArgs builds the netem delay arguments
func LatencyArgs(latency, jitter time.Duration, distribution string, correlation float64) []string {
	args := []string{"delay", formatDuration(latency)}
	if jitter > 0 {
		args = append(args, formatDuration(jitter))
		if correlation > 0 {
			args = append(args, formatPercent(correlation))
		}
		if distribution != "" {
			args = append(args, "distribution", distribution)
		}
	}
	return args
}

// LossArgs builds the netem loss arguments from a probability in [0,1]
func LossArgs(probability float64) []string {
	return []string{"loss", formatPercent(probability)}
}

// Inject adds a root netem qdisc on the interface. An existing root qdisc
// is never replaced, it could not be restored on revert.
func (n Netem) Inject(ctx context.Context, iface string, args []string) error {
	cmd := append([]string{"qdisc", "add", "dev", iface, "root", "netem"}, args...)
	log.Infof("[Chaos]: Adding netem on %s: %s", iface, strings.Join(args, " "))
	if _, err := n.Runner.Run(ctx, "tc", cmd...); err != nil {
		if strings.Contains(err.Error(), qdiscExists) {
			return errors.Wrapf(ErrQdiscExists, "tc on %s", iface)
		}
		return err
	}
	return nil
}

// Remove deletes the root qdisc, a qdisc that is already gone counts as removed
func (n Netem) Remove(ctx context.Context, iface string) error {
	log.Infof("[Revert]: Removing netem from %s", iface)
	if _, err := n.Runner.Run(ctx, "tc", "qdisc", "del", "dev", iface, "root"); err != nil {
		if strings.Contains(err.Error(), qdiscNotFound) || strings.Contains(err.Error(), qdiscNoFileFound) {
			log.Warn("[Revert]: The netem qdisc has already been removed")
			return nil
		}
		return err
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d%time.Millisecond == 0 {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%dus", d.Microseconds())
}

func formatPercent(fraction float64) string {
	return strconv.FormatFloat(fraction*100, 'f', -1, 64) + "%"
}
