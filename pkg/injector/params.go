package injector

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	disklib "github.com/litmuschaos/litmus-scenarios/chaoslib/litmus/disk-slow/lib"
	processlib "github.com/litmuschaos/litmus-scenarios/chaoslib/litmus/process-kill/lib"
	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/litmuschaos/litmus-scenarios/pkg/utils/common"
	"golang.org/x/sys/unix"
)

const defaultPulse = time.Second

// accepted lists the parameter names of every kind
var accepted = map[types.InjectionKind][]string{
	types.NetworkLatency: {"latency", "jitter", "distribution", "correlation"},
	types.PacketLoss:     {"probability"},
	types.TCPReset:       {"mode", "interval", "port", "pulse"},
	types.CPUStarvation:  {"utilization", "workers"},
	types.MemoryPressure: {"bytes", "fraction"},
	types.DiskSlow:       {"bytes_per_sec", "path", "direction"},
	types.ProcessKill:    {"signal", "restart"},
}

// AcceptedParameters returns the parameter names the kind understands
func AcceptedParameters(kind types.InjectionKind) []string {
	return append([]string(nil), accepted[kind]...)
}

type latencyParams struct {
	Latency      time.Duration
	Jitter       time.Duration
	Distribution string
	Correlation  float64
}

type lossParams struct {
	Probability float64
}

type resetParams struct {
	Periodic bool
	Interval time.Duration
	Port     int
	Pulse    time.Duration
}

type cpuParams struct {
	Utilization float64
	Workers     int
}

type memoryParams struct {
	Bytes    int64
	Fraction float64
}

type diskParams struct {
	BytesPerSec uint64
	Path        string
	Direction   disklib.Direction
}

type killParams struct {
	Signal  unix.Signal
	Restart processlib.RestartPolicy
}

// ValidateParams checks the parameter names and values of one injection
func ValidateParams(kind types.InjectionKind, params map[string]string) error {
	_, err := parseParams(kind, params)
	return err
}

func parseParams(kind types.InjectionKind, params map[string]string) (interface{}, error) {
	names, ok := accepted[kind]
	if !ok {
		return nil, cerrors.Injector{Kind: string(kind), Reason: cerrors.ReasonUnsupportedParameter, Detail: "unknown injection kind"}
	}
	var unknown []string
	for name := range params {
		if !common.Contains(name, names) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, unsupported(kind, "unknown parameter(s) %s, accepted: %s", strings.Join(unknown, ", "), strings.Join(names, ", "))
	}

	p := paramReader{kind: kind, params: params}
	var parsed interface{}
	switch kind {
	case types.NetworkLatency:
		parsed = p.latency()
	case types.PacketLoss:
		parsed = lossParams{Probability: p.fraction("probability", true, true)}
	case types.TCPReset:
		parsed = p.reset()
	case types.CPUStarvation:
		parsed = p.cpu()
	case types.MemoryPressure:
		parsed = p.memory()
	case types.DiskSlow:
		parsed = p.disk()
	case types.ProcessKill:
		parsed = p.kill()
	}
	if p.err != nil {
		return nil, p.err
	}
	return parsed, nil
}

// paramReader keeps the first conversion error, so each parser reads straight through
type paramReader struct {
	kind   types.InjectionKind
	params map[string]string
	err    error
}

func (p *paramReader) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = unsupported(p.kind, format, args...)
	}
}

func (p *paramReader) value(name string, required bool) (string, bool) {
	v, ok := p.params[name]
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		if required {
			p.fail("missing required parameter %q", name)
		}
		return "", false
	}
	return v, true
}

func (p *paramReader) duration(name string, required bool, def time.Duration) time.Duration {
	v, ok := p.value(name, required)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		p.fail("%s must be a non-negative duration, got %q", name, v)
		return def
	}
	return d
}

// fraction reads a value in [0,1], or (0,1] when zero is not allowed
func (p *paramReader) fraction(name string, required, allowZero bool) float64 {
	v, ok := p.value(name, required)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
	if err == nil && strings.HasSuffix(v, "%") {
		f /= 100
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > 1 || (!allowZero && f == 0) {
		p.fail("%s must be a number in [0,1], got %q", name, v)
		return 0
	}
	return f
}

func (p *paramReader) integer(name string, min, max int, def int) int {
	v, ok := p.value(name, false)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		p.fail("%s must be an integer in [%d,%d], got %q", name, min, max, v)
		return def
	}
	return n
}

func (p *paramReader) size(name string, required bool) int64 {
	v, ok := p.value(name, required)
	if !ok {
		return 0
	}
	n, err := units.RAMInBytes(v)
	if err != nil || n <= 0 {
		p.fail("%s must be a positive size such as 256MiB, got %q", name, v)
		return 0
	}
	return n
}

func (p *paramReader) oneOf(name, def string, allowed ...string) string {
	v, ok := p.value(name, false)
	if !ok {
		return def
	}
	v = strings.ToLower(v)
	if !common.Contains(v, allowed) {
		p.fail("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), v)
		return def
	}
	return v
}

func (p *paramReader) latency() latencyParams {
	l := latencyParams{
		Latency:      p.duration("latency", true, 0),
		Jitter:       p.duration("jitter", false, 0),
		Distribution: p.oneOf("distribution", "", "normal", "pareto", "paretonormal"),
		Correlation:  p.fraction("correlation", false, true),
	}
	if p.err == nil && l.Latency == 0 {
		p.fail("latency must be greater than zero")
	}
	if p.err == nil && l.Distribution != "" && l.Jitter == 0 {
		p.fail("distribution needs a jitter")
	}
	return l
}

func (p *paramReader) reset() resetParams {
	r := resetParams{
		Periodic: p.oneOf("mode", "oneshot", "oneshot", "periodic") == "periodic",
		Port:     p.integer("port", 0, 65535, 0),
		Pulse:    p.duration("pulse", false, defaultPulse),
	}
	r.Interval = p.duration("interval", r.Periodic, 0)
	if p.err != nil {
		return r
	}
	switch {
	case r.Pulse == 0:
		p.fail("pulse must be greater than zero")
	case r.Periodic && r.Interval <= r.Pulse:
		p.fail("interval %v must be longer than the pulse %v", r.Interval, r.Pulse)
	case !r.Periodic && r.Interval > 0:
		p.fail("interval is only accepted in periodic mode")
	}
	return r
}

func (p *paramReader) cpu() cpuParams {
	c := cpuParams{
		Utilization: 1,
		Workers:     p.integer("workers", 0, 1024, 0),
	}
	if _, ok := p.params["utilization"]; ok {
		c.Utilization = p.fraction("utilization", true, false)
	}
	return c
}

func (p *paramReader) memory() memoryParams {
	_, hasBytes := p.params["bytes"]
	_, hasFraction := p.params["fraction"]
	switch {
	case hasBytes && hasFraction:
		p.fail("bytes and fraction are mutually exclusive")
	case hasBytes:
		return memoryParams{Bytes: p.size("bytes", true)}
	case hasFraction:
		return memoryParams{Fraction: p.fraction("fraction", true, false)}
	default:
		p.fail("one of bytes or fraction is required")
	}
	return memoryParams{}
}

func (p *paramReader) disk() diskParams {
	d := diskParams{
		BytesPerSec: uint64(p.size("bytes_per_sec", true)),
		Path:        "/",
		Direction:   disklib.Direction(p.oneOf("direction", string(disklib.Both), string(disklib.Read), string(disklib.Write), string(disklib.Both))),
	}
	if v, ok := p.value("path", false); ok {
		if !strings.HasPrefix(v, "/") {
			p.fail("path must be absolute, got %q", v)
		}
		d.Path = v
	}
	return d
}

func (p *paramReader) kill() killParams {
	k := killParams{
		Signal:  unix.SIGTERM,
		Restart: processlib.RestartPolicy(p.oneOf("restart", string(processlib.RestartNever), string(processlib.RestartNever), string(processlib.RestartAlways))),
	}
	if v, ok := p.value("signal", false); ok {
		sig, err := processlib.ParseSignal(v)
		if err != nil {
			p.fail("%v", err)
		}
		k.Signal = sig
	}
	if processlib.Pausing(k.Signal) && k.Restart == processlib.RestartAlways {
		p.fail("restart is not supported with %s, the process is resumed on revert", unix.SignalName(k.Signal))
	}
	return k
}

func unsupported(kind types.InjectionKind, format string, args ...interface{}) error {
	return cerrors.Injector{Kind: string(kind), Reason: cerrors.ReasonUnsupportedParameter, Detail: fmt.Sprintf(format, args...)}
}
