package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/sirupsen/logrus"
)

// Recorder fans events out to its sinks. Emit is serialised, so every sink
// observes the events in the same order they were emitted.
type Recorder struct {
	mu    sync.Mutex
	sinks []Sink
}

// NewRecorder returns a recorder delivering to the given sinks
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// Add registers another sink
func (r *Recorder) Add(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, sink)
}

// Emit delivers the event to every sink. A nil recorder drops the event.
func (r *Recorder) Emit(e Event) {
	if r == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sink := range r.sinks {
		sink.Handle(e)
	}
}

// LogSink writes every event to the package logger
type LogSink struct{}

func (LogSink) Handle(e Event) {
	fields := logrus.Fields{"RunID": e.RunID, "Scenario": e.Scenario}
	if e.Phase != "" {
		fields["Phase"] = e.Phase
	}
	entry := log.WithFields(fields)
	switch {
	case e.Outcome != nil:
		entry = entry.WithFields(logrus.Fields{
			"Kind":   e.Outcome.Kind,
			"Target": e.Outcome.Target,
			"Status": e.Outcome.Status,
		})
		if e.Outcome.Reason != "" {
			entry = entry.WithField("Reason", e.Outcome.Reason)
		}
	case e.PhaseResult != nil:
		entry = entry.WithFields(logrus.Fields{
			"Succeeded": e.PhaseResult.Succeeded,
			"Failed":    e.PhaseResult.Failed,
		})
	case e.Result != nil:
		entry = entry.WithFields(logrus.Fields{
			"State":       e.State,
			"SuccessRate": e.Result.SuccessRate(),
		})
	}
	entry.Debugf("[Event]: %s", e.Type)
}

// ChannelSink buffers events for a consumer on another goroutine.
// Events are dropped rather than blocking the run when the buffer is full.
type ChannelSink struct {
	C       chan Event
	dropped uint64
}

// NewChannelSink returns a sink with the given buffer size
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan Event, buffer)}
}

func (c *ChannelSink) Handle(e Event) {
	select {
	case c.C <- e:
	default:
		atomic.AddUint64(&c.dropped, 1)
	}
}

// Dropped returns the number of events that did not fit in the buffer
func (c *ChannelSink) Dropped() uint64 {
	return atomic.LoadUint64(&c.dropped)
}
