package telemetry

import (
	"context"

	"github.com/litmuschaos/litmus-scenarios/pkg/events"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics turns run events into OpenTelemetry instruments exported in the
// Prometheus format
type Metrics struct {
	provider       *sdkmetric.MeterProvider
	injections     metric.Int64Counter
	revertFailures metric.Int64Counter
	liveFaults     metric.Int64UpDownCounter
	holdSeconds    metric.Float64Histogram
	runs           metric.Int64Counter
}

// NewMetrics registers the instruments with the given registerer
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(TracerName)

	m := &Metrics{provider: provider}
	if m.injections, err = meter.Int64Counter("chaos_injections",
		metric.WithDescription("Injections that reached a terminal outcome")); err != nil {
		return nil, err
	}
	if m.revertFailures, err = meter.Int64Counter("chaos_revert_failures",
		metric.WithDescription("Faults that could not be reverted")); err != nil {
		return nil, err
	}
	if m.liveFaults, err = meter.Int64UpDownCounter("chaos_live_faults",
		metric.WithDescription("Faults currently applied")); err != nil {
		return nil, err
	}
	if m.holdSeconds, err = meter.Float64Histogram("chaos_hold",
		metric.WithUnit("s"),
		metric.WithDescription("Time a fault was held before revert")); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("chaos_scenario_runs",
		metric.WithDescription("Scenario runs by final state")); err != nil {
		return nil, err
	}
	return m, nil
}

// Handle implements events.Sink
func (m *Metrics) Handle(e events.Event) {
	ctx := context.Background()
	switch e.Type {
	case events.InjectionApplied:
		m.liveFaults.Add(ctx, 1, metric.WithAttributes(kindAttr(e.Outcome)))
	case events.InjectionReverted:
		m.liveFaults.Add(ctx, -1, metric.WithAttributes(kindAttr(e.Outcome)))
	case events.InjectionCompleted:
		if e.Outcome == nil {
			return
		}
		attrs := metric.WithAttributes(kindAttr(e.Outcome), attribute.String("status", string(e.Outcome.Status)))
		m.injections.Add(ctx, 1, attrs)
		if e.Outcome.Status == types.OutcomeRevertFailed {
			m.revertFailures.Add(ctx, 1, metric.WithAttributes(kindAttr(e.Outcome)))
		}
		if !e.Outcome.AppliedAt.IsZero() {
			m.holdSeconds.Record(ctx, e.Outcome.Held.Seconds(), metric.WithAttributes(kindAttr(e.Outcome)))
		}
	case events.RunFinished:
		m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("state", e.State)))
	}
}

// Shutdown stops the meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func kindAttr(o *types.InjectionOutcome) attribute.KeyValue {
	if o == nil {
		return attribute.String("kind", "unknown")
	}
	return attribute.String("kind", string(o.Kind))
}
