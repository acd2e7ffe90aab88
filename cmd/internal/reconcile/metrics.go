package reconcile

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the reconciliation instruments.
const MeterName = "fieldconfirm/reconcile"

// Metrics records per-schedule outcomes and run durations. A nil *Metrics is
// a valid no-op.
type Metrics struct {
	outcomes metric.Int64Counter
	runs     metric.Float64Histogram
}

// NewMetrics registers instruments on the given meter, or the global one when nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}

	outcomes, err := meter.Int64Counter("reconcile.schedule.outcomes",
		metric.WithDescription("Schedules processed by reconciliation, by outcome"))
	if err != nil {
		return nil, err
	}

	runs, err := meter.Float64Histogram("reconcile.run.duration",
		metric.WithDescription("Wall time of one reconciliation run"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{outcomes: outcomes, runs: runs}, nil
}

func (m *Metrics) recordOutcome(ctx context.Context, outcome Outcome, action Action) {
	if m == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.String("action", string(action)),
	))
}

func (m *Metrics) recordRun(ctx context.Context, d time.Duration, trigger string) {
	if m == nil {
		return
	}
	m.runs.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("trigger", trigger)))
}
