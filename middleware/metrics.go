package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for smartqueue metrics.
const meterName = "github.com/Jiyabhaviksadaria/smartqueue"

// Metrics returns middleware that records per-operation metrics using the
// global OTel MeterProvider.
//
// Instruments:
//   - smartqueue.operation.duration (Float64Histogram): seconds, with
//     attributes op and status ("ok" or "error")
//   - smartqueue.operation.count (Int64Counter): same attributes
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API hands back noop instruments on error.
	duration, _ := meter.Float64Histogram(
		"smartqueue.operation.duration",
		metric.WithDescription("Duration of scheduling operations in seconds"),
		metric.WithUnit("s"),
	)
	count, _ := meter.Int64Counter(
		"smartqueue.operation.count",
		metric.WithDescription("Total number of scheduling operations"),
		metric.WithUnit("{operation}"),
	)

	return func(ctx context.Context, op *Op, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("op", op.Name),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		count.Add(ctx, 1, attrs)
		return err
	}
}
