package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/ext"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*MetricsExtension)(nil)
	_ ext.TokenAdmitted    = (*MetricsExtension)(nil)
	_ ext.TokenCalled      = (*MetricsExtension)(nil)
	_ ext.ServiceStarted   = (*MetricsExtension)(nil)
	_ ext.ServiceCompleted = (*MetricsExtension)(nil)
	_ ext.TokenCancelled   = (*MetricsExtension)(nil)
	_ ext.TokenExpired     = (*MetricsExtension)(nil)
	_ ext.ModelTrained     = (*MetricsExtension)(nil)
)

// meterName is the instrumentation scope of the lifecycle counters.
const meterName = "github.com/Jiyabhaviksadaria/smartqueue/observability"

// MetricsExtension records system-wide token lifecycle metrics. Register
// it as an extension to track admission, call, completion, cancellation
// and expiry rates, observed wait and service minutes, and estimator
// retraining.
type MetricsExtension struct {
	TokensAdmitted  metric.Int64Counter
	TokensCalled    metric.Int64Counter
	ServicesStarted metric.Int64Counter
	TokensCompleted metric.Int64Counter
	TokensCancelled metric.Int64Counter
	TokensExpired   metric.Int64Counter
	ModelRetrains   metric.Int64Counter

	WaitMinutes    metric.Int64Histogram
	ServiceMinutes metric.Int64Histogram
	PredictedWait  metric.Int64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to noop instruments.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{token}"))
		return c
	}
	minutes := func(name, desc string) metric.Int64Histogram {
		h, _ := meter.Int64Histogram(name, metric.WithDescription(desc), metric.WithUnit("min"))
		return h
	}

	retrains, _ := meter.Int64Counter("smartqueue.model.retrains",
		metric.WithDescription("Estimator retraining attempts"),
		metric.WithUnit("{retrain}"),
	)

	return &MetricsExtension{
		TokensAdmitted:  counter("smartqueue.token.admitted", "Tokens admitted into a queue"),
		TokensCalled:    counter("smartqueue.token.called", "Tokens called by a server"),
		ServicesStarted: counter("smartqueue.token.service_started", "Services started"),
		TokensCompleted: counter("smartqueue.token.completed", "Services completed"),
		TokensCancelled: counter("smartqueue.token.cancelled", "Tokens cancelled"),
		TokensExpired:   counter("smartqueue.token.expired", "Called tokens that never showed up"),
		ModelRetrains:   retrains,

		WaitMinutes:    minutes("smartqueue.token.wait", "Observed wait from admission to service start"),
		ServiceMinutes: minutes("smartqueue.token.service", "Observed service duration"),
		PredictedWait:  minutes("smartqueue.token.predicted_wait", "Wait predicted at admission"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func tokenAttrs(t *token.Token) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", string(t.Domain)),
		attribute.String("priority", string(t.Priority)),
	)
}

// OnTokenAdmitted implements ext.TokenAdmitted.
func (m *MetricsExtension) OnTokenAdmitted(ctx context.Context, t *token.Token) error {
	attrs := tokenAttrs(t)
	m.TokensAdmitted.Add(ctx, 1, attrs)
	m.PredictedWait.Record(ctx, int64(t.EstimatedWait), attrs)
	return nil
}

// OnTokenCalled implements ext.TokenCalled.
func (m *MetricsExtension) OnTokenCalled(ctx context.Context, t *token.Token, _ id.StaffID) error {
	m.TokensCalled.Add(ctx, 1, tokenAttrs(t))
	return nil
}

// OnServiceStarted implements ext.ServiceStarted.
func (m *MetricsExtension) OnServiceStarted(ctx context.Context, t *token.Token) error {
	attrs := tokenAttrs(t)
	m.ServicesStarted.Add(ctx, 1, attrs)
	if t.ActualWait != nil {
		m.WaitMinutes.Record(ctx, int64(*t.ActualWait), attrs)
	}
	return nil
}

// OnServiceCompleted implements ext.ServiceCompleted.
func (m *MetricsExtension) OnServiceCompleted(ctx context.Context, t *token.Token, _ *history.Record) error {
	attrs := tokenAttrs(t)
	m.TokensCompleted.Add(ctx, 1, attrs)
	if t.ActualService != nil {
		m.ServiceMinutes.Record(ctx, int64(*t.ActualService), attrs)
	}
	return nil
}

// OnTokenCancelled implements ext.TokenCancelled.
func (m *MetricsExtension) OnTokenCancelled(ctx context.Context, t *token.Token, from token.State) error {
	m.TokensCancelled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("domain", string(t.Domain)),
		attribute.String("from", string(from)),
	))
	return nil
}

// OnTokenExpired implements ext.TokenExpired.
func (m *MetricsExtension) OnTokenExpired(ctx context.Context, t *token.Token) error {
	m.TokensExpired.Add(ctx, 1, tokenAttrs(t))
	return nil
}

// OnModelTrained implements ext.ModelTrained.
func (m *MetricsExtension) OnModelTrained(ctx context.Context, res estimator.TrainResult) error {
	outcome := "skipped"
	if res.Trained {
		outcome = "trained"
	}
	m.ModelRetrains.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return nil
}
