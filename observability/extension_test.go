package observability_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/ext"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/observability"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestToken() *token.Token {
	wait, service := 12, 7
	return &token.Token{
		ID:            id.NewTokenID(),
		Domain:        smartqueue.DomainHealthcare,
		Priority:      token.PriorityNormal,
		EstimatedWait: 15,
		ActualWait:    &wait,
		ActualService: &service,
	}
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func counterValue(t *testing.T, metrics map[string]metricdata.Metrics, name string) int64 {
	t.Helper()
	m, ok := metrics[name]
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func histogramSum(t *testing.T, metrics map[string]metricdata.Metrics, name string) int64 {
	t.Helper()
	m, ok := metrics[name]
	if !ok {
		t.Fatalf("%s not recorded", name)
	}
	hist, ok := m.Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatalf("%s: expected Histogram[int64], got %T", name, m.Data)
	}
	var total int64
	for _, dp := range hist.DataPoints {
		total += dp.Sum
	}
	return total
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_LifecycleCounters(t *testing.T) {
	ctx := context.Background()
	e, reader := newTestExtension()
	tok := newTestToken()

	_ = e.OnTokenAdmitted(ctx, tok)
	_ = e.OnTokenCalled(ctx, tok, id.NewStaffID())
	_ = e.OnServiceStarted(ctx, tok)
	_ = e.OnServiceCompleted(ctx, tok, nil)
	_ = e.OnTokenAdmitted(ctx, tok)
	_ = e.OnTokenCancelled(ctx, tok, token.StateActive)
	_ = e.OnTokenExpired(ctx, tok)

	metrics := collect(t, reader)
	tests := []struct {
		name string
		want int64
	}{
		{"smartqueue.token.admitted", 2},
		{"smartqueue.token.called", 1},
		{"smartqueue.token.service_started", 1},
		{"smartqueue.token.completed", 1},
		{"smartqueue.token.cancelled", 1},
		{"smartqueue.token.expired", 1},
	}
	for _, tt := range tests {
		if got := counterValue(t, metrics, tt.name); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestMetricsExtension_Minutes(t *testing.T) {
	ctx := context.Background()
	e, reader := newTestExtension()
	tok := newTestToken()

	_ = e.OnTokenAdmitted(ctx, tok)
	_ = e.OnServiceStarted(ctx, tok)
	_ = e.OnServiceCompleted(ctx, tok, nil)

	metrics := collect(t, reader)
	if got := histogramSum(t, metrics, "smartqueue.token.predicted_wait"); got != 15 {
		t.Errorf("predicted wait sum = %d, want 15", got)
	}
	if got := histogramSum(t, metrics, "smartqueue.token.wait"); got != 12 {
		t.Errorf("wait sum = %d, want 12", got)
	}
	if got := histogramSum(t, metrics, "smartqueue.token.service"); got != 7 {
		t.Errorf("service sum = %d, want 7", got)
	}
}

func TestMetricsExtension_ModelTrained(t *testing.T) {
	ctx := context.Background()
	e, reader := newTestExtension()

	_ = e.OnModelTrained(ctx, estimator.TrainResult{Trained: true, Version: "lr-1"})
	_ = e.OnModelTrained(ctx, estimator.TrainResult{SkipReason: "not enough records"})

	if got := counterValue(t, collect(t, reader), "smartqueue.model.retrains"); got != 2 {
		t.Errorf("retrains = %d, want 2", got)
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	r := ext.NewRegistry(nil)
	r.Register(e)

	r.EmitTokenAdmitted(context.Background(), newTestToken())

	if got := counterValue(t, collect(t, reader), "smartqueue.token.admitted"); got != 1 {
		t.Errorf("admitted = %d, want 1", got)
	}
}

func TestMetricsExtension_DefaultNoopSafe(t *testing.T) {
	e := observability.NewMetricsExtension()
	if err := e.OnTokenAdmitted(context.Background(), newTestToken()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
