// Package observability provides an OpenTelemetry metrics extension for
// SmartQueue. The MetricsExtension implements lifecycle hooks to record
// token counters, observed wait and service minutes, predicted waits and
// estimator retraining outcomes.
//
// For per-operation tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
