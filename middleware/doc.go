// Package middleware provides composable middleware for engine operations.
//
// Every public engine call (admit, call next, start, complete, cancel,
// queue administration) runs through a [Middleware] chain built with
// [Chain]. The first middleware in the slice is the outermost wrapper.
//
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Logging]: operation name, target, duration and outcome
//   - [Recover]: turns panics into errors
//   - [Timeout]: bounds each operation
//   - [RequireStaff]: rejects staff-only operations for non-staff callers
//   - [Tracing]: wraps the operation in an OpenTelemetry span
//   - [Metrics]: per-operation duration and outcome counters
package middleware
