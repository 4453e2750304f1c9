// Package engine wires the SmartQueue subsystems together and provides the
// scheduling operations: admission, call-next, service, cancellation and
// expiry of tokens, queue and staff management, wait prediction and
// analytics.
//
// The engine package exists to break a fundamental import cycle: the root
// smartqueue package defines Entity and the error taxonomy (imported by
// token, queue, staff, etc.) and therefore cannot import those packages
// back. Engine sits above all subsystem packages and below the application
// layer.
//
// # Building an Engine
//
//	rt, err := smartqueue.New(
//	    smartqueue.WithStore(memory.New()),
//	    smartqueue.WithExpiryGrace(5*time.Minute),
//	)
//
//	eng, err := engine.Build(rt,
//	    engine.WithExtension(stream.NewBroker(logger)),
//	    engine.WithMiddleware(myMiddleware),
//	    engine.WithPolicy(token.DefaultPolicy()),
//	)
//
//	if err := eng.Restore(ctx); err != nil { ... }
//	if err := eng.Start(ctx); err != nil { ... }
//
// # Serving a Token
//
//	tok, _ := eng.AdmitToken(ctx, engine.AdmitRequest{QueueID: q.ID, SeverityScore: 9})
//	tok, _ = eng.CallNext(ctx, q.ID, doctor.ID)
//	tok, _ = eng.StartService(ctx, tok.ID)
//	tok, rec, _ := eng.CompleteService(ctx, tok.ID)
//
// # Concurrency
//
// Each queue has its own line lock. Admission, call-next, removal, position
// recomputation and token persistence for one queue happen inside that
// lock, so positions are never stale and two concurrent CallNext calls
// never return the same token. Operations on different queues never block
// each other. Retraining reads a history snapshot without any line lock.
//
// # Options
//
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the operation chain
//   - [WithPolicy]: set the priority derivation constants
//   - [WithEstimator]: supply a wait estimator
//   - [WithNumberAllocator]: share token numbers across engines
//   - [WithRestoreConcurrency]: bound parallel line restoration
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine
