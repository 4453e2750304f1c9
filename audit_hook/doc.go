// Package audithook is a SmartQueue extension that writes token lifecycle
// events to an audit trail.
//
// Every token, queue and estimator hook emits a structured audit event
// through the [Recorder] interface. Cancellations and expiries carry
// warning severity; normal service steps are info. When the context carries
// a caller ([smartqueue.Actor]) its user, role and IP are stamped on the
// event.
//
// # Usage
//
//	st := postgres.New(pool)
//	eng, _ := engine.Build(rt, engine.WithExtension(audithook.New(st)))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionTokenCancelled,
//	        audithook.ActionTokenExpired,
//	    ),
//	)
package audithook
