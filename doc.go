// Package smartqueue is a token scheduling engine for service queues.
//
// Arriving users are admitted into per-queue lines as tokens. Tokens are
// ordered by priority class and arrival, carry a predicted wait time, and move
// through a small lifecycle (active, called, in service, completed) while
// status changes are streamed to connected clients.
//
// # Quick Start
//
//	rt, err := smartqueue.New(
//	    smartqueue.WithStore(memory.New()),
//	    smartqueue.WithLogger(logger),
//	)
//	eng, err := engine.Build(rt)
//	tok, err := eng.AdmitToken(ctx, engine.AdmitRequest{QueueID: qid, UserID: uid})
//
// # Architecture
//
// Each subsystem (token, queue, history, staff, event) defines its own store
// interface and a single backend implements all of them. Queue lines are
// held in memory, one lock per queue, and rebuilt from the store on start.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based.
package smartqueue
