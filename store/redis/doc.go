// Package redis implements store.Store on Redis. Entities are stored as
// JSON strings, Sorted Sets index tokens by admission sequence, history is
// a List and status changes are appended to a Stream.
//
// The store also allocates token numbers with INCR, so several SmartQueue
// processes sharing one Redis never hand out the same number:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	eng, err := engine.Build(rt, engine.WithNumberAllocator(s))
//
// The caller owns the client lifecycle; Close never closes it.
package redis
