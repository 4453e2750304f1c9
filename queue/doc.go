// Package queue holds the queue entity and the in-memory ordering engine
// that ranks a queue's active tokens.
//
// Each queue has a [Line]: waiting tokens are kept in a red-black tree keyed
// by (priority rank, created_at, seq) and called tokens sit in a separate set
// at position 0. Positions of waiting tokens are always 1..k with no gaps.
//
// # Manager
//
// [Manager] owns one Line per queue and one mutex per Line. All membership
// changes and position reads for a queue happen inside [Manager.Do], so
// operations on different queues never block each other:
//
//	err := m.Do(queueID, func(l *queue.Line) error {
//	    if err := l.Insert(entry); err != nil {
//	        return err
//	    }
//	    positions, err := l.Positions()
//	    ...
//	})
//
// A per-queue token-bucket limiter (golang.org/x/time/rate) optionally
// throttles admissions.
package queue
