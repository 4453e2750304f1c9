// Package sequence issues strictly monotonic admission numbers.
package sequence

import (
	"context"
	"sync/atomic"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// Sequencer generates strictly monotonic sequence numbers. One sequencer
// numbers every domain so display numbers never collide.
type Sequencer struct {
	next atomic.Uint64
}

var _ token.NumberAllocator = (*Sequencer)(nil)

// New creates a sequencer whose first issued value is start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued number.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// AdvanceTo raises the sequencer to at least v. Used after restoring
// tokens from the store so new numbers follow the persisted ones.
func (s *Sequencer) AdvanceTo(v uint64) {
	for {
		cur := s.next.Load()
		if cur >= v || s.next.CompareAndSwap(cur, v) {
			return
		}
	}
}

// NextNumber implements token.NumberAllocator.
func (s *Sequencer) NextNumber(_ context.Context, _ smartqueue.Domain) (uint64, error) {
	return s.Next(), nil
}
