package queue

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

// Config defines the ordering behaviour of a single queue line.
type Config struct {
	// QueueID identifies the queue the line belongs to.
	QueueID id.QueueID

	// Capacity caps waiting plus called tokens. Zero or less means no cap.
	Capacity int

	// Active reports whether the line accepts admissions. Inactive lines
	// still drain existing tokens.
	Active bool

	// AdmissionRate is the sustained admissions per second. Zero disables
	// throttling.
	AdmissionRate float64

	// AdmissionBurst is the token-bucket burst. Defaults to 1 when
	// AdmissionRate is set.
	AdmissionBurst int
}

// Entry is a token's place in a line.
type Entry struct {
	TokenID id.TokenID
	Key     Key
}

// Line is the ordered set of one queue's active tokens. Waiting tokens are
// ordered by Key; called tokens are held apart at position 0.
//
// A Line is not safe for concurrent use on its own; callers go through
// Manager.Do, which holds the line's mutex.
type Line struct {
	queueID id.QueueID

	mu      sync.Mutex
	config  Config
	limiter *rate.Limiter

	waiting *tree
	index   map[string]Key
	called  map[string]id.TokenID

	// loaded is set once the line holds every active token of its queue.
	loaded bool
	// stale is set when a position write failed; the next sync rewrites
	// every position.
	stale bool
}

func newLine(cfg Config) *Line {
	l := &Line{
		queueID: cfg.QueueID,
		waiting: &tree{},
		index:   make(map[string]Key),
		called:  make(map[string]id.TokenID),
	}
	l.configure(cfg)
	return l
}

func (l *Line) configure(cfg Config) {
	l.config = cfg
	l.limiter = nil
	if cfg.AdmissionRate > 0 {
		burst := cfg.AdmissionBurst
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.AdmissionRate), burst)
	}
}

// QueueID returns the queue this line orders.
func (l *Line) QueueID() id.QueueID { return l.queueID }

// Config returns the line configuration.
func (l *Line) Config() Config { return l.config }

// Waiting returns the number of uncalled tokens.
func (l *Line) Waiting() int { return l.waiting.Len() }

// CalledCount returns the number of called tokens awaiting service.
func (l *Line) CalledCount() int { return len(l.called) }

// Active returns the number of tokens counted against capacity.
func (l *Line) Active() int { return l.waiting.Len() + len(l.called) }

// Loaded reports whether the line has been filled from the store.
func (l *Line) Loaded() bool { return l.loaded }

// MarkLoaded records that the line holds every active token.
func (l *Line) MarkLoaded() { l.loaded = true }

// PositionsStale reports whether stored positions may lag the line.
func (l *Line) PositionsStale() bool { return l.stale }

// SetPositionsStale records whether stored positions lag the line.
func (l *Line) SetPositionsStale(stale bool) { l.stale = stale }

// Contains reports whether the token is waiting or called.
func (l *Line) Contains(tokenID id.TokenID) bool {
	if _, ok := l.index[tokenID.String()]; ok {
		return true
	}
	_, ok := l.called[tokenID.String()]
	return ok
}

// Insert places a new waiting token. It fails with ErrQueueInactive when
// the line is closed to admissions and ErrQueueFull at capacity.
func (l *Line) Insert(e Entry) error {
	if !l.config.Active {
		return smartqueue.ErrQueueInactive
	}
	if l.config.Capacity > 0 && l.Active() >= l.config.Capacity {
		return smartqueue.ErrQueueFull
	}
	if l.Contains(e.TokenID) {
		return smartqueue.ErrTokenAlreadyExists
	}
	l.put(e)
	return nil
}

// Restore places an existing token without admission checks.
func (l *Line) Restore(e Entry, called bool) {
	if l.Contains(e.TokenID) {
		return
	}
	if called {
		l.called[e.TokenID.String()] = e.TokenID
		return
	}
	l.put(e)
}

// Entry returns a token's entry. called is true for called tokens, whose
// entry carries only the ID. ok is false for tokens not in the line.
func (l *Line) Entry(tokenID id.TokenID) (e Entry, called, ok bool) {
	key := tokenID.String()
	if k, found := l.index[key]; found {
		return Entry{TokenID: tokenID, Key: k}, false, true
	}
	if _, found := l.called[key]; found {
		return Entry{TokenID: tokenID}, true, true
	}
	return Entry{}, false, false
}

func (l *Line) put(e Entry) {
	l.waiting.Put(e.Key, e.TokenID)
	l.index[e.TokenID.String()] = e.Key
}

// Remove drops a token from the line. Removing an absent token is a no-op.
// It reports whether the token was present.
func (l *Line) Remove(tokenID id.TokenID) bool {
	key := tokenID.String()
	if k, ok := l.index[key]; ok {
		l.waiting.Delete(k)
		delete(l.index, key)
		return true
	}
	if _, ok := l.called[key]; ok {
		delete(l.called, key)
		return true
	}
	return false
}

// Next returns the first waiting token without removing it.
func (l *Line) Next() (Entry, bool) {
	k, tokenID, ok := l.waiting.Min()
	if !ok {
		return Entry{}, false
	}
	return Entry{TokenID: tokenID, Key: k}, true
}

// MarkCalled moves a waiting token to the called set.
func (l *Line) MarkCalled(tokenID id.TokenID) error {
	key := tokenID.String()
	k, ok := l.index[key]
	if !ok {
		return fmt.Errorf("%w: %s is not waiting", smartqueue.ErrTokenNotFound, tokenID)
	}
	l.waiting.Delete(k)
	delete(l.index, key)
	l.called[key] = tokenID
	return nil
}

// Position returns a token's position: 1-based among waiting tokens, 0 when
// called. ok is false for tokens not in the line.
func (l *Line) Position(tokenID id.TokenID) (pos int, ok bool) {
	if k, found := l.index[tokenID.String()]; found {
		return l.waiting.Rank(k) + 1, true
	}
	if _, found := l.called[tokenID.String()]; found {
		return 0, true
	}
	return 0, false
}

// Positions derives the position of every token in the line, keyed by
// token ID string. Waiting tokens get 1..k in key order and called tokens
// get 0. A mismatch between the tree and its index returns
// ErrInconsistentOrder.
func (l *Line) Positions() (map[string]int, error) {
	out := make(map[string]int, l.Active())
	pos := 0
	var bad error
	l.waiting.Ascend(func(k Key, tokenID id.TokenID) bool {
		key := tokenID.String()
		if want, ok := l.index[key]; !ok || want.Compare(k) != 0 {
			bad = fmt.Errorf("%w: queue %s token %s", smartqueue.ErrInconsistentOrder, l.queueID, tokenID)
			return false
		}
		pos++
		out[key] = pos
		return true
	})
	if bad != nil {
		return nil, bad
	}
	if pos != len(l.index) {
		return nil, fmt.Errorf("%w: queue %s has %d ordered and %d indexed tokens",
			smartqueue.ErrInconsistentOrder, l.queueID, pos, len(l.index))
	}
	for key := range l.called {
		out[key] = 0
	}
	return out, nil
}

// Snapshot returns the waiting entries in service order.
func (l *Line) Snapshot() []Entry {
	out := make([]Entry, 0, l.waiting.Len())
	l.waiting.Ascend(func(k Key, tokenID id.TokenID) bool {
		out = append(out, Entry{TokenID: tokenID, Key: k})
		return true
	})
	return out
}

// CalledTokens returns the IDs of called tokens.
func (l *Line) CalledTokens() []id.TokenID {
	out := make([]id.TokenID, 0, len(l.called))
	for _, tokenID := range l.called {
		out = append(out, tokenID)
	}
	return out
}

func (l *Line) reset() {
	l.waiting = &tree{}
	l.index = make(map[string]Key)
	l.called = make(map[string]id.TokenID)
	l.loaded = false
	l.stale = false
}

// allow consumes an admission slot from the throttle.
func (l *Line) allow() bool {
	return l.limiter == nil || l.limiter.Allow()
}
