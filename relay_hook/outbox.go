package relayhook

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/vmihailenco/msgpack/v5"
)

// State is the delivery state of an outbox entry.
type State uint8

const (
	StateNew State = iota
	StateSent
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Entry is one pending relay message.
type Entry struct {
	Seq         uint64 `msgpack:"seq"`
	State       State  `msgpack:"state"`
	Attempts    uint32 `msgpack:"attempts"`
	LastAttempt int64  `msgpack:"last_attempt"`
	LastError   string `msgpack:"last_error,omitempty"`
	Key         []byte `msgpack:"key"`
	Payload     []byte `msgpack:"payload"`
}

const keyPrefix = "outbox/"

var (
	lowerBound = []byte(keyPrefix)
	upperBound = []byte(keyPrefix + "~")
)

// Outbox is a durable FIFO of relay messages on pebble. Entries survive a
// restart and are delivered in sequence order.
type Outbox struct {
	db *pebble.DB

	mu   sync.Mutex
	next uint64
}

// OpenOutbox opens (or creates) an outbox in dir.
func OpenOutbox(dir string) (*Outbox, error) {
	return openOutbox(dir, &pebble.Options{})
}

// OpenMemOutbox opens an outbox on an in-memory filesystem.
func OpenMemOutbox() (*Outbox, error) {
	return openOutbox("", &pebble.Options{FS: vfs.NewMem()})
}

func openOutbox(dir string, opts *pebble.Options) (*Outbox, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("relayhook: open outbox: %w", err)
	}
	o := &Outbox{db: db}

	last, err := o.lastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	o.next = last + 1
	return o, nil
}

// Close closes the underlying database.
func (o *Outbox) Close() error { return o.db.Close() }

func (o *Outbox) lastSeq() (uint64, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{LowerBound: lowerBound, UpperBound: upperBound})
	if err != nil {
		return 0, fmt.Errorf("relayhook: outbox iter: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// Append stores a new entry and returns its sequence number.
func (o *Outbox) Append(key, payload []byte) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e := Entry{Seq: o.next, State: StateNew, Key: key, Payload: payload}
	if err := o.put(&e); err != nil {
		return 0, err
	}
	o.next++
	return e.Seq, nil
}

// Update rewrites an existing entry.
func (o *Outbox) Update(e *Entry) error { return o.put(e) }

// Delete removes an entry.
func (o *Outbox) Delete(seq uint64) error {
	if err := o.db.Delete(keyFor(seq), pebble.Sync); err != nil {
		return fmt.Errorf("relayhook: delete %d: %w", seq, err)
	}
	return nil
}

// Get returns one entry.
func (o *Outbox) Get(seq uint64) (*Entry, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return nil, fmt.Errorf("relayhook: get %d: %w", seq, err)
	}
	defer closer.Close()
	return decodeEntry(val)
}

// Scan calls fn for every entry in state, in sequence order, until fn
// returns false or an error.
func (o *Outbox) Scan(state State, fn func(e *Entry) (bool, error)) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{LowerBound: lowerBound, UpperBound: upperBound})
	if err != nil {
		return fmt.Errorf("relayhook: outbox iter: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return err
		}
		if e.State != state {
			continue
		}
		more, err := fn(e)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// Counts returns the number of entries per state.
func (o *Outbox) Counts() (map[State]int, error) {
	counts := make(map[State]int, 3)
	for _, s := range []State{StateNew, StateSent, StateFailed} {
		err := o.Scan(s, func(*Entry) (bool, error) {
			counts[s]++
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return counts, nil
}

func (o *Outbox) put(e *Entry) error {
	val, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("relayhook: encode entry: %w", err)
	}
	if err := o.db.Set(keyFor(e.Seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("relayhook: put %d: %w", e.Seq, err)
	}
	return nil
}

func (e *Entry) markAttempt(now time.Time, err error) {
	e.Attempts++
	e.LastAttempt = now.UnixNano()
	if err != nil {
		e.LastError = err.Error()
	}
}

func decodeEntry(b []byte) (*Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("relayhook: decode entry: %w", err)
	}
	return &e, nil
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	if _, err := fmt.Sscanf(string(bytes.TrimPrefix(b, lowerBound)), "%d", &seq); err != nil {
		return 0, fmt.Errorf("relayhook: parse key %q: %w", b, err)
	}
	return seq, nil
}

// isNotFound reports whether err is pebble's missing-key error.
func isNotFound(err error) bool { return errors.Is(err, pebble.ErrNotFound) }
