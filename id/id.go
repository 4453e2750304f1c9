// Package id defines TypeID-based identity types for SmartQueue entities.
//
// Tokens, queues, staff, history records, status changes and audit entries
// share a single ID struct whose prefix names the entity type. IDs are
// K-sortable (UUIDv7-based) and render as "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all SmartQueue entity types.
const (
	PrefixToken   Prefix = "tok"
	PrefixQueue   Prefix = "q"
	PrefixHistory Prefix = "hist"
	PrefixEvent   Prefix = "evt"
	PrefixStaff   Prefix = "stf"
	PrefixAudit   Prefix = "aud"
	PrefixUser    Prefix = "usr"
)

// ID wraps a TypeID. The zero value is Nil.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "tok_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Aliases
// ──────────────────────────────────────────────────

// TokenID identifies a token (prefix: "tok").
type TokenID = ID

// QueueID identifies a queue (prefix: "q").
type QueueID = ID

// HistoryID identifies a service history record (prefix: "hist").
type HistoryID = ID

// EventID identifies a status change (prefix: "evt").
type EventID = ID

// StaffID identifies a serving staff member (prefix: "stf").
type StaffID = ID

// AuditID identifies an audit entry (prefix: "aud").
type AuditID = ID

// UserID identifies a user supplied by the auth collaborator (prefix: "usr").
type UserID = ID

// ──────────────────────────────────────────────────
// Constructors and parsers
// ──────────────────────────────────────────────────

func NewTokenID() ID   { return New(PrefixToken) }
func NewQueueID() ID   { return New(PrefixQueue) }
func NewHistoryID() ID { return New(PrefixHistory) }
func NewEventID() ID   { return New(PrefixEvent) }
func NewStaffID() ID   { return New(PrefixStaff) }
func NewAuditID() ID   { return New(PrefixAudit) }
func NewUserID() ID    { return New(PrefixUser) }

func ParseTokenID(s string) (ID, error) { return ParseWithPrefix(s, PrefixToken) }
func ParseQueueID(s string) (ID, error) { return ParseWithPrefix(s, PrefixQueue) }
func ParseStaffID(s string) (ID, error) { return ParseWithPrefix(s, PrefixStaff) }
func ParseUserID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixUser) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
