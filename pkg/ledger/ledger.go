// Package ledger defines the read/query surface of the blockchain
// collaborator. The ledger itself is an opaque external service; this
// package only names the operations the protocol core consumes, so that
// orchestrators can be wired against fakes in tests and against a real RPC
// client in applications.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an object or transaction does not exist.
var ErrNotFound = errors.New("ledger: not found")

// Object is a projection of an on-chain object: its identity, Move type
// and decoded fields.
type Object struct {
	ID      string
	Type    string
	Owner   string
	Version uint64
	Fields  map[string]any
}

// FieldString reads a string field, tolerating absence.
func (o *Object) FieldString(name string) string {
	if o == nil || o.Fields == nil {
		return ""
	}
	if v, ok := o.Fields[name].(string); ok {
		return v
	}
	return ""
}

// FieldUint64 reads a numeric field, tolerating absence and the usual
// JSON decoding shapes.
func (o *Object) FieldUint64(name string) uint64 {
	if o == nil || o.Fields == nil {
		return 0
	}
	switch v := o.Fields[name].(type) {
	case uint64:
		return v
	case int:
		return uint64(v)
	case int64:
		return uint64(v)
	case float64:
		return uint64(v)
	default:
		return 0
	}
}

// Event is a decoded on-chain event record.
type Event struct {
	Type      string
	TxDigest  string
	Timestamp time.Time
	Parsed    map[string]any
}

// ParsedString reads a string field out of the event payload.
func (e *Event) ParsedString(name string) string {
	if e == nil || e.Parsed == nil {
		return ""
	}
	if v, ok := e.Parsed[name].(string); ok {
		return v
	}
	return ""
}

// ObjectChange describes one object mutation of an executed transaction.
type ObjectChange struct {
	Kind       string // "created", "mutated", "deleted"
	ObjectType string
	ObjectID   string
}

// TransactionBlock is the effects view of an executed transaction.
type TransactionBlock struct {
	Digest        string
	ObjectChanges []ObjectChange
	Events        []Event
}

// Client is the query collaborator. Implementations wrap a chain RPC
// endpoint; fakes back tests.
type Client interface {
	// GetObject fetches one object with decoded fields.
	GetObject(ctx context.Context, id string) (*Object, error)

	// QueryEvents returns up to limit events of the given Move event type,
	// newest first.
	QueryEvents(ctx context.Context, eventType string, limit int) ([]Event, error)

	// GetOwnedObjects lists objects of structType owned by owner.
	GetOwnedObjects(ctx context.Context, owner, structType string) ([]Object, error)

	// WaitForTransaction blocks until the transaction is final.
	WaitForTransaction(ctx context.Context, digest string) error

	// GetTransactionBlock fetches the effects of a finalized transaction.
	GetTransactionBlock(ctx context.Context, digest string) (*TransactionBlock, error)
}

// CallArgKind discriminates MoveCall argument encodings.
type CallArgKind int

const (
	// ArgPure is a BCS-encoded pure value.
	ArgPure CallArgKind = iota
	// ArgObject is an object reference.
	ArgObject
	// ArgString is a UTF-8 string value.
	ArgString
)

// CallArg is one positional argument of a MoveCall.
type CallArg struct {
	Kind   CallArgKind
	Pure   []byte
	Object string
	String string
}

// PureArg builds a pure-bytes argument.
func PureArg(b []byte) CallArg { return CallArg{Kind: ArgPure, Pure: b} }

// ObjectArg builds an object-reference argument.
func ObjectArg(id string) CallArg { return CallArg{Kind: ArgObject, Object: id} }

// StringArg builds a string argument.
func StringArg(s string) CallArg { return CallArg{Kind: ArgString, String: s} }

// MoveCall is an unsigned description of a contract entry-point call, to
// be signed and executed by the wallet collaborator.
type MoveCall struct {
	Target    string // "pkg::module::function"
	Arguments []CallArg
}
