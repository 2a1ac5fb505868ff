// Package store defines the collection store and its backing implementations.
package store

import (
	"context"
	"errors"
)

// Record is one JSON object held in a collection.
type Record = map[string]any

// MutateFunc edits a private copy of a record in place. Returning an error
// aborts the mutation; nothing is persisted.
type MutateFunc func(rec Record) error

// Errors returned by collection operations.
var (
	// ErrNotFound is returned when no record carries the requested key.
	ErrNotFound = errors.New("record not found")

	// ErrStorageIO is returned when the persisted collection cannot be read,
	// decoded or written, including when an operation runs out of time.
	ErrStorageIO = errors.New("storage i/o failure")
)

// Collection is one named, ordered sequence of records.
//
// Append, AppendWith, AppendIfAbsent and MutateByKey are serialized per
// collection: each one loads the whole collection, applies its change and
// persists the whole collection before the next may start. LoadAll and FindByKey never observe
// a partially written collection.
type Collection interface {
	// Name returns the logical collection name.
	Name() string

	// LoadAll returns every record in insertion order. A collection with no
	// persisted data is initialized empty.
	LoadAll(ctx context.Context) ([]Record, error)

	// Append adds rec to the end of the collection. Key uniqueness is the
	// caller's concern.
	Append(ctx context.Context, rec Record) error

	// AppendWith appends the record returned by build. build runs while the
	// collection's writer lock is held, so values it derives (timestamps,
	// sequence numbers) follow the order records are stored in. An error
	// from build aborts the append and is returned unchanged.
	AppendWith(ctx context.Context, build func() (Record, error)) error

	// AppendIfAbsent appends rec unless a record with the same value in
	// keyField already exists. It reports whether rec was written.
	AppendIfAbsent(ctx context.Context, keyField string, rec Record) (bool, error)

	// FindByKey returns the first record whose keyField equals keyValue.
	FindByKey(ctx context.Context, keyField, keyValue string) (Record, error)

	// MutateByKey applies fn to the first record whose keyField equals
	// keyValue, persists the collection and returns the updated record.
	MutateByKey(ctx context.Context, keyField, keyValue string, fn MutateFunc) (Record, error)
}

// Backend opens named collections on one storage medium.
type Backend interface {
	// Open returns the collection called name. Callers should go through a
	// Registry so each name maps to exactly one Collection per process.
	Open(name string) (Collection, error)

	// Close releases the backend's resources.
	Close() error
}

// KeyMatches reports whether rec holds the string keyValue under keyField.
func KeyMatches(rec Record, keyField, keyValue string) bool {
	v, ok := rec[keyField].(string)
	return ok && v == keyValue
}
