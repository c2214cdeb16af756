// Package backend defines the atomic object store contract the CAS
// layer depends on, and a factory over its implementations.
//
// A backend provides three things, each scoped to one of two
// namespaces that never collide:
//
//   - reference-counted opaque blobs keyed by string (CAS namespace),
//     with an atomic create-or-bump / bump / decrement-and-maybe-delete
//     triple and readable per-object attributes;
//   - an ordered per-object key-value map (index namespace) used as
//     the version index.
//
// The backend exclusively owns object lifetime: callers only request
// count changes, and the backend destroys an object when its count
// reaches zero. Implementations must make the refcount operations
// atomic with whatever transactional primitive they have (SQL
// transactions, server-side scripts); the dedup and garbage-free
// deletion properties of the store depend on it.
package backend

import (
	"context"
	"errors"

	"github.com/prn-tf/cascade-store/internal/domain"
)

// Backend errors.
var (
	// ErrKeyNotFound indicates no object exists for the key in the
	// addressed namespace.
	ErrKeyNotFound = errors.New("backend: key not found")
)

// Store is the backend contract.
type Store interface {
	// =========================================================================
	// CAS namespace: reference-counted blobs
	// =========================================================================

	// PutRef atomically creates the object with refcount 1, value, and
	// attrs — or, if the key already exists, increments its refcount
	// and discards value and attrs. Returns whether the object was
	// newly created.
	PutRef(ctx context.Context, key string, value []byte, attrs map[string]string) (created bool, err error)

	// Get returns the stored value. ErrKeyNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Up atomically increments the refcount. ErrKeyNotFound if absent.
	Up(ctx context.Context, key string) error

	// Down atomically decrements the refcount and destroys the object
	// when the count reaches zero. ErrKeyNotFound if absent.
	Down(ctx context.Context, key string) error

	// Attrs returns the object's attributes. ErrKeyNotFound if absent.
	Attrs(ctx context.Context, key string) (map[string]string, error)

	// RefCount returns the object's current refcount. ErrKeyNotFound
	// if absent.
	RefCount(ctx context.Context, key string) (uint64, error)

	// List returns every object in the CAS namespace with its
	// refcount. Introspection only; no ordering guarantee.
	List(ctx context.Context) ([]domain.ObjectInfo, error)

	// =========================================================================
	// Index namespace: ordered per-object key-value maps
	// =========================================================================

	// IndexSet inserts or replaces entries in name's index map,
	// creating the index object if it does not exist.
	IndexSet(ctx context.Context, name string, entries map[string]string) error

	// IndexGet returns all entries of name's index map. An existing
	// index object with no entries yields an empty map; a missing
	// index object yields ErrKeyNotFound. The distinction matters to
	// the orchestrator's removal semantics.
	IndexGet(ctx context.Context, name string) (map[string]string, error)

	// IndexRemoveKeys removes the given keys from name's index map.
	// The index object itself survives, even when left empty.
	IndexRemoveKeys(ctx context.Context, name string, keys []string) error

	// IndexDelete removes name's index object entirely.
	IndexDelete(ctx context.Context, name string) error

	// IndexNames returns the names of all index objects.
	IndexNames(ctx context.Context) ([]string, error)

	// Close releases the backend's resources.
	Close() error
}
