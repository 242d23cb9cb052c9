// Package cas defines the server-side content-addressed chunk store
// that backs the repository (C12): a simple put-once/get-by-address
// interface that every backend (in-memory, BoltDB, SQLite) implements
// identically, so the repo layer is storage-agnostic.
package cas

import (
	"fmt"
	"time"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/vaulterr"
)

// ErrNotFound is returned by Get when addr is absent from the store.
var ErrNotFound = fmt.Errorf("cas: chunk not found: %w", vaulterr.ErrDataMissing)

// Store is the content-addressed chunk store contract. Implementations
// must be safe for concurrent use.
type Store interface {
	// Has reports whether addr is already stored.
	Has(addr address.Address) (bool, error)

	// Put stores data under addr. Puts are idempotent: storing the
	// same address twice is not an error (chunks are content-addressed,
	// so the bytes must already match).
	Put(addr address.Address, data []byte) error

	// Get retrieves the bytes stored under addr, or ErrNotFound.
	Get(addr address.Address) ([]byte, error)

	// Delete removes addr, used by GC sweeps. Deleting an absent
	// address is not an error.
	Delete(addr address.Address) error

	// Walk calls fn once per stored address. fn returning an error
	// stops the walk and Walk returns that error.
	Walk(fn func(addr address.Address, storedAt time.Time) error) error

	Close() error
}
