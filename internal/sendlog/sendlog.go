// Package sendlog implements the send-log contract (C7): a client-side
// cache, scoped by a server-issued gc_generation cookie, that lets a
// send skip re-transmitting chunks and re-reading directories the
// server is already known to hold.
package sendlog

import (
	"github.com/quantarax/vaultbridge/internal/address"
)

// StatCacheEntry is what a directory hash resolves to on a stat-cache
// hit: the directory's total size, its packed child addresses (ready to
// feed straight into a tree writer via AddAddr), and its serialized
// index entries (chunk-index fields still need rebasing by the caller).
type StatCacheEntry struct {
	Size              uint64
	PackedAddresses   []address.Address
	SerializedIndex   []byte
}

// Log is the send-log contract (C7, spec §4.7). A Log instance is
// opened for one gc_generation; cache reads/writes outside that
// generation are invalid and PerformCacheInvalidations is responsible
// for dropping them.
type Log interface {
	// Open begins a session scoped to gcGeneration, returning the
	// previous gc_generation last seen (empty if none).
	Open(gcGeneration string) (previousGeneration string, err error)

	// CachedAddress reports whether addr is known-held by the server
	// as of the last successful Checkpoint under the current
	// gc_generation.
	CachedAddress(addr address.Address) (bool, error)

	// AddAddress records addr as sent-but-not-yet-checkpointed.
	AddAddress(addr address.Address) error

	// Checkpoint makes every AddAddress call since the last
	// Checkpoint (or session start) visible to CachedAddress. Called
	// only after the server has acknowledged RSendSync for the same
	// data.
	Checkpoint() error

	// Commit makes the whole send durable client-side under itemID.
	// This is the only durable commit point on the client; it must be
	// atomic.
	Commit(itemID string) error

	// StatCacheLookup returns the cached entry for dirHash, or
	// ok == false on a miss.
	StatCacheLookup(dirHash [32]byte) (entry StatCacheEntry, ok bool, err error)

	// AddStatCacheData populates the stat cache for dirHash.
	AddStatCacheData(dirHash [32]byte, entry StatCacheEntry) error

	// PerformCacheInvalidations drops cache entries older than the
	// generation ack, retaining delta-id-scoped entries when
	// hasDeltaID is true (spec §4.7 invariant).
	PerformCacheInvalidations(hasDeltaID bool) error

	// Close releases any resources held by the log (file handles,
	// db connections). It does not discard committed data.
	Close() error
}
