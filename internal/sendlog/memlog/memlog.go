// Package memlog implements an in-memory sendlog.Log, grounded on the
// teacher's mutex-protected map session store. Suitable for one-shot
// sends and tests; nothing survives process exit.
package memlog

import (
	"fmt"
	"sync"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/sendlog"
)

type Log struct {
	mu sync.RWMutex

	gcGeneration string
	prevGen      string

	committedAddrs map[address.Address]bool
	pendingAddrs   map[address.Address]bool

	statCache map[[32]byte]sendlog.StatCacheEntry

	committedItemID string
}

func New() *Log {
	return &Log{
		committedAddrs: make(map[address.Address]bool),
		pendingAddrs:   make(map[address.Address]bool),
		statCache:      make(map[[32]byte]sendlog.StatCacheEntry),
	}
}

func (l *Log) Open(gcGeneration string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.gcGeneration
	l.prevGen = prev
	l.gcGeneration = gcGeneration
	l.pendingAddrs = make(map[address.Address]bool)
	return prev, nil
}

func (l *Log) CachedAddress(addr address.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.committedAddrs[addr], nil
}

func (l *Log) AddAddress(addr address.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pendingAddrs[addr] = true
	return nil
}

func (l *Log) Checkpoint() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for addr := range l.pendingAddrs {
		l.committedAddrs[addr] = true
	}
	l.pendingAddrs = make(map[address.Address]bool)
	return nil
}

func (l *Log) Commit(itemID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if itemID == "" {
		return fmt.Errorf("memlog: commit requires a non-empty item id")
	}
	for addr := range l.pendingAddrs {
		l.committedAddrs[addr] = true
	}
	l.pendingAddrs = make(map[address.Address]bool)
	l.committedItemID = itemID
	return nil
}

func (l *Log) StatCacheLookup(dirHash [32]byte) (sendlog.StatCacheEntry, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.statCache[dirHash]
	return entry, ok, nil
}

func (l *Log) AddStatCacheData(dirHash [32]byte, entry sendlog.StatCacheEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statCache[dirHash] = entry
	return nil
}

// PerformCacheInvalidations drops the whole address/stat cache unless
// hasDeltaID is set, in which case entries are retained: a fresh
// gc_generation with no delta id means the client has no continuity
// guarantee for what the server already holds, so every cached address
// must be re-verified.
func (l *Log) PerformCacheInvalidations(hasDeltaID bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hasDeltaID {
		return nil
	}
	l.committedAddrs = make(map[address.Address]bool)
	l.statCache = make(map[[32]byte]sendlog.StatCacheEntry)
	return nil
}

func (l *Log) Close() error { return nil }
