// Package memstore implements an in-memory cas.Store, grounded on the
// teacher's mutex-protected map session store. Used by tests and
// ephemeral repository instances.
package memstore

import (
	"sync"
	"time"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cas"
)

type entry struct {
	data     []byte
	storedAt time.Time
}

type Store struct {
	mu      sync.RWMutex
	entries map[address.Address]entry
}

func New() *Store {
	return &Store{entries: make(map[address.Address]entry)}
}

func (s *Store) Has(addr address.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[addr]
	return ok, nil
}

func (s *Store) Put(addr address.Address, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[addr]; ok {
		return nil
	}
	cp := append([]byte(nil), data...)
	s.entries[addr] = entry{data: cp, storedAt: time.Now()}
	return nil
}

func (s *Store) Get(addr address.Address) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[addr]
	if !ok {
		return nil, cas.ErrNotFound
	}
	return append([]byte(nil), e.data...), nil
}

func (s *Store) Delete(addr address.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, addr)
	return nil
}

func (s *Store) Walk(fn func(addr address.Address, storedAt time.Time) error) error {
	s.mu.RLock()
	snapshot := make(map[address.Address]time.Time, len(s.entries))
	for addr, e := range s.entries {
		snapshot[addr] = e.storedAt
	}
	s.mu.RUnlock()

	for addr, storedAt := range snapshot {
		if err := fn(addr, storedAt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }
