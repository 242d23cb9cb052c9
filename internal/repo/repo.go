// Package repo implements the repository server side of the protocol
// (C11): item-set bookkeeping, gc_generation issuance, the clock-skew
// check at session open, and tombstone-based removal, all layered over
// a cas.Store. It is the "server" every send/receive session talks to,
// whether that is a real remote daemon or the in-process reference
// implementation cmd/vaultbridge-serve wires up.
package repo

import (
	"fmt"
	"sync"
	"time"

	"github.com/quantarax/vaultbridge/internal/cas"
	"github.com/quantarax/vaultbridge/internal/vaulterr"
	"github.com/quantarax/vaultbridge/internal/wire"
	"github.com/quantarax/vaultbridge/internal/xid"
)

// ClockSkewTolerance bounds how far apart client and server clocks may
// be at session open before the session is refused (spec §5).
const ClockSkewTolerance = 15 * time.Minute

// Item is the server's view of a committed item: the opaque metadata
// envelope exactly as received in TAddItem, plus bookkeeping the
// repository itself needs (removal tombstones, op-log ordering).
type Item struct {
	ID        xid.ID
	Metadata  []byte
	Removed   bool
	CreatedAt time.Time
}

// Server holds repository state: the chunk store, the item set, and
// the op-log entries item add/remove operations append to.
type Server struct {
	mu sync.RWMutex

	store cas.Store
	items map[xid.ID]*Item

	gcGeneration string
	nextOpID     int64
	opLog        []wire.SyncLogEntry
}

// NewServer wires a fresh repository around store. A random
// gc_generation is issued at construction; it changes again only on a
// completed GC sweep (clients scope their send-log address cache to the
// gc_generation reported here).
func NewServer(store cas.Store) *Server {
	return &Server{
		store:        store,
		items:        make(map[xid.ID]*Item),
		gcGeneration: xid.New().String(),
	}
}

// OpenRepository performs the clock-skew check and reports the
// server's current time and gc_generation.
func (s *Server) OpenRepository(req wire.TOpenRepository) (wire.ROpenRepository, error) {
	now := time.Now()
	if req.ClientUnixSeconds != 0 {
		skew := now.Sub(time.Unix(req.ClientUnixSeconds, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > ClockSkewTolerance {
			return wire.ROpenRepository{}, fmt.Errorf("%w: client/server clocks differ by %s", vaulterr.ErrClockSkew, skew)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return wire.ROpenRepository{ServerUnixSeconds: now.Unix(), GCGeneration: s.gcGeneration}, nil
}

// BeginSend reports the repository's current gc_generation. HasDeltaID
// mirrors whether the client supplied a prior send's delta id; real
// continuity (resuming that specific delta) is left to the send-log,
// not the repository, so the repository simply echoes the flag back.
func (s *Server) BeginSend(req wire.TBeginSend) wire.RBeginSend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return wire.RBeginSend{GCGeneration: s.gcGeneration, HasDeltaID: req.DeltaID != nil}
}

// PutChunk stores a chunk reported by a send session.
func (s *Server) PutChunk(addr [32]byte, data []byte) error {
	return s.store.Put(addr, data)
}

// AddItem commits a new item and appends an add-item op-log entry.
func (s *Server) AddItem(metadata []byte) xid.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := xid.New()
	s.items[id] = &Item{ID: id, Metadata: metadata, CreatedAt: time.Now()}
	s.nextOpID++
	s.opLog = append(s.opLog, wire.SyncLogEntry{OpID: s.nextOpID, ItemID: id, Op: wire.LogOpAddItem})
	return id
}

// RequestData returns the metadata of a live (non-removed) item, or
// nil if id is unknown or removed.
func (s *Server) RequestData(id xid.ID) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok || item.Removed {
		return nil
	}
	return item.Metadata
}

// GetChunk retrieves a chunk by address, wrapping cas.ErrNotFound.
func (s *Server) GetChunk(addr [32]byte) ([]byte, error) {
	return s.store.Get(addr)
}

// RmItems tombstones up to len(ids) items (spec §6 "at most 4096 items
// per message" is enforced by the caller framing the request, not
// here) and appends a remove-item op-log entry per id actually present.
func (s *Server) RmItems(ids []xid.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok || item.Removed {
			continue
		}
		item.Removed = true
		removed++
		s.nextOpID++
		s.opLog = append(s.opLog, wire.SyncLogEntry{OpID: s.nextOpID, ItemID: id, Op: wire.LogOpRemoveItem})
	}
	return removed
}

// RestoreRemoved un-tombstones every removed item.
func (s *Server) RestoreRemoved() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for id, item := range s.items {
		if item.Removed {
			item.Removed = false
			restored++
			s.nextOpID++
			s.opLog = append(s.opLog, wire.SyncLogEntry{OpID: s.nextOpID, ItemID: id, Op: wire.LogOpAddItem})
		}
	}
	return restored
}

// OpsSince returns every op-log entry with OpID > afterOpID, in order.
func (s *Server) OpsSince(afterOpID int64) []wire.SyncLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []wire.SyncLogEntry
	for _, e := range s.opLog {
		if e.OpID > afterOpID {
			out = append(out, e)
		}
	}
	return out
}

// LiveItems returns every non-removed item, for GC's mark phase.
func (s *Server) LiveItems() []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Item, 0, len(s.items))
	for _, item := range s.items {
		if !item.Removed {
			out = append(out, item)
		}
	}
	return out
}

// GCGeneration returns the repository's current gc_generation.
func (s *Server) GCGeneration() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gcGeneration
}

func (s *Server) rotateGCGeneration() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gcGeneration = xid.New().String()
	return s.gcGeneration
}

// Close releases the underlying store.
func (s *Server) Close() error {
	return s.store.Close()
}
