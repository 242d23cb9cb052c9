package repo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/htree"
	"github.com/quantarax/vaultbridge/internal/send"
	"github.com/quantarax/vaultbridge/internal/wire"
)

// Stats summarizes one GC sweep (wire.GCStats carries the same shape
// over the protocol).
type Stats struct {
	ChunksConsidered int64
	ChunksFreed      int64
	BytesFreed       int64
}

// ToWire converts Stats to the wire packet shape returned in RGc.
func (s Stats) ToWire() wire.GCStats {
	return wire.GCStats{
		ChunksConsidered: s.ChunksConsidered,
		ChunksFreed:      s.ChunksFreed,
		BytesFreed:       s.BytesFreed,
	}
}

type itemEnvelope struct {
	Plaintext json.RawMessage
	Encrypted []byte
}

// GC runs mark-and-sweep over every live item's data and index trees
// (spec (domain stack) C18): mark every address reachable from a live
// item, then delete any CAS entry not marked. progress, if non-nil, is
// called with a human-readable notice once per item marked.
func (s *Server) GC(progress func(msg string)) (Stats, error) {
	marked := make(map[address.Address]bool)

	for _, item := range s.LiveItems() {
		var env itemEnvelope
		if err := json.Unmarshal(item.Metadata, &env); err != nil {
			return Stats{}, fmt.Errorf("repo: gc: decode item %s metadata: %w", item.ID, err)
		}
		var plain send.PlaintextItemMetadata
		if err := json.Unmarshal(env.Plaintext, &plain); err != nil {
			return Stats{}, fmt.Errorf("repo: gc: decode item %s plaintext metadata: %w", item.ID, err)
		}

		if err := s.markTree(plain.DataTree, marked); err != nil {
			return Stats{}, err
		}
		if plain.IndexTree != nil {
			if err := s.markTree(*plain.IndexTree, marked); err != nil {
				return Stats{}, err
			}
		}

		if progress != nil {
			progress(fmt.Sprintf("marked item %s", item.ID))
		}
	}

	var stats Stats
	var toDelete []address.Address
	if err := s.store.Walk(func(addr address.Address, _ time.Time) error {
		stats.ChunksConsidered++
		if !marked[addr] {
			toDelete = append(toDelete, addr)
		}
		return nil
	}); err != nil {
		return Stats{}, fmt.Errorf("repo: gc: walk store: %w", err)
	}

	for _, addr := range toDelete {
		data, err := s.store.Get(addr)
		size := len(data)
		if err == nil {
			stats.BytesFreed += int64(size)
		}
		if err := s.store.Delete(addr); err != nil {
			return Stats{}, fmt.Errorf("repo: gc: delete %s: %w", addr, err)
		}
		stats.ChunksFreed++
	}

	s.rotateGCGeneration()
	return stats, nil
}

func (s *Server) markTree(head send.TreeHead, marked map[address.Address]bool) error {
	marked[head.Address] = true

	tr := htree.NewReader(head.Height, head.Address)
	for {
		level, addr, ok, err := tr.NextAddr()
		if err != nil {
			return fmt.Errorf("repo: gc: walk tree: %w", err)
		}
		if !ok {
			return nil
		}
		marked[addr] = true

		if level > 0 {
			data, err := s.store.Get(addr)
			if err != nil {
				return fmt.Errorf("repo: gc: fetch internal node %s: %w", addr, err)
			}
			tr.PushLevel(level-1, data)
		}
	}
}
