package repo

import (
	"errors"
	"fmt"
	"io"

	"github.com/quantarax/vaultbridge/internal/htree"
	"github.com/quantarax/vaultbridge/internal/send"
	"github.com/quantarax/vaultbridge/internal/vaulterr"
	"github.com/quantarax/vaultbridge/internal/wire"
)

// Conn is the duplex packet interface Serve drives; it is satisfied by
// any transport.StreamConn or the same in-memory fakes send/receive
// tests use.
type Conn interface {
	WritePacket(typ wire.Type, payload interface{}) error
	ReadPacket() (wire.Type, []byte, error)
}

// Serve runs the server side of one session on conn until the client
// disconnects (io.EOF) or sends TypeEndOfTransmission. It dispatches
// every packet type in the §6 table that has a server-side handler;
// unrecognized types end the session with an error wrapping
// vaulterr.ErrProtocol.
func (s *Server) Serve(conn Conn) error {
	for {
		typ, payload, err := conn.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch typ {
		case wire.TypeTOpenRepository:
			var req wire.TOpenRepository
			if err := wire.Decode(payload, &req); err != nil {
				return err
			}
			resp, err := s.OpenRepository(req)
			if err != nil {
				return err
			}
			if err := conn.WritePacket(wire.TypeROpenRepository, resp); err != nil {
				return err
			}

		case wire.TypeTBeginSend:
			var req wire.TBeginSend
			if err := wire.Decode(payload, &req); err != nil {
				return err
			}
			if err := conn.WritePacket(wire.TypeRBeginSend, s.BeginSend(req)); err != nil {
				return err
			}

		case wire.TypeChunk:
			var c wire.Chunk
			if err := wire.Decode(payload, &c); err != nil {
				return err
			}
			if err := s.PutChunk(c.Address, c.Data); err != nil {
				return err
			}

		case wire.TypeTSendSync:
			if err := conn.WritePacket(wire.TypeRSendSync, wire.RSendSync{}); err != nil {
				return err
			}

		case wire.TypeTAddItem:
			var req wire.TAddItem
			if err := wire.Decode(payload, &req); err != nil {
				return err
			}
			id := s.AddItem(req.ItemMetadata)
			if err := conn.WritePacket(wire.TypeRAddItem, wire.RAddItem{ItemID: id}); err != nil {
				return err
			}

		case wire.TypeTRequestData:
			var req wire.TRequestData
			if err := wire.Decode(payload, &req); err != nil {
				return err
			}
			md := s.RequestData(req.ItemID)
			if err := conn.WritePacket(wire.TypeRRequestData, wire.RRequestData{Metadata: md}); err != nil {
				return err
			}
			if md == nil {
				continue
			}
			if err := s.streamItemChunks(conn, md, req.Ranges); err != nil {
				return err
			}

		case wire.TypeTRmItems:
			var req wire.TRmItems
			if err := wire.Decode(payload, &req); err != nil {
				return err
			}
			n := s.RmItems(req.ItemIDs)
			if err := conn.WritePacket(wire.TypeRRmItems, wire.RRmItems{Removed: n}); err != nil {
				return err
			}

		case wire.TypeTRestoreRemoved:
			n := s.RestoreRemoved()
			if err := conn.WritePacket(wire.TypeRRestoreRemoved, wire.RRestoreRemoved{NRestored: n}); err != nil {
				return err
			}

		case wire.TypeTGc:
			stats, err := s.GC(func(msg string) {
				_ = conn.WritePacket(wire.TypeProgress, wire.Progress{Kind: wire.ProgressSetMessage, Message: msg})
			})
			if err != nil {
				return err
			}
			if err := conn.WritePacket(wire.TypeRGc, wire.RGc{Stats: stats.ToWire()}); err != nil {
				return err
			}

		case wire.TypeTRequestItemSync:
			var req wire.TRequestItemSync
			if err := wire.Decode(payload, &req); err != nil {
				return err
			}
			ops := s.OpsSince(req.AfterOpID)
			if err := conn.WritePacket(wire.TypeSyncLogOps, wire.SyncLogOps{Entries: ops}); err != nil {
				return err
			}
			if err := conn.WritePacket(wire.TypeSyncLogOps, wire.SyncLogOps{}); err != nil {
				return err
			}
			if err := conn.WritePacket(wire.TypeRRequestItemSync, wire.RRequestItemSync{}); err != nil {
				return err
			}

		case wire.TypeEndOfTransmission:
			return nil

		default:
			return fmt.Errorf("%w: repo: no server handler for packet type %d", vaulterr.ErrProtocol, typ)
		}
	}
}

// streamItemChunks walks md's data (and, if present, index) tree and
// emits one Chunk packet per address in tree order. ranges, if
// non-empty, restricts which data-tree leaves are streamed (spec §4.9
// "Ranged read"); the index tree, if any, is always streamed in full.
func (s *Server) streamItemChunks(conn Conn, md []byte, ranges []wire.DataRange) error {
	var env itemEnvelope
	if err := wire.Decode(md, &env); err != nil {
		return err
	}
	var plain send.PlaintextItemMetadata
	if err := wire.Decode(env.Plaintext, &plain); err != nil {
		return err
	}

	if err := s.streamTree(conn, plain.DataTree, ranges); err != nil {
		return err
	}
	if plain.IndexTree != nil {
		if err := s.streamTree(conn, *plain.IndexTree, nil); err != nil {
			return err
		}
	}
	return nil
}

func wantsLeaf(ranges []wire.DataRange, idx uint64) bool {
	if len(ranges) == 0 {
		return true
	}
	for _, r := range ranges {
		if idx >= r.Start && idx < r.End {
			return true
		}
	}
	return false
}

// streamTree walks head in tree order, fetching each address from the
// store and emitting a Chunk packet for it. Internal nodes are always
// fetched and sent, since the client needs them to navigate the tree;
// leaves (level 0) are filtered against ranges using a per-leaf
// counter, mirroring the client's own leaf-order bookkeeping in
// receive.RequestDataStream (spec §4.9 "Ranged read").
func (s *Server) streamTree(conn Conn, head send.TreeHead, ranges []wire.DataRange) error {
	tr := htree.NewReader(head.Height, head.Address)
	var leafIdx uint64
	for {
		level, addr, ok, err := tr.NextAddr()
		if err != nil {
			return fmt.Errorf("repo: stream tree: %w", err)
		}
		if !ok {
			return nil
		}

		if level == 0 {
			idx := leafIdx
			leafIdx++
			if !wantsLeaf(ranges, idx) {
				continue
			}
		}

		data, err := s.store.Get(addr)
		if err != nil {
			return fmt.Errorf("repo: stream tree: fetch %s: %w", addr, err)
		}
		if err := conn.WritePacket(wire.TypeChunk, wire.Chunk{Address: addr, Data: data}); err != nil {
			return err
		}
		if level > 0 {
			tr.PushLevel(level-1, data)
		}
	}
}
