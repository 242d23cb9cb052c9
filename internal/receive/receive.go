// Package receive implements the client receive pipeline (C9): full
// and ranged retrieval of a previously-sent item, verifying every
// chunk against its address as it arrives (spec §4.9).
package receive

import (
	"fmt"
	"hash"
	"io"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cryptobox"
	"github.com/quantarax/vaultbridge/internal/htree"
	"github.com/quantarax/vaultbridge/internal/send"
	"github.com/quantarax/vaultbridge/internal/vaulterr"
	"github.com/quantarax/vaultbridge/internal/wire"
	"github.com/quantarax/vaultbridge/internal/xid"
	"github.com/zeebo/blake3"
)

// Session is the transport contract the receive pipeline needs.
type Session interface {
	send.PacketConn
}

// Range is a half-open byte range [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// PickMap drives a ranged (sub-tar) retrieval: only chunks whose
// global data_chunk_idx falls within DataChunkRanges are requested;
// IncompleteDataChunks slices partially-wanted chunk plaintext by byte
// range (spec §4.9 "Ranged read").
type PickMap struct {
	DataChunkRanges       []IdxRange
	IncompleteDataChunks  map[uint64][]Range
	Size                  uint64
	IsSubtar              bool
}

// IdxRange is a half-open chunk-index range [StartIdx, EndIdx).
type IdxRange struct {
	StartIdx uint64
	EndIdx   uint64
}

func (p *PickMap) wants(idx uint64) bool {
	if p == nil {
		return true
	}
	for _, r := range p.DataChunkRanges {
		if idx >= r.StartIdx && idx < r.EndIdx {
			return true
		}
	}
	return false
}

// RequestDataStream retrieves item id's full data tree (or, if pick is
// non-nil, just the ranges it names) from conn, writing plaintext to
// out (spec §4.9 steps 1-4, "Ranged read").
func RequestDataStream(conn Session, id xid.ID, pick *PickMap, hashKeyPart1 address.PartialHashKey, dc *cryptobox.DecryptionContext, primaryKeyID string, out io.Writer) (uint64, error) {
	var wireRanges []wire.DataRange
	if pick != nil {
		for _, r := range pick.DataChunkRanges {
			wireRanges = append(wireRanges, wire.DataRange{Start: r.StartIdx, End: r.EndIdx})
		}
	}

	if err := conn.WritePacket(wire.TypeTRequestData, wire.TRequestData{ItemID: id, Ranges: wireRanges}); err != nil {
		return 0, err
	}
	typ, payload, err := conn.ReadPacket()
	if err != nil {
		return 0, err
	}
	if err := wire.ExpectType(typ, wire.TypeRRequestData); err != nil {
		return 0, err
	}
	var resp wire.RRequestData
	if err := wire.Decode(payload, &resp); err != nil {
		return 0, err
	}
	if len(resp.Metadata) == 0 {
		return 0, fmt.Errorf("%w: item %s has no metadata", vaulterr.ErrDataMissing, id)
	}

	md, enc, hashKey, err := decodeItemMetadata(resp.Metadata, hashKeyPart1, dc, primaryKeyID)
	if err != nil {
		return 0, err
	}

	tr := htree.NewReader(md.DataTree.Height, md.DataTree.Address)

	var dataChunkIdx uint64
	var emitted uint64

	// digest is only meaningful over a full (unranged) retrieval: a
	// ranged read never reconstructs the whole plaintext stream, so
	// there is nothing to compare against IntegrityDigest (C17).
	var digest hash.Hash
	if pick == nil {
		digest = blake3.New()
	}

	for {
		level, addr, ok, err := tr.NextAddr()
		if err != nil {
			return emitted, err
		}
		if !ok {
			break
		}

		if level > 0 {
			// Internal nodes carry no leaf data of their own; the
			// server always sends them so the client can navigate to
			// the leaves it does want, ranged read or not.
			typ, payload, err := conn.ReadPacket()
			if err != nil {
				return emitted, err
			}
			if err := wire.ExpectType(typ, wire.TypeChunk); err != nil {
				return emitted, err
			}
			var chunk wire.Chunk
			if err := wire.Decode(payload, &chunk); err != nil {
				return emitted, err
			}
			if chunk.Address != addr {
				return emitted, fmt.Errorf("%w: chunk address mismatch", vaulterr.ErrCorruptData)
			}
			computedAddr, err := address.TreeBlockAddress(chunk.Data)
			if err != nil {
				return emitted, err
			}
			if computedAddr != addr {
				return emitted, fmt.Errorf("%w: internal node hash mismatch", vaulterr.ErrCorruptData)
			}
			tr.PushLevel(level-1, chunk.Data)
			continue
		}

		// level == 0: a single leaf (data chunk) address. dataChunkIdx
		// advances exactly once per leaf, matching the order htree.Writer
		// assigned them during send (spec §4.9 "Ranged read").
		idx := dataChunkIdx
		dataChunkIdx++

		if !pick.wants(idx) {
			// The server, applying the same per-leaf range filter,
			// never sent this chunk — nothing to read off the wire.
			continue
		}

		typ, payload, err := conn.ReadPacket()
		if err != nil {
			return emitted, err
		}
		if err := wire.ExpectType(typ, wire.TypeChunk); err != nil {
			return emitted, err
		}
		var chunk wire.Chunk
		if err := wire.Decode(payload, &chunk); err != nil {
			return emitted, err
		}
		if chunk.Address != addr {
			return emitted, fmt.Errorf("%w: chunk address mismatch", vaulterr.ErrCorruptData)
		}

		pt, err := dc.DecryptData(chunk.Data)
		if err != nil {
			return emitted, err
		}
		recomputed, err := address.KeyedContentAddress(pt, &hashKey)
		if err != nil {
			return emitted, err
		}
		if recomputed != addr {
			return emitted, fmt.Errorf("%w: leaf plaintext hash mismatch", vaulterr.ErrCorruptData)
		}

		if digest != nil {
			digest.Write(pt)
		}

		toWrite := pt
		if pick != nil {
			if ranges, ok := pick.IncompleteDataChunks[idx]; ok {
				toWrite = sliceRanges(pt, ranges)
			}
		}
		if _, err := out.Write(toWrite); err != nil {
			return emitted, err
		}
		emitted += uint64(len(toWrite))
	}

	if digest != nil {
		var got [32]byte
		copy(got[:], digest.Sum(nil))
		if got != enc.IntegrityDigest {
			return emitted, fmt.Errorf("%w: reconstructed stream integrity digest mismatch", vaulterr.ErrCorruptData)
		}
	}

	if pick != nil && pick.IsSubtar {
		marker := make([]byte, 1024)
		if _, err := out.Write(marker); err != nil {
			return emitted, err
		}
		emitted += uint64(len(marker))
	}

	return emitted, nil
}

func sliceRanges(pt []byte, ranges []Range) []byte {
	var out []byte
	for _, r := range ranges {
		end := r.End
		if end > uint64(len(pt)) {
			end = uint64(len(pt))
		}
		if r.Start >= end {
			continue
		}
		out = append(out, pt[r.Start:end]...)
	}
	return out
}
