// Package send implements the client send pipeline (C8): it
// orchestrates a DataSource through the chunker and tree writer,
// streams resulting chunks to a repository session, and commits the
// result as a new item, with bounded smear-triggered retry (spec
// §4.8).
package send

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cryptobox"
	"github.com/quantarax/vaultbridge/internal/sendlog"
	"github.com/quantarax/vaultbridge/internal/vaulterr"
	"github.com/quantarax/vaultbridge/internal/wire"
	"github.com/quantarax/vaultbridge/internal/xid"
)

// Session is the narrow transport contract the send pipeline needs
// beyond PacketConn: a place to read/write the handshake-level
// packets used outside the chunk stream.
type Session interface {
	PacketConn
}

// Request bundles everything one Send call needs.
type Request struct {
	Ctx        *SendContext
	Source     DataSource
	Log        sendlog.Log
	Walker     DirWalker
	Tags       Tags
	PrimaryKeyID string
	SendKeyID    string
	DeltaID    *xid.ID
}

// Send drives the full protocol state machine of spec §4.8, retrying
// up to vaulterr.MaxSendAttempts times on smear errors.
func Send(conn Session, req *Request) (xid.ID, error) {
	if req.Walker == nil {
		req.Walker = OSDirWalker{}
	}

	for attempt := 1; attempt <= vaulterr.MaxSendAttempts; attempt++ {
		id, err := attemptSend(conn, req, attempt)
		if err == nil {
			return id, nil
		}
		if !isSmearCandidate(err) && !vaulterr.IsSmear(err) {
			return xid.ID{}, err
		}
		// Smear recovery: checkpoint whatever the server already
		// acknowledged, then restart (spec §4.8 "Smear recovery").
		if req.Log != nil {
			_ = req.Log.Checkpoint()
		}
	}
	return xid.ID{}, fmt.Errorf("send: exceeded %d attempts due to repeated filesystem modification", vaulterr.MaxSendAttempts)
}

func attemptSend(conn Session, req *Request, attempt int) (xid.ID, error) {
	// Step 1: TBeginSend / RBeginSend.
	if err := conn.WritePacket(wire.TypeTBeginSend, wire.TBeginSend{DeltaID: req.DeltaID}); err != nil {
		return xid.ID{}, err
	}
	typ, payload, err := conn.ReadPacket()
	if err != nil {
		return xid.ID{}, err
	}
	if err := wire.ExpectType(typ, wire.TypeRBeginSend); err != nil {
		return xid.ID{}, err
	}
	var rBegin wire.RBeginSend
	if err := wire.Decode(payload, &rBegin); err != nil {
		return xid.ID{}, err
	}

	// Step 2: open send-log session, invalidate caches.
	if req.Log != nil {
		if _, err := req.Log.Open(rBegin.GCGeneration); err != nil {
			return xid.ID{}, err
		}
		if err := req.Log.PerformCacheInvalidations(rBegin.HasDeltaID); err != nil {
			return xid.ID{}, err
		}
	}

	hashKeyPart2, err := address.NewPartialHashKey()
	if err != nil {
		return xid.ID{}, err
	}
	hashKey, err := address.DeriveHashKey(req.Ctx.HashKeyPart1, hashKeyPart2)
	if err != nil {
		return xid.ID{}, err
	}
	if len(req.Ctx.Ectxs) == 0 {
		return xid.ID{}, fmt.Errorf("send: no encryption context configured")
	}
	ec := req.Ctx.Ectxs[0]

	tx := NewWireTransmitter(conn)
	sink := NewDedupSink(req.Log, tx, req.Ctx.CheckpointBytes)

	// Steps 3-9: build the data tree (and, for directories, the index
	// tree) then the item metadata.
	var dataHead TreeHead
	var indexHead *TreeHead
	var integrityDigest [32]byte

	switch req.Source.Kind {
	case SourceDirectory:
		dataHead, indexHead, integrityDigest, err = sendDirectory(req, hashKey, ec, sink, attempt)
	default:
		dataHead, integrityDigest, err = sendStream(req, hashKey, ec, sink)
	}
	if err != nil {
		return xid.ID{}, err
	}

	if err := sink.Flush(); err != nil {
		return xid.ID{}, err
	}

	plainMeta := PlaintextItemMetadata{
		PrimaryKeyID: req.PrimaryKeyID,
		DataTree:     dataHead,
		IndexTree:    indexHead,
	}
	plainMetaBytes, err := json.Marshal(plainMeta)
	if err != nil {
		return xid.ID{}, err
	}
	plainMetaHash := sha256.Sum256(plainMetaBytes)

	encMeta := EncryptedItemMetadata{
		Tags:                  req.Tags,
		Timestamp:             time.Now(),
		SendKeyID:             req.SendKeyID,
		HashKeyPart2:          hashKeyPart2,
		PlaintextMetadataHash: plainMetaHash,
		IntegrityDigest:       integrityDigest,
	}
	encMetaBytes, err := json.Marshal(encMeta)
	if err != nil {
		return xid.ID{}, err
	}
	sealedEncMeta, err := ec.EncryptData(encMetaBytes, cryptobox.CompressionNone)
	if err != nil {
		return xid.ID{}, err
	}

	itemMetadata := struct {
		Plaintext json.RawMessage
		Encrypted []byte
	}{Plaintext: plainMetaBytes, Encrypted: sealedEncMeta}
	itemMetadataBytes, err := json.Marshal(itemMetadata)
	if err != nil {
		return xid.ID{}, err
	}

	// Step 10: TAddItem / RAddItem, then commit the send-log.
	if err := conn.WritePacket(wire.TypeTAddItem, wire.TAddItem{
		GCGeneration: rBegin.GCGeneration,
		ItemMetadata: itemMetadataBytes,
	}); err != nil {
		return xid.ID{}, err
	}
	typ, payload, err = conn.ReadPacket()
	if err != nil {
		return xid.ID{}, err
	}
	if err := wire.ExpectType(typ, wire.TypeRAddItem); err != nil {
		return xid.ID{}, err
	}
	var rAdd wire.RAddItem
	if err := wire.Decode(payload, &rAdd); err != nil {
		return xid.ID{}, err
	}

	if req.Log != nil {
		if err := req.Log.Commit(rAdd.ItemID.String()); err != nil {
			return xid.ID{}, err
		}
	}
	return rAdd.ItemID, nil
}

func sendStream(req *Request, hashKey address.HashKey, ec *cryptobox.EncryptionContext, sink *DedupSink) (TreeHead, [32]byte, error) {
	tb := NewTreeBuilder(sink, hashKey, ec, req.Ctx.Compression)

	var r io.Reader
	var closeFn func() error
	switch req.Source.Kind {
	case SourceReadable:
		r = req.Source.Reader
	case SourceSubprocess:
		cmdReader, cf, err := runSubprocess(req.Source.Argv)
		if err != nil {
			return TreeHead{}, [32]byte{}, err
		}
		closeFn = cf
		r = cmdReader
	default:
		return TreeHead{}, [32]byte{}, fmt.Errorf("send: unsupported source kind")
	}

	buf := make([]byte, 256*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := tb.Write(buf[:n]); werr != nil {
				return TreeHead{}, [32]byte{}, werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return TreeHead{}, [32]byte{}, err
		}
	}
	if closeFn != nil {
		if err := closeFn(); err != nil {
			return TreeHead{}, [32]byte{}, err
		}
	}
	head, err := tb.Finish()
	if err != nil {
		return TreeHead{}, [32]byte{}, err
	}
	return head, tb.IntegrityDigest(), nil
}

// dirHash computes H(absolute_dir ‖ 0 ‖ for-each-entry(ctime_s ‖ ctime_ns ‖ header_bytes))
// using the session hash key (spec §4.8 "Directory traversal").
func dirHash(absDir string, entries []DirEntry, headers [][]byte, hashKey address.HashKey) ([32]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(absDir)
	buf.WriteByte(0)
	for i, e := range entries {
		sec, nsec := CTime(e.Info)
		var tbuf [16]byte
		binary.LittleEndian.PutUint64(tbuf[:8], uint64(sec))
		binary.LittleEndian.PutUint64(tbuf[8:], uint64(nsec))
		buf.Write(tbuf[:])
		buf.Write(headers[i])
	}
	addr, err := address.KeyedContentAddress(buf.Bytes(), &hashKey)
	if err != nil {
		return [32]byte{}, err
	}
	return addr, nil
}

// IndexEntry records, for one directory entry, the chunk indices
// (relative to the directory's first chunk) and the byte offsets within
// those chunks where its tar header and (for regular files) body begin
// (spec §4.8 "Directory traversal").
type IndexEntry struct {
	RelPath        string
	HeaderChunkIdx uint64
	HeaderOffset   uint64
	DataChunkIdx   uint64 `json:",omitempty"`
	DataOffset     uint64 `json:",omitempty"`
	Size           int64
}

func sendDirectory(req *Request, hashKey address.HashKey, ec *cryptobox.EncryptionContext, sink *DedupSink, attempt int) (TreeHead, *TreeHead, [32]byte, error) {
	tb := NewTreeBuilder(sink, hashKey, ec, req.Ctx.Compression)
	idxTb := NewTreeBuilder(sink, hashKey, ec, req.Ctx.Compression)

	var indexEntries []IndexEntry

	var collecting *[]address.Address
	tb.OnLeafAddr = func(addr address.Address) {
		if collecting != nil {
			*collecting = append(*collecting, addr)
		}
	}

	err := req.Walker.Walk(req.Source.Path, req.Source.Exclusions, func(absDir string, entries []DirEntry) error {
		headers := make([][]byte, len(entries))
		for i, e := range entries {
			hdr, err := TarHeaderBytes(e.RelPath, e.Info, e.LinkTarget)
			if err != nil {
				return err
			}
			headers[i] = hdr
		}

		hash, err := dirHash(absDir, entries, headers, hashKey)
		if err != nil {
			return err
		}

		if req.Ctx.UseStatCache && req.Log != nil {
			cached, ok, err := req.Log.StatCacheLookup(hash)
			if err != nil {
				return err
			}
			if ok {
				offset := tb.DataChunkCount()
				for _, addr := range cached.PackedAddresses {
					if err := tb.AddCachedAddr(addr); err != nil {
						return err
					}
				}
				rebased := rebaseIndexEntries(cached.SerializedIndex, offset)
				indexEntries = append(indexEntries, rebased...)
				return nil
			}
		}

		offset := tb.DataChunkCount()
		var dirAddrs []address.Address
		collecting = &dirAddrs
		defer func() { collecting = nil }()

		for _, e := range entries {
			hdrIdx := tb.DataChunkCount()
			hdrOff := uint64(tb.chunker.BufferedCount())
			hdr, err := TarHeaderBytes(e.RelPath, e.Info, e.LinkTarget)
			if err != nil {
				return err
			}
			if err := tb.Write(hdr); err != nil {
				return err
			}

			entry := IndexEntry{RelPath: e.RelPath, HeaderChunkIdx: hdrIdx - offset, HeaderOffset: hdrOff, Size: e.Info.Size()}

			if e.Info.Mode().IsRegular() {
				dataIdx := tb.DataChunkCount()
				entry.DataOffset = uint64(tb.chunker.BufferedCount())
				n, err := streamRegularFile(e, tb, attempt)
				if err != nil {
					return err
				}
				if pad := PadTo512(n); pad != nil {
					if err := tb.Write(pad); err != nil {
						return err
					}
				}
				entry.DataChunkIdx = dataIdx - offset
			}
			indexEntries = append(indexEntries, entry)
		}

		if err := tb.ForceSplit(); err != nil {
			return err
		}

		if req.Ctx.UseStatCache && req.Log != nil {
			serialized, err := json.Marshal(indexEntries[len(indexEntries)-len(entries):])
			if err != nil {
				return err
			}
			entry := sendlog.StatCacheEntry{
				PackedAddresses: dirAddrs,
				SerializedIndex: serialized,
			}
			if err := req.Log.AddStatCacheData(hash, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isSmearCandidate(err) {
			return TreeHead{}, nil, [32]byte{}, toFilesystemModifiedError(attempt, req.Source.Path, err)
		}
		return TreeHead{}, nil, [32]byte{}, err
	}

	if err := tb.Write(EndOfArchiveMarker()); err != nil {
		return TreeHead{}, nil, [32]byte{}, err
	}

	dataHead, err := tb.Finish()
	if err != nil {
		return TreeHead{}, nil, [32]byte{}, err
	}
	integrityDigest := tb.IntegrityDigest()

	serializedIdx, err := json.Marshal(indexEntries)
	if err != nil {
		return TreeHead{}, nil, [32]byte{}, err
	}
	if err := idxTb.Write(serializedIdx); err != nil {
		return TreeHead{}, nil, [32]byte{}, err
	}
	indexHead, err := idxTb.Finish()
	if err != nil {
		return TreeHead{}, nil, [32]byte{}, err
	}

	return dataHead, &indexHead, integrityDigest, nil
}

func rebaseIndexEntries(serialized []byte, offset uint64) []IndexEntry {
	var entries []IndexEntry
	if err := json.Unmarshal(serialized, &entries); err != nil {
		return nil
	}
	for i := range entries {
		entries[i].HeaderChunkIdx += offset
		entries[i].DataChunkIdx += offset
	}
	return entries
}

func streamRegularFile(e DirEntry, tb *TreeBuilder, attempt int) (int64, error) {
	f, err := os.Open(e.AbsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, &smearError{path: e.AbsPath, cause: err}
		}
		return 0, err
	}
	defer f.Close()

	var total int64
	buf := make([]byte, 256*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if werr := tb.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return total, rerr
		}
	}
	if err := checkShortRead(e.AbsPath, e.Info.Size(), total); err != nil {
		return total, err
	}
	return total, nil
}
