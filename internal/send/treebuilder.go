package send

import (
	"fmt"
	"hash"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/chunker"
	"github.com/quantarax/vaultbridge/internal/cryptobox"
	"github.com/quantarax/vaultbridge/internal/htree"
	"github.com/zeebo/blake3"
)

// TreeBuilder wires the content-defined chunker (C2) to the HTree
// writer (C5) through the per-chunk crypto pipeline (C4): every leaf
// the chunker emits is content-addressed against the plaintext (per
// spec invariant 1), encrypted, and pushed into the tree.
type TreeBuilder struct {
	chunker  *chunker.Chunker
	tw       *htree.Writer
	sink     htree.Sink
	hashKey  address.HashKey
	ec       *cryptobox.EncryptionContext
	compress cryptobox.Compression

	// digest accumulates a streaming BLAKE3 hash of the plaintext
	// exactly as written, independent of chunk boundaries (C17).
	digest hash.Hash

	// OnLeafAddr, if set, is called with every leaf address as it is
	// emitted (including cached re-adds via AddCachedAddr). Used by
	// directory sends to record a stat-cache entry's address list.
	OnLeafAddr func(address.Address)
}

func NewTreeBuilder(sink htree.Sink, hashKey address.HashKey, ec *cryptobox.EncryptionContext, compress cryptobox.Compression) *TreeBuilder {
	return &TreeBuilder{
		chunker:  chunker.New(DataChunkMask, DataChunkMinSize, DataChunkMaxSize),
		tw:       htree.NewWriter(htree.SensibleAddrMaxChunkSize, DataChunkMask),
		sink:     sink,
		hashKey:  hashKey,
		ec:       ec,
		compress: compress,
		digest:   blake3.New(),
	}
}

// Write streams plaintext bytes into the chunker, sealing and pushing
// every emitted leaf chunk into the tree.
func (b *TreeBuilder) Write(p []byte) error {
	b.digest.Write(p)
	for len(p) > 0 {
		n, chunk := b.chunker.AddBytes(p)
		p = p[n:]
		if chunk != nil {
			if err := b.emitLeaf(chunk); err != nil {
				return err
			}
		}
	}
	return nil
}

// IntegrityDigest returns the running BLAKE3 digest of every byte
// written so far, independent of content addressing or deduplication
// (C17): a receiver-side corruption check over and above per-chunk
// verification.
func (b *TreeBuilder) IntegrityDigest() [32]byte {
	var d [32]byte
	copy(d[:], b.digest.Sum(nil))
	return d
}

// ForceSplit flushes the chunker's current buffer as a leaf even if no
// content-defined boundary was hit, used to align directory entry
// boundaries (spec §4.8 "Directory traversal").
func (b *TreeBuilder) ForceSplit() error {
	chunk := b.chunker.ForceSplit()
	if chunk == nil {
		return nil
	}
	return b.emitLeaf(chunk)
}

// AddCachedAddr records a previously-seen leaf address directly into
// the tree without re-reading or re-encrypting its content (the
// stat-cache hit path of spec §4.8).
func (b *TreeBuilder) AddCachedAddr(addr address.Address) error {
	if b.OnLeafAddr != nil {
		b.OnLeafAddr(addr)
	}
	return b.tw.AddAddr(b.sink, 0, addr)
}

func (b *TreeBuilder) emitLeaf(pt []byte) error {
	addr, err := address.KeyedContentAddress(pt, &b.hashKey)
	if err != nil {
		return fmt.Errorf("send: compute leaf address: %w", err)
	}
	ct, err := b.ec.EncryptData(append([]byte(nil), pt...), b.compress)
	if err != nil {
		return fmt.Errorf("send: encrypt leaf chunk: %w", err)
	}
	if b.OnLeafAddr != nil {
		b.OnLeafAddr(addr)
	}
	return b.tw.Add(b.sink, addr, ct)
}

// Finish flushes the chunker's remaining buffer as a final leaf (if
// nonempty) and closes the tree, returning its root.
func (b *TreeBuilder) Finish() (TreeHead, error) {
	final := b.chunker.Finish()
	if len(final) > 0 {
		if err := b.emitLeaf(final); err != nil {
			return TreeHead{}, err
		}
	}
	height, root, err := b.tw.Finish(b.sink)
	if err != nil {
		return TreeHead{}, fmt.Errorf("send: finish tree: %w", err)
	}
	return TreeHead{Height: height, Address: root}, nil
}

// DataChunkCount returns the number of level-0 leaves emitted so far,
// used to compute dir_data_chunk_idx offsets during directory sends.
func (b *TreeBuilder) DataChunkCount() uint64 {
	return b.tw.DataChunkCount()
}
