// Package htree implements the hierarchical address tree (C5 writer, C6
// reader): a Merkle-like tree of content addresses with content-defined
// internal splits, so that inserting one data chunk only shifts O(log n)
// address blocks and the tree itself deduplicates across similar
// backups.
package htree

import (
	"fmt"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/rollsum"
	"github.com/quantarax/vaultbridge/internal/vaulterr"
)

// MinimumAddrChunkSize is the smallest permitted max_addr_chunk_size: two
// addresses.
const MinimumAddrChunkSize = 2 * address.Size

// SensibleAddrMaxChunkSize is a sane default upper bound.
const SensibleAddrMaxChunkSize = 30000 * address.Size

// Sink receives chunks as the writer emits them (network or storage).
type Sink interface {
	AddChunk(addr address.Address, data []byte) error
}

// Source supplies chunk bytes to the reader on demand.
type Source interface {
	GetChunk(addr address.Address) ([]byte, error)
}

// Writer builds a multilevel address tree, splitting each level's
// address block at content-defined boundaries (spec §4.5).
type Writer struct {
	maxAddrChunkSize int
	chunkMask        uint32
	treeBlocks       [][]byte
	rollsums         []*rollsum.Rollsum
	dataChunkCount   uint64
}

// NewWriter constructs a Writer. maxAddrChunkSize must be at least
// MinimumAddrChunkSize.
func NewWriter(maxAddrChunkSize int, chunkMask uint32) *Writer {
	if maxAddrChunkSize < MinimumAddrChunkSize {
		panic("htree: max_addr_chunk_size too small")
	}
	return &Writer{
		maxAddrChunkSize: maxAddrChunkSize,
		chunkMask:        chunkMask,
	}
}

func (w *Writer) clearLevel(sink Sink, level int) error {
	if len(w.treeBlocks[level]) == 0 {
		w.rollsums[level].Reset()
		return nil
	}
	block := w.treeBlocks[level]
	w.treeBlocks[level] = nil
	blockAddr, err := address.TreeBlockAddress(block)
	if err != nil {
		return err
	}
	if err := sink.AddChunk(blockAddr, block); err != nil {
		return err
	}
	if err := w.addAddr(sink, level+1, blockAddr); err != nil {
		return err
	}
	w.rollsums[level].Reset()
	return nil
}

func (w *Writer) addAddr(sink Sink, level int, addr address.Address) error {
	if level == 0 {
		w.dataChunkCount++
	}

	for len(w.treeBlocks) < level+1 {
		w.treeBlocks = append(w.treeBlocks, nil)
		w.rollsums = append(w.rollsums, rollsum.New(w.chunkMask))
	}

	w.treeBlocks[level] = append(w.treeBlocks[level], addr[:]...)

	// An address is a hash of all the content; whether rolling every
	// byte of it (ORing the split decision across all of them) is
	// meaningfully better or worse than rolling fewer bytes is an open
	// question — preserved byte-for-byte from the source this was
	// ported from so tree shapes stay identical for identical inputs.
	isSplitPoint := false
	for _, b := range addr {
		if w.rollsums[level].RollByte(b) {
			isSplitPoint = true
		}
	}

	if len(w.treeBlocks[level]) >= 2*address.Size {
		nextWouldOverflow := len(w.treeBlocks[level])+address.Size > w.maxAddrChunkSize
		if isSplitPoint || nextWouldOverflow {
			return w.clearLevel(sink, level)
		}
	}
	return nil
}

// AddAddr records addr at level, possibly triggering a level split.
func (w *Writer) AddAddr(sink Sink, level int, addr address.Address) error {
	return w.addAddr(sink, level, addr)
}

// Add emits (addr, data) to sink as a level-0 leaf chunk and records addr.
func (w *Writer) Add(sink Sink, addr address.Address, data []byte) error {
	if err := sink.AddChunk(addr, data); err != nil {
		return err
	}
	return w.addAddr(sink, 0, addr)
}

// DataChunkCount returns the number of level-0 addresses recorded so far.
func (w *Writer) DataChunkCount() uint64 {
	return w.dataChunkCount
}

func (w *Writer) finishLevel(sink Sink, level int) (int, address.Address, error) {
	if len(w.treeBlocks)-1 == level && len(w.treeBlocks[level]) == address.Size {
		var root address.Address
		copy(root[:], w.treeBlocks[level])
		return level, root, nil
	}
	if len(w.treeBlocks[level])%address.Size != 0 {
		return 0, address.Address{}, fmt.Errorf("%w: tree block not a whole number of addresses", vaulterr.ErrCorruptData)
	}
	if err := w.clearLevel(sink, level); err != nil {
		return 0, address.Address{}, err
	}
	return w.finishLevel(sink, level+1)
}

// Finish flushes all pending levels bottom-up until a level collapses to
// a single address, the root, and returns (height, root_addr). Finish may
// only be called after at least one Add.
func (w *Writer) Finish(sink Sink) (int, address.Address, error) {
	if !(len(w.treeBlocks) > 1 || (len(w.treeBlocks) == 1 && len(w.treeBlocks[0]) >= address.Size)) {
		panic("htree: Finish called before any Add")
	}
	return w.finishLevel(sink, 0)
}
