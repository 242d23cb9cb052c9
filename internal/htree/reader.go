package htree

import (
	"fmt"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/vaulterr"
)

// Reader is a pure navigator over caller-supplied chunk bytes: it
// performs no I/O itself. The caller decides, for each address NextAddr
// returns, whether to fetch/verify and PushLevel (internal node) or
// consume as a leaf (level == 0).
type Reader struct {
	blocks  [][]byte
	heights []int
	offsets []int
}

// NewReader starts a walk at the root (height, addr).
func NewReader(height int, root address.Address) *Reader {
	return &Reader{
		blocks:  [][]byte{append([]byte(nil), root[:]...)},
		heights: []int{height},
		offsets: []int{0},
	}
}

func (r *Reader) pop() {
	n := len(r.blocks) - 1
	r.blocks = r.blocks[:n]
	r.heights = r.heights[:n]
	r.offsets = r.offsets[:n]
}

// PushLevel descends into an internal node's freshly-fetched and
// verified bytes.
func (r *Reader) PushLevel(level int, data []byte) {
	r.blocks = append(r.blocks, data)
	r.heights = append(r.heights, level)
	r.offsets = append(r.offsets, 0)
}

// NextAddr pops exhausted frames and returns the next (level, address)
// pair, or (0, Address{}, false, nil) when the walk is complete.
func (r *Reader) NextAddr() (int, address.Address, bool, error) {
	for {
		if len(r.blocks) == 0 {
			return 0, address.Address{}, false, nil
		}

		top := len(r.blocks) - 1
		data := r.blocks[top]
		height := r.heights[top]
		offset := r.offsets[top]
		remaining := data[offset:]

		if len(remaining) == 0 {
			r.pop()
			continue
		}
		if len(remaining) < address.Size {
			return 0, address.Address{}, false, fmt.Errorf("%w: truncated tree node", vaulterr.ErrCorruptData)
		}

		var addr address.Address
		copy(addr[:], remaining[:address.Size])
		r.offsets[top] += address.Size
		return height, addr, true, nil
	}
}
