// Package chunker implements the content-defined variable-size chunker
// (C2): it consumes a byte feed and emits chunks whose boundaries are
// picked by internal/rollsum, so that insertion or deletion of bytes
// only disturbs chunks near the edit.
package chunker

import "github.com/quantarax/vaultbridge/internal/rollsum"

// Chunker splits an incoming byte feed into variable-sized chunks.
type Chunker struct {
	rs     *rollsum.Rollsum
	minSz  int
	maxSz  int
	defCap int
	cur    []byte
}

// New constructs a Chunker. minSz is clamped to at least 1; maxSz is
// clamped to at least minSz.
func New(chunkMask uint32, minSz, maxSz int) *Chunker {
	if minSz <= 0 {
		minSz = 1
	}
	if maxSz < minSz {
		maxSz = minSz
	}
	defCap := maxSz / 2
	c := &Chunker{
		rs:     rollsum.New(chunkMask),
		minSz:  minSz,
		maxSz:  maxSz,
		defCap: defCap,
		cur:    make([]byte, 0, defCap),
	}
	c.rs.Reset()
	return c
}

func (c *Chunker) swap() []byte {
	v := make([]byte, 0, c.defCap)
	old := c.cur
	c.cur = v
	return old
}

// AddBytes feeds buf into the chunker. It returns the number of bytes
// consumed (which may be less than len(buf) if that would overshoot
// maxSz) and, if a chunk boundary was reached, the completed chunk.
func (c *Chunker) AddBytes(buf []byte) (int, []byte) {
	nBytes := len(buf)
	if nBytes+len(c.cur) > c.maxSz {
		overshoot := (nBytes + len(c.cur)) - c.maxSz
		nBytes -= overshoot
	}

	// Fast path: none of these bytes can be part of the next split
	// window, so skip rolling the checksum over them entirely.
	if c.minSz >= rollsum.Window && len(c.cur)+nBytes < c.minSz-rollsum.Window {
		c.cur = append(c.cur, buf[:nBytes]...)
		return nBytes, nil
	}

	nAdded := 0
	for _, b := range buf[:nBytes] {
		c.cur = append(c.cur, b)
		nAdded++
		if (c.rs.RollByte(b) && len(c.cur) > c.minSz) || len(c.cur) == c.maxSz {
			return nAdded, c.swap()
		}
	}
	return nAdded, nil
}

// BufferedCount returns the number of bytes currently buffered, not yet
// emitted as a chunk.
func (c *Chunker) BufferedCount() int {
	return len(c.cur)
}

// ForceSplit emits the current buffer as a chunk regardless of whether a
// natural split point was reached, and resets the rolling sum. It
// returns nil if the buffer was empty.
func (c *Chunker) ForceSplit() []byte {
	c.rs.Reset()
	v := c.swap()
	if len(v) == 0 {
		return nil
	}
	return v
}

// Finish returns the tail of buffered bytes; the Chunker must not be used
// afterward.
func (c *Chunker) Finish() []byte {
	return c.cur
}
