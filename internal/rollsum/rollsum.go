// Package rollsum implements the windowed Adler-style rolling checksum
// used to pick content-defined chunk boundaries. It is a boundary
// decision only; it never participates in authentication.
package rollsum

// Window is the fixed width, in bytes, of the rolling window.
const Window = 64

const charOffset = 31

// Rollsum holds the rolling checksum state: the two Adler-like sums, the
// fixed-size window of the most recently seen bytes, the write offset
// into that window, and the mask that defines a split point.
type Rollsum struct {
	s1, s2    uint32
	window    [Window]byte
	offset    int
	chunkMask uint32
}

// New returns a freshly reset Rollsum configured with chunkMask.
func New(chunkMask uint32) *Rollsum {
	r := &Rollsum{chunkMask: chunkMask}
	r.Reset()
	return r
}

// Reset clears the window and sums, as if newly constructed.
func (r *Rollsum) Reset() {
	r.window = [Window]byte{}
	r.offset = 0
	r.s1 = Window * charOffset
	r.s2 = Window * (Window - 1) * charOffset
}

// RollByte removes the byte about to leave the window, adds b, and
// reports whether the resulting state is a split point.
func (r *Rollsum) RollByte(b byte) bool {
	leaving := r.window[r.offset]
	r.s1 += uint32(b) - uint32(leaving)
	r.s2 += r.s1 - Window*(uint32(leaving)+charOffset)

	r.window[r.offset] = b
	r.offset = (r.offset + 1) % Window

	return r.IsSplitPoint()
}

// IsSplitPoint reports whether the current state is a split point under
// the configured chunk mask.
func (r *Rollsum) IsSplitPoint() bool {
	return (r.s1^r.s2)&r.chunkMask == r.chunkMask
}

// Digest returns the raw (s1, s2) pair, mostly useful for tests.
func (r *Rollsum) Digest() (uint32, uint32) {
	return r.s1, r.s2
}
