package chunker

import (
	"bytes"
	"testing"
)

func TestAddBytes(t *testing.T) {
	ch := New(0xffffffff, 1, 2)

	n, chunk := ch.AddBytes([]byte("a"))
	if n != 1 || chunk != nil {
		t.Fatalf("first add_bytes: got (%d, %v), want (1, nil)", n, chunk)
	}

	n, chunk = ch.AddBytes([]byte("bc"))
	if n != 1 || string(chunk) != "ab" {
		t.Fatalf("second add_bytes: got (%d, %q), want (1, \"ab\")", n, chunk)
	}

	n, chunk = ch.AddBytes([]byte("c"))
	if n != 1 || chunk != nil {
		t.Fatalf("third add_bytes: got (%d, %v), want (1, nil)", n, chunk)
	}

	if got := ch.Finish(); string(got) != "c" {
		t.Fatalf("finish: got %q, want \"c\"", got)
	}
}

func TestForceSplitBytes(t *testing.T) {
	ch := New(0xffffffff, 10, 100)

	if v := ch.ForceSplit(); v != nil {
		t.Fatalf("force_split on empty chunker: got %v, want nil", v)
	}
	ch.AddBytes([]byte("abc"))

	v := ch.ForceSplit()
	if string(v) != "abc" {
		t.Fatalf("force_split: got %q, want \"abc\"", v)
	}
	if v := ch.ForceSplit(); v != nil {
		t.Fatalf("force_split after split: got %v, want nil", v)
	}
	ch.AddBytes([]byte("def"))
	if got := ch.Finish(); string(got) != "def" {
		t.Fatalf("finish: got %q, want \"def\"", got)
	}
}

// TestRoundTrip feeds a byte stream in arbitrary contiguous slicings and
// checks the concatenation of emitted chunks plus Finish reconstructs it.
func TestRoundTrip(t *testing.T) {
	data := make([]byte, 200000)
	for i := range data {
		data[i] = byte(i * 2654435761 >> 13)
	}

	slicings := [][]int{
		{len(data)},
		repeatLen(1, len(data)),
		repeatLen(7, len(data)),
		repeatLen(4096, len(data)),
	}

	for si, sizes := range slicings {
		ch := New(0x000fffff, 256, 8192)
		var reconstructed []byte
		off := 0
		for _, n := range sizes {
			if off >= len(data) {
				break
			}
			end := off + n
			if end > len(data) {
				end = len(data)
			}
			consumedTotal := 0
			for consumedTotal < end-off {
				consumed, chunk := ch.AddBytes(data[off+consumedTotal : end])
				consumedTotal += consumed
				if chunk != nil {
					reconstructed = append(reconstructed, chunk...)
				}
				if consumed == 0 {
					break
				}
			}
			off = end
		}
		reconstructed = append(reconstructed, ch.Finish()...)
		if !bytes.Equal(reconstructed, data) {
			t.Fatalf("slicing %d: round trip mismatch (got %d bytes, want %d)", si, len(reconstructed), len(data))
		}
	}
}

// TestDeterministicBoundaries checks that two chunkers with identical
// parameters fed the same stream emit identical chunk boundaries
// regardless of input buffering granularity.
func TestDeterministicBoundaries(t *testing.T) {
	data := make([]byte, 100000)
	for i := range data {
		data[i] = byte(i*31 + 7)
	}

	boundaries := func(feedSize int) []int {
		ch := New(0x0000ffff, 64, 4096)
		var bounds []int
		pos := 0
		for pos < len(data) {
			end := pos + feedSize
			if end > len(data) {
				end = len(data)
			}
			for pos < end {
				n, chunk := ch.AddBytes(data[pos:end])
				pos += n
				if chunk != nil {
					bounds = append(bounds, pos)
				}
				if n == 0 {
					break
				}
			}
		}
		return bounds
	}

	a := boundaries(1)
	b := boundaries(997)
	if len(a) != len(b) {
		t.Fatalf("boundary count differs by feed granularity: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("boundary %d differs: %d vs %d", i, a[i], b[i])
		}
	}
}

func repeatLen(n, total int) []int {
	var out []int
	for sum := 0; sum < total; sum += n {
		out = append(out, n)
	}
	return out
}
