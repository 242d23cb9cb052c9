package htree

import "testing"

func TestWriteShapeSingleLevel(t *testing.T) {
	chunks := memChunks{}
	// Chunks that can only fit two addresses. Split mask is almost never
	// successful.
	tw := NewWriter(MinimumAddrChunkSize, 0xffffffff)

	if err := tw.Add(chunks, addrOf(1), []byte{}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Add(chunks, addrOf(2), []byte{0}); err != nil {
		t.Fatal(err)
	}

	_, root, err := tw.Finish(chunks)
	if err != nil {
		t.Fatal(err)
	}

	// One chunk per added, plus one for addresses.
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	addrChunk, ok := chunks[root]
	if !ok {
		t.Fatalf("root chunk missing from sink")
	}
	if len(addrChunk) != 2*32 {
		t.Fatalf("root chunk len = %d, want %d", len(addrChunk), 2*32)
	}
}

func TestWriteShapeTwoLevels(t *testing.T) {
	chunks := memChunks{}
	tw := NewWriter(MinimumAddrChunkSize, 0xffffffff)

	if err := tw.Add(chunks, addrOf(1), []byte{}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Add(chunks, addrOf(2), []byte{0}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Add(chunks, addrOf(3), []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	_, root, err := tw.Finish(chunks)
	if err != nil {
		t.Fatal(err)
	}

	// root = [address1 .. address2]
	// address1 = [chunk0 .. chunk1]
	// address2 = [chunk3]
	// chunk0, chunk1, chunk3
	if len(chunks) != 6 {
		t.Fatalf("len(chunks) = %d, want 6", len(chunks))
	}
	addrChunk, ok := chunks[root]
	if !ok {
		t.Fatalf("root chunk missing from sink")
	}
	if len(addrChunk) != 2*32 {
		t.Fatalf("root chunk len = %d, want %d", len(addrChunk), 2*32)
	}
}

func TestWriteShapeSingleLevelContentSplit(t *testing.T) {
	chunks := memChunks{}
	// Allow large chunks; split mask that is always successful.
	tw := NewWriter(SensibleAddrMaxChunkSize, 0)

	if err := tw.Add(chunks, addrOf(1), []byte{}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Add(chunks, addrOf(2), []byte{0}); err != nil {
		t.Fatal(err)
	}

	_, root, err := tw.Finish(chunks)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	if len(chunks[root]) != 2*32 {
		t.Fatalf("root chunk len = %d, want %d", len(chunks[root]), 2*32)
	}
}

func TestWriteShapeTwoLevelsContentSplit(t *testing.T) {
	chunks := memChunks{}
	tw := NewWriter(SensibleAddrMaxChunkSize, 0)

	if err := tw.Add(chunks, addrOf(1), []byte{}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Add(chunks, addrOf(2), []byte{0}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Add(chunks, addrOf(3), []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	_, root, err := tw.Finish(chunks)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 6 {
		t.Fatalf("len(chunks) = %d, want 6", len(chunks))
	}
	if len(chunks[root]) != 2*32 {
		t.Fatalf("root chunk len = %d, want %d", len(chunks[root]), 2*32)
	}
}

func TestTreeReaderWalk(t *testing.T) {
	chunks := memChunks{}
	tw := NewWriter(MinimumAddrChunkSize, 0xffffffff)

	if err := tw.Add(chunks, addrOf(1), []byte{}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Add(chunks, addrOf(2), []byte{0}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Add(chunks, addrOf(3), []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	height, root, err := tw.Finish(chunks)
	if err != nil {
		t.Fatal(err)
	}

	tr := NewReader(height, root)

	count := 0
	leafCount := 0
	for {
		lvl, addr, ok, err := tr.NextAddr()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		if lvl != 0 {
			data, ok := chunks[addr]
			if !ok {
				t.Fatalf("missing internal node chunk")
			}
			tr.PushLevel(lvl-1, data)
		}
		count++
		if lvl == 0 {
			leafCount++
		}
	}

	// root = [address1 .. address2]
	// address1 = [chunk0 .. chunk1]
	// address2 = [chunk3]
	// chunk0, chunk1, chunk3
	if count != 6 {
		t.Fatalf("count = %d, want 6", count)
	}
	if leafCount != 3 {
		t.Fatalf("leafCount = %d, want 3", leafCount)
	}
}
