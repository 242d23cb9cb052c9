package wire

import (
	"bytes"
	"testing"

	"github.com/quantarax/vaultbridge/internal/xid"
)

func TestWritePacketReadPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	want := TBeginSend{DeltaID: nil}
	if err := WritePacket(&buf, TypeTBeginSend, want); err != nil {
		t.Fatal(err)
	}

	typ, payload, err := ReadPacket(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if typ != TypeTBeginSend {
		t.Fatalf("type = %d, want %d", typ, TypeTBeginSend)
	}

	var got TBeginSend
	if err := Decode(payload, &got); err != nil {
		t.Fatal(err)
	}
}

func TestReadPacketRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0xff, 0xff, 0xff, 0xff, byte(TypeChunk)}
	buf.Write(header)

	if _, _, err := ReadPacket(&buf); err == nil {
		t.Fatalf("expected error for oversized packet length")
	}
}

func TestExpectTypeMismatch(t *testing.T) {
	if err := ExpectType(TypeChunk, TypeTAddItem); err == nil {
		t.Fatalf("expected mismatch error")
	}
	if err := ExpectType(TypeChunk, TypeChunk); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMultiplePacketsSequentialRead(t *testing.T) {
	var buf bytes.Buffer

	id := xid.New()
	if err := WritePacket(&buf, TypeTAddItem, TAddItem{GCGeneration: "gen1", ItemMetadata: []byte("md")}); err != nil {
		t.Fatal(err)
	}
	if err := WritePacket(&buf, TypeRAddItem, RAddItem{ItemID: id}); err != nil {
		t.Fatal(err)
	}

	typ1, p1, err := ReadPacket(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if typ1 != TypeTAddItem {
		t.Fatalf("first packet type = %d, want TypeTAddItem", typ1)
	}
	var addItem TAddItem
	if err := Decode(p1, &addItem); err != nil {
		t.Fatal(err)
	}
	if addItem.GCGeneration != "gen1" {
		t.Fatalf("GCGeneration = %q, want gen1", addItem.GCGeneration)
	}

	typ2, p2, err := ReadPacket(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if typ2 != TypeRAddItem {
		t.Fatalf("second packet type = %d, want TypeRAddItem", typ2)
	}
	var rAdd RAddItem
	if err := Decode(p2, &rAdd); err != nil {
		t.Fatal(err)
	}
	if rAdd.ItemID != id {
		t.Fatalf("item id mismatch")
	}
}
