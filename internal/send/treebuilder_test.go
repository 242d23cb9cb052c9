package send

import (
	"testing"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cryptobox"
)

type memSink struct {
	chunks map[address.Address][]byte
}

func newMemSink() *memSink { return &memSink{chunks: make(map[address.Address][]byte)} }

func (s *memSink) AddChunk(addr address.Address, data []byte) error {
	s.chunks[addr] = append([]byte(nil), data...)
	return nil
}

func testEncryptionContext(t *testing.T) *cryptobox.EncryptionContext {
	t.Helper()
	pk, _, err := cryptobox.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	psk, err := cryptobox.NewPreSharedKey()
	if err != nil {
		t.Fatal(err)
	}
	ec, err := cryptobox.NewEncryptionContext(pk, psk)
	if err != nil {
		t.Fatal(err)
	}
	return ec
}

func TestTreeBuilderWriteAndFinish(t *testing.T) {
	sink := newMemSink()
	part1, _ := address.NewPartialHashKey()
	part2, _ := address.NewPartialHashKey()
	hashKey, err := address.DeriveHashKey(part1, part2)
	if err != nil {
		t.Fatal(err)
	}
	ec := testEncryptionContext(t)

	tb := NewTreeBuilder(sink, hashKey, ec, cryptobox.CompressionNone)
	data := make([]byte, 1024*1024)
	for i := range data {
		data[i] = byte(i)
	}
	if err := tb.Write(data); err != nil {
		t.Fatal(err)
	}

	head, err := tb.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.chunks[head.Address]; !ok && head.Height > 0 {
		t.Fatalf("root address missing from sink")
	}
	if tb.DataChunkCount() == 0 {
		t.Fatalf("expected at least one leaf chunk for 1MiB input")
	}
}

func TestTreeBuilderOnLeafAddrCallback(t *testing.T) {
	sink := newMemSink()
	part1, _ := address.NewPartialHashKey()
	part2, _ := address.NewPartialHashKey()
	hashKey, _ := address.DeriveHashKey(part1, part2)
	ec := testEncryptionContext(t)

	tb := NewTreeBuilder(sink, hashKey, ec, cryptobox.CompressionNone)
	var seen []address.Address
	tb.OnLeafAddr = func(addr address.Address) { seen = append(seen, addr) }

	if err := tb.Write([]byte("hello world")); err != nil {
		t.Fatal(err)
	}
	if _, err := tb.Finish(); err != nil {
		t.Fatal(err)
	}
	if len(seen) == 0 {
		t.Fatalf("expected OnLeafAddr to fire at least once")
	}
}
