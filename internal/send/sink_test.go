package send

import (
	"testing"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/sendlog/memlog"
)

type fakeTransmitter struct {
	sent  []address.Address
	syncs int
}

func (f *fakeTransmitter) SendChunk(addr address.Address, ciphertext []byte) error {
	f.sent = append(f.sent, addr)
	return nil
}

func (f *fakeTransmitter) SendSync() error {
	f.syncs++
	return nil
}

func TestDedupSinkSkipsCachedAddress(t *testing.T) {
	log := memlog.New()
	log.Open("gen1")
	tx := &fakeTransmitter{}
	sink := NewDedupSink(log, tx, 1<<30)

	var addr address.Address
	addr[0] = 1

	if err := log.AddAddress(addr); err != nil {
		t.Fatal(err)
	}
	if err := log.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	if err := sink.AddChunk(addr, []byte("data")); err != nil {
		t.Fatal(err)
	}
	if len(tx.sent) != 0 {
		t.Fatalf("expected cached address to be skipped, got %d sends", len(tx.sent))
	}
}

func TestDedupSinkTransmitsUncachedAddress(t *testing.T) {
	log := memlog.New()
	log.Open("gen1")
	tx := &fakeTransmitter{}
	sink := NewDedupSink(log, tx, 1<<30)

	var addr address.Address
	addr[0] = 2

	if err := sink.AddChunk(addr, []byte("data")); err != nil {
		t.Fatal(err)
	}
	if len(tx.sent) != 1 || tx.sent[0] != addr {
		t.Fatalf("expected one transmission of %v, got %v", addr, tx.sent)
	}
}

func TestDedupSinkCheckpointsAtThreshold(t *testing.T) {
	log := memlog.New()
	log.Open("gen1")
	tx := &fakeTransmitter{}
	sink := NewDedupSink(log, tx, 4)

	var addr address.Address
	addr[0] = 3
	if err := sink.AddChunk(addr, []byte("data")); err != nil {
		t.Fatal(err)
	}
	if tx.syncs != 1 {
		t.Fatalf("expected a sync barrier once dirty bytes crossed threshold, got %d", tx.syncs)
	}

	hit, err := log.CachedAddress(addr)
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Fatalf("expected address committed after checkpoint")
	}
}
