package repo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cas/memstore"
	"github.com/quantarax/vaultbridge/internal/send"
	"github.com/quantarax/vaultbridge/internal/wire"
	"github.com/quantarax/vaultbridge/internal/xid"
)

func buildPlaintextMetadata(t *testing.T, dataLeaf address.Address) []byte {
	t.Helper()
	plain := send.PlaintextItemMetadata{
		PrimaryKeyID: "k",
		DataTree:     send.TreeHead{Height: 0, Address: dataLeaf},
	}
	plainBytes, err := json.Marshal(plain)
	if err != nil {
		t.Fatal(err)
	}
	env := struct {
		Plaintext json.RawMessage
		Encrypted []byte
	}{Plaintext: plainBytes, Encrypted: nil}
	envBytes, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return envBytes
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(memstore.New())
}

func TestOpenRepositoryAcceptsCloseClocks(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.OpenRepository(wire.TOpenRepository{ClientUnixSeconds: time.Now().Unix()})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GCGeneration == "" {
		t.Fatalf("expected a gc_generation to be reported")
	}
}

func TestOpenRepositoryRejectsSkewedClock(t *testing.T) {
	s := newTestServer(t)
	skewed := time.Now().Add(-1 * time.Hour).Unix()
	if _, err := s.OpenRepository(wire.TOpenRepository{ClientUnixSeconds: skewed}); err == nil {
		t.Fatalf("expected clock skew rejection")
	}
}

func TestAddItemThenRequestData(t *testing.T) {
	s := newTestServer(t)
	id := s.AddItem([]byte(`{"Plaintext":{},"Encrypted":null}`))
	if id == (xid.ID{}) {
		t.Fatalf("expected a non-nil item id")
	}

	md := s.RequestData(id)
	if md == nil {
		t.Fatalf("expected metadata for a live item")
	}

	unknown := s.RequestData(xid.New())
	if unknown != nil {
		t.Fatalf("expected nil metadata for an unknown item")
	}
}

func TestRmItemsThenRestoreRemoved(t *testing.T) {
	s := newTestServer(t)
	id := s.AddItem([]byte(`{"Plaintext":{},"Encrypted":null}`))

	if n := s.RmItems([]xid.ID{id}); n != 1 {
		t.Fatalf("expected 1 item removed, got %d", n)
	}
	if md := s.RequestData(id); md != nil {
		t.Fatalf("expected removed item to be invisible to RequestData")
	}

	if n := s.RestoreRemoved(); n != 1 {
		t.Fatalf("expected 1 item restored, got %d", n)
	}
	if md := s.RequestData(id); md == nil {
		t.Fatalf("expected restored item to be visible again")
	}
}

func TestOpsSinceOrdering(t *testing.T) {
	s := newTestServer(t)
	id1 := s.AddItem([]byte(`{}`))
	id2 := s.AddItem([]byte(`{}`))
	s.RmItems([]xid.ID{id1})

	ops := s.OpsSince(0)
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(ops))
	}
	if ops[0].ItemID != id1 || ops[0].Op != wire.LogOpAddItem {
		t.Fatalf("unexpected first op: %+v", ops[0])
	}
	if ops[1].ItemID != id2 {
		t.Fatalf("unexpected second op: %+v", ops[1])
	}
	if ops[2].ItemID != id1 || ops[2].Op != wire.LogOpRemoveItem {
		t.Fatalf("unexpected third op: %+v", ops[2])
	}

	if partial := s.OpsSince(ops[0].OpID); len(partial) != 2 {
		t.Fatalf("expected 2 ops after the first, got %d", len(partial))
	}
}

func TestGCSweepsUnreachableChunks(t *testing.T) {
	store := memstore.New()
	s := NewServer(store)

	var leafAddr, orphanAddr address.Address
	leafAddr[0] = 1
	orphanAddr[0] = 3

	if err := store.Put(leafAddr, []byte("leaf")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(orphanAddr, []byte("orphan")); err != nil {
		t.Fatal(err)
	}

	plainJSON := buildPlaintextMetadata(t, leafAddr)
	s.AddItem(plainJSON)

	stats, err := s.GC(nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ChunksFreed != 1 {
		t.Fatalf("expected exactly 1 chunk freed, got %d (%+v)", stats.ChunksFreed, stats)
	}

	if _, err := store.Get(leafAddr); err != nil {
		t.Fatalf("expected reachable leaf to survive GC: %v", err)
	}
	if _, err := store.Get(orphanAddr); err == nil {
		t.Fatalf("expected orphaned chunk to be swept")
	}
}
