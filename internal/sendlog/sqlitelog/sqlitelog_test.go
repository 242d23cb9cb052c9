package sqlitelog

import (
	"path/filepath"
	"testing"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/sendlog"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	dir := t.TempDir()
	l, err := New(filepath.Join(dir, "sendlog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestCachedAddressRequiresCheckpoint(t *testing.T) {
	l := openTestLog(t)
	if _, err := l.Open("gen1"); err != nil {
		t.Fatal(err)
	}

	var addr address.Address
	addr[0] = 1

	if err := l.AddAddress(addr); err != nil {
		t.Fatal(err)
	}
	hit, err := l.CachedAddress(addr)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Fatalf("address should not be cached before Checkpoint")
	}

	if err := l.Checkpoint(); err != nil {
		t.Fatal(err)
	}
	hit, err = l.CachedAddress(addr)
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Fatalf("address should be cached after Checkpoint")
	}
}

func TestCommitPromotesPendingAndPersists(t *testing.T) {
	l := openTestLog(t)
	l.Open("gen1")

	var addr address.Address
	addr[0] = 2
	if err := l.AddAddress(addr); err != nil {
		t.Fatal(err)
	}
	if err := l.Commit("item-1"); err != nil {
		t.Fatal(err)
	}
	hit, err := l.CachedAddress(addr)
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Fatalf("commit should promote pending addresses")
	}
	if err := l.Commit(""); err == nil {
		t.Fatalf("expected error committing with empty item id")
	}
}

func TestStatCacheRoundTrip(t *testing.T) {
	l := openTestLog(t)
	l.Open("gen1")

	var dirHash [32]byte
	dirHash[0] = 7
	entry := sendlog.StatCacheEntry{
		Size:            1234,
		PackedAddresses: []address.Address{{1}, {2}, {3}},
		SerializedIndex: []byte("serialized-index-bytes"),
	}
	if err := l.AddStatCacheData(dirHash, entry); err != nil {
		t.Fatal(err)
	}

	got, ok, err := l.StatCacheLookup(dirHash)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected stat cache hit")
	}
	if got.Size != 1234 || len(got.PackedAddresses) != 3 {
		t.Fatalf("unexpected stat cache entry: %+v", got)
	}

	var missHash [32]byte
	missHash[0] = 99
	_, ok, err = l.StatCacheLookup(missHash)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected stat cache miss for unknown hash")
	}
}

func TestPerformCacheInvalidationsDropsWithoutDeltaID(t *testing.T) {
	l := openTestLog(t)
	l.Open("gen1")

	var addr address.Address
	addr[0] = 3
	l.AddAddress(addr)
	l.Checkpoint()

	if err := l.PerformCacheInvalidations(false); err != nil {
		t.Fatal(err)
	}
	hit, _ := l.CachedAddress(addr)
	if hit {
		t.Fatalf("cache should be dropped when hasDeltaID is false")
	}
}

func TestPerformCacheInvalidationsRetainsWithDeltaID(t *testing.T) {
	l := openTestLog(t)
	l.Open("gen1")

	var addr address.Address
	addr[0] = 4
	l.AddAddress(addr)
	l.Checkpoint()

	if err := l.PerformCacheInvalidations(true); err != nil {
		t.Fatal(err)
	}
	hit, _ := l.CachedAddress(addr)
	if !hit {
		t.Fatalf("cache should be retained when hasDeltaID is true")
	}
}
