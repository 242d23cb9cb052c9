package transport

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/quantarax/vaultbridge/internal/wire"
)

func TestOpenLocalServesOpenRepository(t *testing.T) {
	conn, closer, err := OpenLocal(filepath.Join(t.TempDir(), "repo.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	if err := conn.WritePacket(wire.TypeTOpenRepository, wire.TOpenRepository{
		ClientUnixSeconds: time.Now().Unix(),
	}); err != nil {
		t.Fatal(err)
	}

	typ, payload, err := conn.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if typ != wire.TypeROpenRepository {
		t.Fatalf("unexpected packet type: %d", typ)
	}
	var resp wire.ROpenRepository
	if err := wire.Decode(payload, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.GCGeneration == "" {
		t.Fatalf("expected a gc_generation to be reported")
	}
}
