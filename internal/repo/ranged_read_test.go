package repo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cas"
	"github.com/quantarax/vaultbridge/internal/cas/memstore"
	"github.com/quantarax/vaultbridge/internal/cryptobox"
	"github.com/quantarax/vaultbridge/internal/htree"
	"github.com/quantarax/vaultbridge/internal/receive"
	"github.com/quantarax/vaultbridge/internal/send"
	"github.com/quantarax/vaultbridge/internal/wire"
)

// storeSink adapts a cas.Store to htree.Sink, letting a test build a
// tree's chunks directly into a repository's store without going
// through TreeBuilder/DedupSink.
type storeSink struct{ store cas.Store }

func (s storeSink) AddChunk(addr address.Address, data []byte) error {
	return s.store.Put(addr, data)
}

func (s storeSink) GetChunk(addr address.Address) ([]byte, error) {
	return s.store.Get(addr)
}

// pickConn drives a repo.Server in-process, mirroring the real
// TypeTRequestData dispatch in Serve without going through a real
// transport: WritePacket intercepts TRequestData and calls the
// server's actual streamItemChunks/streamTree, so the range-filtering
// logic under test is the production code path, not a re-implementation
// of it.
type pickConn struct {
	s        *Server
	queue    []wire.Type
	payloads [][]byte
}

func (c *pickConn) WritePacket(typ wire.Type, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if typ == wire.TypeTRequestData {
		var req wire.TRequestData
		if err := json.Unmarshal(body, &req); err != nil {
			return err
		}
		md := c.s.RequestData(req.ItemID)
		c.enqueue(wire.TypeRRequestData, wire.RRequestData{Metadata: md})
		if md == nil {
			return nil
		}
		return c.s.streamItemChunks(c, md, req.Ranges)
	}
	c.queue = append(c.queue, typ)
	c.payloads = append(c.payloads, body)
	return nil
}

func (c *pickConn) enqueue(typ wire.Type, payload interface{}) {
	body, _ := json.Marshal(payload)
	c.queue = append(c.queue, typ)
	c.payloads = append(c.payloads, body)
}

func (c *pickConn) ReadPacket() (wire.Type, []byte, error) {
	if len(c.queue) == 0 {
		return 0, nil, fmt.Errorf("pickConn: read past end of queue")
	}
	typ := c.queue[0]
	payload := c.payloads[0]
	c.queue = c.queue[1:]
	c.payloads = c.payloads[1:]
	return typ, payload, nil
}

// TestRequestDataStreamRangedPick builds an 8-leaf, multi-level tree
// directly (via MinimumAddrChunkSize, forcing a split every 2
// addresses) and requests leaves [5..=7]. Only those leaves' chunks
// should be fetched from the store and exchanged over the wire; every
// internal node is still exchanged since the client needs them to
// navigate to the wanted leaves (spec §4.9 "Ranged read").
func TestRequestDataStreamRangedPick(t *testing.T) {
	store := memstore.New()
	s := NewServer(store)

	recipientPK, recipientSK, err := cryptobox.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	psk, err := cryptobox.NewPreSharedKey()
	if err != nil {
		t.Fatal(err)
	}
	ec, err := cryptobox.NewEncryptionContext(recipientPK, psk)
	if err != nil {
		t.Fatal(err)
	}
	dc := cryptobox.NewDecryptionContext(recipientSK, psk)

	hashKeyPart1, err := address.NewPartialHashKey()
	if err != nil {
		t.Fatal(err)
	}
	hashKeyPart2, err := address.NewPartialHashKey()
	if err != nil {
		t.Fatal(err)
	}
	hashKey, err := address.DeriveHashKey(hashKeyPart1, hashKeyPart2)
	if err != nil {
		t.Fatal(err)
	}

	const leafCount = 8
	tw := htree.NewWriter(htree.MinimumAddrChunkSize, 0xffffffff)
	sink := storeSink{store: store}

	var plaintexts [][]byte
	for i := 0; i < leafCount; i++ {
		pt := []byte(fmt.Sprintf("leaf-plaintext-%02d-xxxxxxxx", i))
		plaintexts = append(plaintexts, pt)

		addr, err := address.KeyedContentAddress(pt, &hashKey)
		if err != nil {
			t.Fatal(err)
		}
		ct, err := ec.EncryptData(pt, cryptobox.CompressionNone)
		if err != nil {
			t.Fatal(err)
		}
		if err := tw.Add(sink, addr, ct); err != nil {
			t.Fatal(err)
		}
	}
	height, root, err := tw.Finish(sink)
	if err != nil {
		t.Fatal(err)
	}
	if height < 2 {
		t.Fatalf("expected a multi-level tree (height >= 2) to exercise internal-node navigation, got height %d", height)
	}

	dataTree := send.TreeHead{Height: height, Address: root}
	plain := send.PlaintextItemMetadata{PrimaryKeyID: "k", DataTree: dataTree}
	plainBytes, err := json.Marshal(plain)
	if err != nil {
		t.Fatal(err)
	}

	enc := send.EncryptedItemMetadata{HashKeyPart2: hashKeyPart2}
	encBytes, err := json.Marshal(enc)
	if err != nil {
		t.Fatal(err)
	}
	sealedEnc, err := ec.EncryptData(encBytes, cryptobox.CompressionNone)
	if err != nil {
		t.Fatal(err)
	}

	env := itemEnvelope{Plaintext: plainBytes, Encrypted: sealedEnc}
	envBytes, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	itemID := s.AddItem(envBytes)

	// Count how many distinct leaf chunks actually leave the store
	// during the ranged request, by diffing store.Get calls is not
	// directly observable here, so instead assert on the reconstructed
	// output: only leaves 5, 6, 7 should appear, in order.
	conn := &pickConn{s: s}
	pick := &receive.PickMap{
		DataChunkRanges: []receive.IdxRange{{StartIdx: 5, EndIdx: 8}},
	}

	var out bytes.Buffer
	n, err := receive.RequestDataStream(conn, itemID, pick, hashKeyPart1, dc, "k", &out)
	if err != nil {
		t.Fatal(err)
	}

	want := bytes.Join(plaintexts[5:8], nil)
	if n != uint64(len(want)) {
		t.Fatalf("emitted %d bytes, want %d", n, len(want))
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("ranged retrieval did not return exactly leaves 5..7:\ngot:  %q\nwant: %q", out.Bytes(), want)
	}
}
