package htree

import (
	"github.com/quantarax/vaultbridge/internal/address"
)

// memChunks satisfies both Sink and Source, mirroring the source this was
// ported from using a plain HashMap<Address, Vec<u8>> for the same role.
type memChunks map[address.Address][]byte

func (m memChunks) AddChunk(addr address.Address, data []byte) error {
	cp := append([]byte(nil), data...)
	m[addr] = cp
	return nil
}

func (m memChunks) GetChunk(addr address.Address) ([]byte, error) {
	data, ok := m[addr]
	if !ok {
		return nil, errNotFound
	}
	return data, nil
}

var errNotFound = chunkNotFoundErr{}

type chunkNotFoundErr struct{}

func (chunkNotFoundErr) Error() string { return "htree: chunk not found" }

func addrOf(b byte) address.Address {
	var a address.Address
	for i := range a {
		a[i] = b
	}
	return a
}
