package transport

import (
	"fmt"
	"io"
	"net"

	"github.com/quantarax/vaultbridge/internal/cas/boltstore"
	"github.com/quantarax/vaultbridge/internal/repo"
	"github.com/quantarax/vaultbridge/internal/wire"
)

// OpenLocal opens (or creates) a bolt-backed repository at dbPath and
// hands back a packet connection to it, with repo.Server driven over
// an in-memory pipe by a background goroutine. This is the "file://"
// repository URL scheme (spec §6): no network transport is needed
// when the client and repository share a filesystem.
func OpenLocal(dbPath string) (*wire.Conn, io.Closer, error) {
	store, err := boltstore.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: open local repository %s: %w", dbPath, err)
	}
	server := repo.NewServer(store)

	clientSide, serverSide := net.Pipe()
	go func() {
		_ = server.Serve(wire.NewConn(serverSide))
		serverSide.Close()
	}()

	conn := wire.NewConn(clientSide)
	closer := closerFunc(func() error {
		clientSide.Close()
		return server.Close()
	})
	return conn, closer, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
