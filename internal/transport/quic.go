// Package transport provides the QUIC-backed session transport (C13):
// a single bidirectional stream per session carrying the C10 wire
// framing, adapted from the teacher's quic_connection.go dial/listen
// idiom but collapsed to the one-stream-per-session shape this
// protocol uses instead of the teacher's control+chunk stream split.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/quantarax/vaultbridge/internal/wire"
)

// quicConfig mirrors the teacher's connection tuning: generous
// receive windows sized for the bulk chunk traffic a send/receive
// session produces, and a keepalive well inside most NAT/firewall
// idle timeouts.
var quicConfig = &quic.Config{
	KeepAlivePeriod:                10_000_000_000, // 10s
	MaxIdleTimeout:                 60_000_000_000, // 60s
	InitialStreamReceiveWindow:     8 << 20,        // 8 MiB
	InitialConnectionReceiveWindow: 128 << 20,       // 128 MiB
}

// StreamConn adapts a single QUIC stream to wire.WritePacket/ReadPacket,
// satisfying both send.PacketConn and repo.Conn.
type StreamConn struct {
	stream *quic.Stream
	conn   *quic.Conn
}

// WritePacket frames typ/payload onto the underlying stream.
func (c *StreamConn) WritePacket(typ wire.Type, payload interface{}) error {
	return wire.WritePacket(c.stream, typ, payload)
}

// ReadPacket reads one frame from the underlying stream.
func (c *StreamConn) ReadPacket() (wire.Type, []byte, error) {
	return wire.ReadPacket(c.stream)
}

// Close closes the session's stream and its parent connection.
func (c *StreamConn) Close() error {
	if err := c.stream.Close(); err != nil {
		return err
	}
	return c.conn.CloseWithError(0, "session closed")
}

// RemoteAddr returns the peer's network address.
func (c *StreamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Dial establishes a QUIC connection to addr and opens the session's
// single bidirectional stream.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config) (*StreamConn, error) {
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "open stream failed")
		return nil, fmt.Errorf("transport: open stream: %w", err)
	}

	return &StreamConn{stream: stream, conn: conn}, nil
}

// Listener wraps a QUIC listener, accepting one StreamConn per
// incoming connection.
type Listener struct {
	listener *quic.Listener
}

// Listen binds a QUIC listener at addr.
func Listen(addr string, tlsConfig *tls.Config) (*Listener, error) {
	listener, err := quic.ListenAddr(addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{listener: listener}, nil
}

// Accept waits for the next connection and its session stream.
func (l *Listener) Accept(ctx context.Context) (*StreamConn, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "accept stream failed")
		return nil, fmt.Errorf("transport: accept stream: %w", err)
	}

	return &StreamConn{stream: stream, conn: conn}, nil
}

// Close closes the listener.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Addr returns the listener's bound network address.
func (l *Listener) Addr() string {
	return l.listener.Addr().String()
}
