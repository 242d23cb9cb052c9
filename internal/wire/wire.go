// Package wire implements the C10 wire protocol: length-prefixed
// packets (u32 little-endian length + type byte + payload) exchanged
// between send/receive clients and the repository server.
//
// Payloads are JSON-encoded self-describing records. The source this
// was ported from uses a BARE binary encoding; no BARE library is
// available in this module's dependency set, so payload encoding
// follows the teacher's own control-stream framing (length + type +
// json.Marshal'd body) instead, while the outer frame shape (length
// field position, endianness, max-size enforcement) follows spec §6.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/quantarax/vaultbridge/internal/vaulterr"
)

// MaxPacketSize bounds a single packet's payload, guarding the reader
// against a hostile or corrupt length field.
const MaxPacketSize = 64 * 1024 * 1024

// Type identifies a packet's payload shape.
type Type uint8

const (
	TypeTOpenRepository Type = iota + 1
	TypeROpenRepository
	TypeTInitRepository
	TypeRInitRepository
	TypeTBeginSend
	TypeRBeginSend
	TypeChunk
	TypeTSendSync
	TypeRSendSync
	TypeTAddItem
	TypeRAddItem
	TypeTRequestData
	TypeRRequestData
	TypeTRequestIndex
	TypeRRequestIndex
	TypeTRmItems
	TypeRRmItems
	TypeTGc
	TypeRGc
	TypeProgress
	TypeTRestoreRemoved
	TypeRRestoreRemoved
	TypeTRequestItemSync
	TypeRRequestItemSync
	TypeSyncLogOps
	TypeEndOfTransmission
)

// WritePacket frames typ/payload onto w: u32 little-endian length
// (of the JSON-encoded payload), the type byte, then the payload.
func WritePacket(w io.Writer, typ Type, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wire: marshal payload: %w", err)
	}
	if len(body) > MaxPacketSize {
		return fmt.Errorf("wire: payload too large: %d bytes", len(body))
	}

	var header [5]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(body)))
	header[4] = byte(typ)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadPacket reads one frame from r and returns its type and raw JSON
// payload. Callers unmarshal the payload into the struct their
// expected Type implies.
func ReadPacket(r io.Reader) (Type, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	length := binary.LittleEndian.Uint32(header[:4])
	if length > MaxPacketSize {
		return 0, nil, fmt.Errorf("%w: packet length %d exceeds maximum", vaulterr.ErrProtocol, length)
	}
	typ := Type(header[4])

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("wire: read payload: %w", err)
	}
	return typ, body, nil
}

// Decode unmarshals a packet payload previously returned by
// ReadPacket into dst.
func Decode(payload []byte, dst interface{}) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", vaulterr.ErrProtocol, err)
	}
	return nil
}

// ExpectType returns vaulterr.ErrProtocol if got != want.
func ExpectType(got, want Type) error {
	if got != want {
		return fmt.Errorf("%w: expected packet type %d, got %d", vaulterr.ErrProtocol, want, got)
	}
	return nil
}

// Conn adapts any io.ReadWriter (a net.Pipe half, a local Unix socket,
// a QUIC stream) to the WritePacket/ReadPacket duplex shape the send,
// receive, and repo packages all drive their sessions through.
type Conn struct {
	rw io.ReadWriter
}

// NewConn wraps rw as a packet connection.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw}
}

func (c *Conn) WritePacket(typ Type, payload interface{}) error {
	return WritePacket(c.rw, typ, payload)
}

func (c *Conn) ReadPacket() (Type, []byte, error) {
	return ReadPacket(c.rw)
}
