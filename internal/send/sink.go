package send

import (
	"fmt"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/htree"
	"github.com/quantarax/vaultbridge/internal/sendlog"
	"github.com/quantarax/vaultbridge/internal/wire"
)

// Transmitter is the narrow subset of a session connection the sink
// needs: enough to emit Chunk packets and wait for the TSendSync
// barrier (spec §4.8 step 6, §5 ordering guarantees).
type Transmitter interface {
	SendChunk(addr address.Address, ciphertext []byte) error
	SendSync() error
}

// DedupSink implements htree.Sink: for every chunk the tree writer
// emits, it first consults the send-log's address cache. A hit means
// the server is already known to hold the chunk, so only the address
// is recorded — the ciphertext is never retransmitted. A miss
// transmits the chunk and accumulates dirty_bytes; once dirty_bytes
// crosses CheckpointBytes, it drives the TSendSync barrier and
// checkpoints the send-log (spec §4.8 step 6, §5).
type DedupSink struct {
	log             sendlog.Log
	tx              Transmitter
	checkpointBytes uint64
	dirtyBytes      uint64
}

func NewDedupSink(log sendlog.Log, tx Transmitter, checkpointBytes uint64) *DedupSink {
	return &DedupSink{log: log, tx: tx, checkpointBytes: checkpointBytes}
}

func (s *DedupSink) AddChunk(addr address.Address, data []byte) error {
	hit, err := s.log.CachedAddress(addr)
	if err != nil {
		return fmt.Errorf("send: consult address cache: %w", err)
	}

	if !hit {
		if err := s.tx.SendChunk(addr, data); err != nil {
			return fmt.Errorf("send: transmit chunk: %w", err)
		}
		s.dirtyBytes += uint64(len(data))
	}

	if err := s.log.AddAddress(addr); err != nil {
		return fmt.Errorf("send: record address: %w", err)
	}

	if s.dirtyBytes >= s.checkpointBytes {
		if err := s.checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

func (s *DedupSink) checkpoint() error {
	if err := s.tx.SendSync(); err != nil {
		return fmt.Errorf("send: sync barrier: %w", err)
	}
	if err := s.log.Checkpoint(); err != nil {
		return fmt.Errorf("send: checkpoint send-log: %w", err)
	}
	s.dirtyBytes = 0
	return nil
}

// Flush forces a checkpoint regardless of accumulated dirty bytes;
// Send calls it once the data and index trees of an attempt are built.
func (s *DedupSink) Flush() error {
	return s.checkpoint()
}

var _ htree.Sink = (*DedupSink)(nil)

// wireTransmitter adapts a raw packet stream (as framed by package
// wire) to the Transmitter interface the sink needs.
type wireTransmitter struct {
	conn PacketConn
}

// PacketConn is the minimal duplex packet interface a session
// transport must provide.
type PacketConn interface {
	WritePacket(typ wire.Type, payload interface{}) error
	ReadPacket() (wire.Type, []byte, error)
}

func NewWireTransmitter(conn PacketConn) Transmitter {
	return &wireTransmitter{conn: conn}
}

func (t *wireTransmitter) SendChunk(addr address.Address, ciphertext []byte) error {
	return t.conn.WritePacket(wire.TypeChunk, wire.Chunk{Address: addr, Data: ciphertext})
}

func (t *wireTransmitter) SendSync() error {
	if err := t.conn.WritePacket(wire.TypeTSendSync, wire.TSendSync{}); err != nil {
		return err
	}
	typ, payload, err := t.conn.ReadPacket()
	if err != nil {
		return err
	}
	if err := wire.ExpectType(typ, wire.TypeRSendSync); err != nil {
		return err
	}
	var resp wire.RSendSync
	return wire.Decode(payload, &resp)
}
