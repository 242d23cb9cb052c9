package send

import (
	"io"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cryptobox"
	"github.com/quantarax/vaultbridge/internal/sendlog"
)

// Fixed chunker/tree parameters for the data stream (spec §4.8 step 3).
const (
	DataChunkMinSize = 256 * 1024
	DataChunkMaxSize = 8 * 1024 * 1024
	DataChunkMask    = 0x000f_ffff
)

// SendContext carries everything one send attempt needs that is not
// specific to a single chunk: the hash key driving content addresses,
// the encryption context(s) chunks are sealed under, the compression
// mode, the checkpoint threshold, and whether stat-cache shortcuts are
// permitted.
type SendContext struct {
	HashKeyPart1     address.PartialHashKey
	Ectxs            []*cryptobox.EncryptionContext
	Compression      cryptobox.Compression
	CheckpointBytes  uint64
	UseStatCache     bool
}

// SourceKind selects which concrete shape a DataSource carries.
type SourceKind int

const (
	SourceSubprocess SourceKind = iota
	SourceReadable
	SourceDirectory
)

// DataSource is the send pipeline's input: a subprocess's stdout, an
// arbitrary io.Reader, or a directory tree (spec §4.8).
type DataSource struct {
	Kind SourceKind

	// SourceSubprocess
	Argv []string

	// SourceReadable
	Reader io.Reader

	// SourceDirectory
	Path       string
	Exclusions []string
}

// Tags are the free-form, encrypted-metadata key/value pairs attached
// to an item at commit time.
type Tags map[string]string

// Attempt bundles the mutable state of one send attempt (spec §4.8's
// "up to 256 retries" state machine): the send-log session and the
// dedup/transmit sink built around it.
type Attempt struct {
	Ctx     *SendContext
	Log     sendlog.Log
	Sink    *DedupSink
	DataTree *TreeBuilder
}
