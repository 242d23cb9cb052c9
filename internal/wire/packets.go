package wire

import "github.com/quantarax/vaultbridge/internal/xid"

// TOpenRepository is the first packet a client sends. ClientUnixSeconds
// lets the server perform the clock-skew check (spec §5, "Clock skew")
// before any other state is touched.
type TOpenRepository struct {
	ProtocolVersion   string
	LockHint          string
	ClientUnixSeconds int64
}

// ROpenRepository carries the server's clock and the gc_generation it
// is currently operating under.
type ROpenRepository struct {
	ServerUnixSeconds int64
	GCGeneration      string
}

type TInitRepository struct {
	StorageEngineSpec string `json:",omitempty"`
}

type RInitRepository struct{}

type TBeginSend struct {
	DeltaID *xid.ID `json:",omitempty"`
}

type RBeginSend struct {
	GCGeneration string
	HasDeltaID   bool
}

// Chunk carries one content-addressed ciphertext chunk, in either
// direction.
type Chunk struct {
	Address [32]byte
	Data    []byte
}

type TSendSync struct{}

type RSendSync struct{}

// TAddItem commits a new item; the server assigns its xid.
type TAddItem struct {
	GCGeneration string
	ItemMetadata []byte
}

type RAddItem struct {
	ItemID xid.ID
}

// DataRange is a half-open [Start, End) byte range within a ranged
// retrieval request.
type DataRange struct {
	Start uint64
	End   uint64
}

type TRequestData struct {
	ItemID xid.ID
	Ranges []DataRange `json:",omitempty"`
}

type RRequestData struct {
	Metadata []byte `json:",omitempty"`
}

type TRequestIndex struct {
	ItemID xid.ID
}

type RRequestIndex struct {
	IndexData []byte
}

// TRmItems removes at most 4096 items per message (spec §6).
type TRmItems struct {
	ItemIDs []xid.ID
}

type RRmItems struct {
	Removed int
}

type TGc struct{}

// GCStats summarizes one GC sweep.
type GCStats struct {
	ChunksConsidered int64
	ChunksFreed      int64
	BytesFreed       int64
}

type RGc struct {
	Stats GCStats
}

// ProgressKind distinguishes the two Progress payload shapes.
type ProgressKind uint8

const (
	ProgressNotice ProgressKind = iota
	ProgressSetMessage
)

type Progress struct {
	Kind    ProgressKind
	Message string
}

type TRestoreRemoved struct{}

type RRestoreRemoved struct {
	NRestored int
}

type TRequestItemSync struct {
	AfterOpID    int64
	GCGeneration string
}

type RRequestItemSync struct{}

// LogOp names an item log operation applied since AfterOpID.
type LogOp string

const (
	LogOpAddItem    LogOp = "add_item"
	LogOpRemoveItem LogOp = "remove_item"
)

// SyncLogEntry is one entry in a SyncLogOps stream; an empty slice in
// the final SyncLogOps message terminates the stream.
type SyncLogEntry struct {
	OpID   int64
	ItemID xid.ID
	Op     LogOp
}

type SyncLogOps struct {
	Entries []SyncLogEntry
}

type EndOfTransmission struct{}
