package send

import (
	"time"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cryptobox"
)

// TreeHead identifies one HTree root: its height and root address.
type TreeHead struct {
	Height  int
	Address address.Address
}

// PlaintextItemMetadata is the item metadata's server-visible part: it
// references trees by (height, address) and the primary key id, but
// carries nothing that would let the server fingerprint content.
type PlaintextItemMetadata struct {
	PrimaryKeyID string
	DataTree     TreeHead
	IndexTree    *TreeHead `json:",omitempty"`
}

// EncryptedItemMetadata is sealed under the recipient's box key before
// being attached to TAddItem; it never reaches the server in the
// clear.
type EncryptedItemMetadata struct {
	Tags                 map[string]string
	Timestamp            time.Time
	SendKeyID            string
	HashKeyPart2         address.PartialHashKey
	PlaintextMetadataHash [32]byte

	// IntegrityDigest is a streaming BLAKE3 digest of the plaintext
	// data stream, independent of the keyed content-address scheme
	// (C17): a receiver-side corruption check on top of per-chunk
	// verification, not used for addressing or deduplication.
	IntegrityDigest [32]byte
}

// ItemMetadata is the full metadata bundle built at the end of a send
// (spec §4.8 step 9): the plaintext half travels with TAddItem as-is;
// the encrypted half is sealed via ec before transmission.
type ItemMetadata struct {
	Plaintext PlaintextItemMetadata
	Encrypted EncryptedItemMetadata
}

// Seal encrypts the encrypted half of md for transmission, returning
// bytes suitable for the TAddItem.ItemMetadata field alongside the
// plaintext half (callers typically json.Marshal Plaintext and
// concatenate, or transmit the two halves in separate fields — this
// core only fixes the crypto boundary, not the outer envelope).
func (md *ItemMetadata) Seal(ec *cryptobox.EncryptionContext, encodedEncrypted []byte) ([]byte, error) {
	return ec.EncryptData(encodedEncrypted, cryptobox.CompressionNone)
}
