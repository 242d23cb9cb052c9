package receive

import (
	"encoding/json"
	"fmt"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cryptobox"
	"github.com/quantarax/vaultbridge/internal/send"
)

// itemMetadataEnvelope mirrors the shape send.Send builds: a plaintext
// half transmitted verbatim and an encrypted half sealed under the
// recipient's box key.
type itemMetadataEnvelope struct {
	Plaintext json.RawMessage
	Encrypted []byte
}

// decodeItemMetadata verifies the plaintext half's primary key id,
// decrypts the encrypted half, and derives the hash key from
// hashKeyPart1 (local) and the embedded part2 (spec §4.9 step 2). The
// encrypted half is also returned so the caller can check the C17
// integrity digest once the full stream has been retrieved.
func decodeItemMetadata(raw []byte, hashKeyPart1 address.PartialHashKey, dc *cryptobox.DecryptionContext, expectedPrimaryKeyID string) (send.PlaintextItemMetadata, send.EncryptedItemMetadata, address.HashKey, error) {
	var env itemMetadataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return send.PlaintextItemMetadata{}, send.EncryptedItemMetadata{}, address.HashKey{}, fmt.Errorf("receive: decode item metadata envelope: %w", err)
	}

	var plain send.PlaintextItemMetadata
	if err := json.Unmarshal(env.Plaintext, &plain); err != nil {
		return send.PlaintextItemMetadata{}, send.EncryptedItemMetadata{}, address.HashKey{}, fmt.Errorf("receive: decode plaintext metadata: %w", err)
	}
	if plain.PrimaryKeyID != expectedPrimaryKeyID {
		return send.PlaintextItemMetadata{}, send.EncryptedItemMetadata{}, address.HashKey{}, fmt.Errorf("receive: primary key id mismatch: got %q, want %q", plain.PrimaryKeyID, expectedPrimaryKeyID)
	}

	encBytes, err := dc.DecryptData(env.Encrypted)
	if err != nil {
		return send.PlaintextItemMetadata{}, send.EncryptedItemMetadata{}, address.HashKey{}, fmt.Errorf("receive: decrypt item metadata: %w", err)
	}
	var enc send.EncryptedItemMetadata
	if err := json.Unmarshal(encBytes, &enc); err != nil {
		return send.PlaintextItemMetadata{}, send.EncryptedItemMetadata{}, address.HashKey{}, fmt.Errorf("receive: decode encrypted metadata: %w", err)
	}

	hashKey, err := address.DeriveHashKey(hashKeyPart1, enc.HashKeyPart2)
	if err != nil {
		return send.PlaintextItemMetadata{}, send.EncryptedItemMetadata{}, address.HashKey{}, err
	}
	return plain, enc, hashKey, nil
}
