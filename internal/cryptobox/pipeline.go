// Package cryptobox implements the per-chunk authenticated box-encryption
// pipeline (C4): curve25519 + xchacha20-poly1305 in encryption-to-
// public-key form, mixed with a pre-shared key, plus optional zstd
// compression and the footer scheme of spec §4.3.
//
// Ciphertext layout: nonce(24B) ‖ ciphertext+MAC ‖ ephemeral_pk(32B).
package cryptobox

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/quantarax/vaultbridge/internal/vaulterr"
)

var errCorrupt = vaulterr.ErrCorruptData

// EncryptionContext encrypts a stream of chunks to one recipient. A
// single ephemeral keypair is generated once per context and its public
// half is appended to every chunk so the receiver can (re)derive the box
// key lazily and cache it across chunks sharing the same ephemeral_pk.
type EncryptionContext struct {
	nonce       Nonce
	ephemeralPK PublicKey
	ephemeralBK BoxKey
}

// NewEncryptionContext creates a context that encrypts to recipient,
// mixing in psk per ComputeKey.
func NewEncryptionContext(recipient PublicKey, psk PreSharedKey) (*EncryptionContext, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	ephemeralPK, ephemeralSK, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}
	bk, err := ComputeKey(recipient, ephemeralSK, psk)
	if err != nil {
		return nil, err
	}
	ephemeralSK.Wipe()
	return &EncryptionContext{nonce: nonce, ephemeralPK: ephemeralPK, ephemeralBK: bk}, nil
}

// EncryptData compresses (if requested), encrypts, and frames pt into the
// on-wire ciphertext layout. pt is consumed; callers must not reuse it.
func (ec *EncryptionContext) EncryptData(pt []byte, compression Compression) ([]byte, error) {
	footed := appendFooter(pt, compression)

	aead, err := chacha20poly1305.NewX(ec.ephemeralBK[:])
	if err != nil {
		return nil, fmt.Errorf("construct aead: %w", err)
	}

	out := make([]byte, 0, NonceSize+len(footed)+aead.Overhead()+PublicKeySize)
	out = append(out, ec.nonce[:]...)
	out = aead.Seal(out, ec.nonce[:], footed, nil)
	out = append(out, ec.ephemeralPK[:]...)

	ec.nonce.Inc()
	return out, nil
}

// DecryptionContext decrypts a stream of chunks addressed to one
// recipient, caching the derived box key across chunks that share an
// ephemeral_pk.
type DecryptionContext struct {
	sk          SecretKey
	psk         PreSharedKey
	ephemeralPK PublicKey
	ephemeralBK BoxKey
	haveKey     bool
}

// NewDecryptionContext creates a context that decrypts chunks addressed
// to (sk, psk).
func NewDecryptionContext(sk SecretKey, psk PreSharedKey) *DecryptionContext {
	return &DecryptionContext{sk: sk, psk: psk}
}

// DecryptData reverses EncryptData: verifies the AEAD tag, decompresses,
// and returns the original plaintext. Returns vaulterr.ErrCorruptData on
// any verification/footer failure.
func (dc *DecryptionContext) DecryptData(ct []byte) ([]byte, error) {
	if len(ct) < NonceSize+16+PublicKeySize {
		return nil, fmt.Errorf("%w: ciphertext too small", errCorrupt)
	}

	pkOffset := len(ct) - PublicKeySize
	var pk PublicKey
	copy(pk[:], ct[pkOffset:])

	if !dc.haveKey || pk != dc.ephemeralPK {
		bk, err := ComputeKey(pk, dc.sk, dc.psk)
		if err != nil {
			return nil, err
		}
		dc.ephemeralPK = pk
		dc.ephemeralBK = bk
		dc.haveKey = true
	}

	body := ct[:pkOffset]
	nonce := body[:NonceSize]
	sealed := body[NonceSize:]

	aead, err := chacha20poly1305.NewX(dc.ephemeralBK[:])
	if err != nil {
		return nil, fmt.Errorf("construct aead: %w", err)
	}
	pt, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: aead verification failed", errCorrupt)
	}

	return stripFooter(pt)
}
