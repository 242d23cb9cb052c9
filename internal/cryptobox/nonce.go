package cryptobox

import "crypto/rand"

// NonceSize is the XChaCha20-Poly1305 nonce length.
const NonceSize = 24

// Nonce is a 24-byte box nonce, incremented after each chunk encrypted
// within one EncryptionContext.
type Nonce [NonceSize]byte

// NewNonce returns a freshly randomized nonce.
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return n, err
	}
	return n, nil
}

// Inc increments the nonce as a little-endian integer with wraparound,
// matching libsodium's sodium_increment: incrementing [255,0,…] yields
// [0,1,0,…]; incrementing an all-255 nonce yields an all-zero nonce.
func (n *Nonce) Inc() {
	c := uint16(1)
	for i := 0; i < len(n); i++ {
		c += uint16(n[i])
		n[i] = byte(c)
		c >>= 8
	}
}
