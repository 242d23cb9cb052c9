// Package address implements the 32-byte content-addressing scheme
// (C3): a keyed generic hash over leaf plaintext, and an unkeyed generic
// hash over internal tree-node bytes. Both are built on the same
// "generic hash" primitive (keyed BLAKE2b-256, matching libsodium's
// crypto_generichash default parameters), per spec Invariants 1 and 2.
package address

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size is the length, in bytes, of an Address.
const Size = 32

// Address is a 32-byte opaque content identifier. Equality is
// byte-equality.
type Address [Size]byte

func (a Address) String() string {
	return fmt.Sprintf("%x", a[:])
}

// PartialHashKey is a random 32-byte key-half: one is the recipient's
// stable per-identity half, the other is a random per-send nonce. Only a
// party holding both halves can recompute content addresses.
type PartialHashKey [32]byte

// NewPartialHashKey generates a fresh random key half.
func NewPartialHashKey() (PartialHashKey, error) {
	var k PartialHashKey
	if _, err := rand.Read(k[:]); err != nil {
		return k, err
	}
	return k, nil
}

// Wipe zeroes the key half in place.
func (k *PartialHashKey) Wipe() {
	for i := range k {
		k[i] = 0
	}
}

// HashKey is the combined keying material driving keyed_content_address.
// It is derived by hashing (part1, part2) together (see DeriveHashKey).
type HashKey struct {
	Part1, Part2 PartialHashKey
	bytes        [32]byte
}

// Wipe zeroes all derived and component key material.
func (k *HashKey) Wipe() {
	k.Part1.Wipe()
	k.Part2.Wipe()
	for i := range k.bytes {
		k.bytes[i] = 0
	}
}

// DeriveHashKey combines part1 and part2 into a HashKey via an unkeyed
// generic hash of their concatenation.
func DeriveHashKey(part1, part2 PartialHashKey) (HashKey, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return HashKey{}, err
	}
	h.Write(part1[:])
	h.Write(part2[:])
	var bytes [32]byte
	copy(bytes[:], h.Sum(nil))
	return HashKey{Part1: part1, Part2: part2, bytes: bytes}, nil
}

// KeyedContentAddress computes the address of a leaf (level-0) chunk:
// address(c) = H(plaintext(c), hash_key) — Invariant 1.
func KeyedContentAddress(data []byte, key *HashKey) (Address, error) {
	h, err := blake2b.New256(key.bytes[:])
	if err != nil {
		return Address{}, err
	}
	h.Write(data)
	var a Address
	copy(a[:], h.Sum(nil))
	return a, nil
}

// TreeBlockAddress computes the address of an internal tree node:
// address(n) = H(bytes(n)) unkeyed — Invariant 2.
func TreeBlockAddress(data []byte) (Address, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return Address{}, err
	}
	h.Write(data)
	var a Address
	copy(a[:], h.Sum(nil))
	return a, nil
}
