// Package identity manages on-disk persistence of the asymmetric box
// keypair (curve25519) used to address chunks to a specific recipient.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/curve25519"

	"github.com/quantarax/vaultbridge/internal/address"
)

// DefaultPaths returns the default secret/public key paths under
// ~/.vaultbridge.
func DefaultPaths() (secPath, pubPath string, err error) {
	h, err := os.UserHomeDir()
	if err != nil {
		return "", "", err
	}
	dir := filepath.Join(h, ".vaultbridge")
	return filepath.Join(dir, "id_box"), filepath.Join(dir, "id_box.pub"), nil
}

// LoadOrCreate loads a box keypair from secPath/pubPath, generating and
// persisting a new one if absent.
func LoadOrCreate(secPath, pubPath string) (sk [32]byte, pk [32]byte, err error) {
	if secPath == "" {
		secPath, pubPath, err = DefaultPaths()
		if err != nil {
			return sk, pk, err
		}
	}
	if pubPath == "" {
		pubPath = secPath + ".pub"
	}

	sk, pk, err = load(secPath, pubPath)
	if err == nil {
		return sk, pk, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return [32]byte{}, [32]byte{}, err
	}

	if _, err := rand.Read(sk[:]); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	pkBytes, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return [32]byte{}, [32]byte{}, fmt.Errorf("derive public key: %w", err)
	}
	copy(pk[:], pkBytes)

	if err := os.MkdirAll(filepath.Dir(secPath), 0o700); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	if err := writeKeyFiles(secPath, pubPath, sk, pk); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	return sk, pk, nil
}

// LoadOrCreateHashKeyPart1 loads this identity's stable content-address
// key half (address.PartialHashKey, spec §4.2/§4.9) from path, generating
// and persisting a new random one if absent. Unlike the box keypair this
// value is not a secret key exchanged with a peer; it stays stable
// across sends for the same identity, and each send combines it with a
// fresh random second half to form the hash key for that send.
func LoadOrCreateHashKeyPart1(path string) (address.PartialHashKey, error) {
	var part1 address.PartialHashKey

	if data, err := os.ReadFile(path); err == nil {
		dec, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return part1, fmt.Errorf("invalid hash key part: %w", err)
		}
		if len(dec) != len(part1) {
			return part1, fmt.Errorf("bad hash key part size")
		}
		copy(part1[:], dec)
		return part1, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return part1, err
	}

	part1, err := address.NewPartialHashKey()
	if err != nil {
		return part1, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return address.PartialHashKey{}, err
	}
	enc := []byte(base64.StdEncoding.EncodeToString(part1[:]))
	if err := os.WriteFile(path, enc, 0o600); err != nil {
		return address.PartialHashKey{}, err
	}
	return part1, nil
}

func load(secPath, pubPath string) (sk [32]byte, pk [32]byte, err error) {
	sbytes, err := os.ReadFile(secPath)
	if err != nil {
		return sk, pk, err
	}
	ubytes, err := os.ReadFile(pubPath)
	if err != nil {
		return sk, pk, err
	}
	sdec, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(sbytes)))
	if err != nil {
		return sk, pk, fmt.Errorf("invalid secret key: %w", err)
	}
	udec, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(ubytes)))
	if err != nil {
		return sk, pk, fmt.Errorf("invalid public key: %w", err)
	}
	if len(sdec) != 32 || len(udec) != 32 {
		return sk, pk, fmt.Errorf("bad key size")
	}
	copy(sk[:], sdec)
	copy(pk[:], udec)
	return sk, pk, nil
}

func writeKeyFiles(secPath, pubPath string, sk, pk [32]byte) error {
	encSec := []byte(base64.StdEncoding.EncodeToString(sk[:]))
	encPub := []byte(base64.StdEncoding.EncodeToString(pk[:]))
	if err := os.WriteFile(secPath, encSec, 0o600); err != nil {
		return err
	}
	if err := os.WriteFile(pubPath, encPub, 0o644); err != nil {
		return err
	}
	return nil
}
