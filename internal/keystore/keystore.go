// Package keystore seals secret key material (the box secret key and the
// pre-shared key) at rest with a passphrase-derived AES-256-GCM key. This
// is independent of the per-chunk XChaCha20-Poly1305 box scheme used to
// encrypt chunk bodies in flight/at rest in the repository (see
// internal/cryptobox) — keystore only protects local key files.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Time      = 3
	argon2Memory    = 65536
	argon2Threads   = 4
	argon2KeyLen    = 32
	saltSize        = 32
	keystoreVersion = 1
)

var ErrInvalidPassphrase = errors.New("invalid passphrase or corrupted keystore")

// Entry is the on-disk JSON representation of a sealed secret.
type Entry struct {
	Version       int    `json:"version"`
	KDF           string `json:"kdf"`
	Argon2Time    int    `json:"argon2_time"`
	Argon2Memory  int    `json:"argon2_memory"`
	Argon2Threads int    `json:"argon2_threads"`
	Salt          []byte `json:"salt"`
	Nonce         []byte `json:"nonce"`
	Ciphertext    []byte `json:"ciphertext"`
}

// Save encrypts and writes secret (the box secret key, or a PSK) to path.
// An empty passphrase stores it unencrypted with a ".insecure" suffix, for
// local testing only.
func Save(secret []byte, path string, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create keystore directory: %w", err)
	}

	if passphrase == "" {
		return os.WriteFile(path+".insecure", secret, 0o600)
	}

	entry, err := seal(secret, passphrase)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore entry: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Load reads and decrypts a secret previously written with Save.
func Load(path string, passphrase string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	if filepath.Ext(path) == ".insecure" {
		return data, nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal keystore entry: %w", err)
	}
	return unseal(&entry, passphrase)
}

func seal(secret []byte, passphrase string) (*Entry, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, secret, nil)

	return &Entry{
		Version:       keystoreVersion,
		KDF:           "argon2id",
		Argon2Time:    argon2Time,
		Argon2Memory:  argon2Memory,
		Argon2Threads: argon2Threads,
		Salt:          salt,
		Nonce:         nonce,
		Ciphertext:    ciphertext,
	}, nil
}

func unseal(entry *Entry, passphrase string) ([]byte, error) {
	if entry.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported keystore version: %d", entry.Version)
	}
	if entry.KDF != "argon2id" {
		return nil, fmt.Errorf("unsupported KDF: %s", entry.KDF)
	}
	key := argon2.IDKey([]byte(passphrase), entry.Salt, uint32(entry.Argon2Time),
		uint32(entry.Argon2Memory), uint8(entry.Argon2Threads), argon2KeyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(entry.Nonce) != gcm.NonceSize() {
		return nil, ErrInvalidPassphrase
	}
	plaintext, err := gcm.Open(nil, entry.Nonce, entry.Ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidPassphrase
	}
	return plaintext, nil
}

// DefaultDir returns the platform-conventional keystore directory.
func DefaultDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "vaultbridge", "keys")
	}
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "vaultbridge", "keys")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "vaultbridge", "keys")
}
