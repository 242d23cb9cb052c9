// Command vaultbridge-keygen generates (or reports) the local identity
// used by vaultbridge-send/vaultbridge-recv: a curve25519 box keypair,
// a stable content-addressing key half, and a fresh pre-shared key
// sealed under an optional passphrase (C15).
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quantarax/vaultbridge/internal/cryptobox"
	"github.com/quantarax/vaultbridge/internal/identity"
	"github.com/quantarax/vaultbridge/internal/keystore"
)

func main() {
	keysDir := flag.String("keys-dir", keystore.DefaultDir(), "directory to store identity and keystore files")
	passphrase := flag.String("passphrase", "", "passphrase sealing the pre-shared key (empty stores it unencrypted, for local testing only)")
	flag.Parse()

	if err := run(*keysDir, *passphrase); err != nil {
		fmt.Fprintln(os.Stderr, "vaultbridge-keygen:", err)
		os.Exit(1)
	}
}

func run(keysDir, passphrase string) error {
	if err := os.MkdirAll(keysDir, 0o700); err != nil {
		return fmt.Errorf("create keys directory: %w", err)
	}

	secPath := filepath.Join(keysDir, "id_box")
	pubPath := filepath.Join(keysDir, "id_box.pub")
	_, pk, err := identity.LoadOrCreate(secPath, pubPath)
	if err != nil {
		return fmt.Errorf("identity keypair: %w", err)
	}

	hashKeyPart1Path := filepath.Join(keysDir, "hashkey_part1")
	if _, err := identity.LoadOrCreateHashKeyPart1(hashKeyPart1Path); err != nil {
		return fmt.Errorf("hash key part: %w", err)
	}

	pskPath := filepath.Join(keysDir, "psk")
	if _, err := os.Stat(pskPath); os.IsNotExist(err) {
		if _, err := os.Stat(pskPath + ".insecure"); os.IsNotExist(err) {
			psk, err := cryptobox.NewPreSharedKey()
			if err != nil {
				return fmt.Errorf("generate pre-shared key: %w", err)
			}
			if err := keystore.Save(psk[:], pskPath, passphrase); err != nil {
				return fmt.Errorf("seal pre-shared key: %w", err)
			}
			fmt.Println("generated new pre-shared key at", pskPath)
		}
	}

	fmt.Println("identity keys directory:", keysDir)
	fmt.Println("public key:", base64.StdEncoding.EncodeToString(pk[:]))
	return nil
}
