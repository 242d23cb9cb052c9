// Command vaultbridge-recv retrieves a previously sent item from a
// repository and writes its plaintext to a file or stdout (spec §4.9).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quantarax/vaultbridge/internal/config"
	"github.com/quantarax/vaultbridge/internal/cryptobox"
	"github.com/quantarax/vaultbridge/internal/identity"
	"github.com/quantarax/vaultbridge/internal/keystore"
	"github.com/quantarax/vaultbridge/internal/observability"
	"github.com/quantarax/vaultbridge/internal/quicutil"
	"github.com/quantarax/vaultbridge/internal/receive"
	"github.com/quantarax/vaultbridge/internal/send"
	"github.com/quantarax/vaultbridge/internal/transport"
	"github.com/quantarax/vaultbridge/internal/xid"
)

func main() {
	configPath := flag.String("config", "", "path to vaultbridge config YAML")
	repoOverride := flag.String("repo", "", "repository URL, overriding the config file")
	itemIDFlag := flag.String("item", "", "item id to retrieve (required)")
	outPath := flag.String("out", "", "output file path (default: stdout)")
	passphrase := flag.String("passphrase", "", "passphrase unsealing the pre-shared key")
	flag.Parse()

	if *itemIDFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: vaultbridge-recv -item <id> [-out path] [flags]")
		os.Exit(2)
	}

	if err := run(*configPath, *repoOverride, *itemIDFlag, *outPath, passphrase); err != nil {
		fmt.Fprintln(os.Stderr, "vaultbridge-recv:", err)
		os.Exit(1)
	}
}

func run(configPath, repoOverride, itemIDStr, outPath string, passphrase *string) error {
	logger := observability.NewLogger("vaultbridge-recv", "1.0.0", os.Stdout)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if repoOverride != "" {
		cfg.RepositoryURL = repoOverride
	}

	itemID, err := xid.Parse(itemIDStr)
	if err != nil {
		return fmt.Errorf("invalid -item: %w", err)
	}

	sk, _, err := identity.LoadOrCreate(filepath.Join(cfg.KeysDirectory, "id_box"), filepath.Join(cfg.KeysDirectory, "id_box.pub"))
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	hashKeyPart1, err := identity.LoadOrCreateHashKeyPart1(filepath.Join(cfg.KeysDirectory, "hashkey_part1"))
	if err != nil {
		return fmt.Errorf("load hash key part: %w", err)
	}

	psk, err := loadPSK(filepath.Join(cfg.KeysDirectory, "psk"), *passphrase)
	if err != nil {
		return fmt.Errorf("load pre-shared key: %w", err)
	}

	dc := cryptobox.NewDecryptionContext(cryptobox.SecretKey(sk), psk)

	conn, closer, err := dial(cfg.RepositoryURL)
	if err != nil {
		return fmt.Errorf("connect to repository: %w", err)
	}
	defer closer.Close()

	var out io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	logger.ReceiveStarted(itemID.String(), false)
	start := time.Now()
	n, err := receive.RequestDataStream(conn, itemID, nil, hashKeyPart1, dc, "default", out)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	logger.ReceiveCompleted(itemID.String(), n, time.Since(start))
	return nil
}

func loadPSK(path, passphrase string) (cryptobox.PreSharedKey, error) {
	var psk cryptobox.PreSharedKey
	candidates := []string{path, path + ".insecure"}
	var lastErr error
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			lastErr = err
			continue
		}
		data, err := keystore.Load(p, passphrase)
		if err != nil {
			return psk, err
		}
		if len(data) != cryptobox.PreSharedKeySize {
			return psk, fmt.Errorf("bad pre-shared key size in %s", p)
		}
		copy(psk[:], data)
		return psk, nil
	}
	return psk, fmt.Errorf("no pre-shared key found (run vaultbridge-keygen first): %w", lastErr)
}

// dial mirrors vaultbridge-send's connection dispatch: "file://" opens
// an in-process repository, any other scheme dials over QUIC.
func dial(repositoryURL string) (send.Session, io.Closer, error) {
	const filePrefix = "file://"
	if strings.HasPrefix(repositoryURL, filePrefix) {
		path := strings.TrimPrefix(repositoryURL, filePrefix)
		return transport.OpenLocal(path)
	}

	ctx := context.Background()
	tlsConfig := quicutil.MakeClientTLSConfig()
	tlsConfig.NextProtos = []string{"vaultbridge"}

	addr := strings.TrimPrefix(repositoryURL, "quic://")
	conn, err := transport.Dial(ctx, addr, tlsConfig)
	if err != nil {
		return nil, nil, err
	}
	return conn, conn, nil
}
