// Command vaultbridge-send sends a file or directory tree to a
// repository, producing one committed item (spec §4.8).
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantarax/vaultbridge/internal/config"
	"github.com/quantarax/vaultbridge/internal/cryptobox"
	"github.com/quantarax/vaultbridge/internal/identity"
	"github.com/quantarax/vaultbridge/internal/keystore"
	"github.com/quantarax/vaultbridge/internal/observability"
	"github.com/quantarax/vaultbridge/internal/quicutil"
	"github.com/quantarax/vaultbridge/internal/send"
	"github.com/quantarax/vaultbridge/internal/sendlog/sqlitelog"
	"github.com/quantarax/vaultbridge/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to vaultbridge config YAML")
	repoOverride := flag.String("repo", "", "repository URL, overriding the config file")
	recipientPubKey := flag.String("recipient-pubkey", "", "base64 box public key of the recipient (default: this identity's own key)")
	passphrase := flag.String("passphrase", "", "passphrase unsealing the pre-shared key")
	tagFlags := multiFlag{}
	flag.Var(&tagFlags, "tag", "key=value tag attached to the item; repeatable")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: vaultbridge-send [flags] <file-or-directory>")
		os.Exit(2)
	}

	if err := run(*configPath, *repoOverride, *recipientPubKey, *passphrase, tagFlags.values, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "vaultbridge-send:", err)
		os.Exit(1)
	}
}

type multiFlag struct{ values []string }

func (m *multiFlag) String() string   { return strings.Join(m.values, ",") }
func (m *multiFlag) Set(v string) error { m.values = append(m.values, v); return nil }

func run(configPath, repoOverride, recipientPubKeyB64, passphrase string, tagArgs []string, sourcePath string) error {
	logger := observability.NewLogger("vaultbridge-send", "1.0.0", os.Stdout)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if repoOverride != "" {
		cfg.RepositoryURL = repoOverride
	}

	_, pk, err := identity.LoadOrCreate(filepath.Join(cfg.KeysDirectory, "id_box"), filepath.Join(cfg.KeysDirectory, "id_box.pub"))
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	hashKeyPart1, err := identity.LoadOrCreateHashKeyPart1(filepath.Join(cfg.KeysDirectory, "hashkey_part1"))
	if err != nil {
		return fmt.Errorf("load hash key part: %w", err)
	}

	recipientPK := cryptobox.PublicKey(pk)
	if recipientPubKeyB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(recipientPubKeyB64)
		if err != nil || len(decoded) != cryptobox.PublicKeySize {
			return fmt.Errorf("invalid --recipient-pubkey")
		}
		copy(recipientPK[:], decoded)
	}

	psk, err := loadPSK(filepath.Join(cfg.KeysDirectory, "psk"), passphrase)
	if err != nil {
		return fmt.Errorf("load pre-shared key: %w", err)
	}

	ec, err := cryptobox.NewEncryptionContext(recipientPK, psk)
	if err != nil {
		return fmt.Errorf("build encryption context: %w", err)
	}

	sendLog, err := sqlitelog.New(cfg.SendLogPath)
	if err != nil {
		return fmt.Errorf("open send-log: %w", err)
	}
	defer sendLog.Close()

	conn, closer, err := dial(cfg.RepositoryURL)
	if err != nil {
		return fmt.Errorf("connect to repository: %w", err)
	}
	defer closer.Close()

	tags := send.Tags{}
	for _, t := range tagArgs {
		k, v, ok := strings.Cut(t, "=")
		if !ok {
			return fmt.Errorf("invalid --tag %q, expected key=value", t)
		}
		tags[k] = v
	}

	source, err := buildSource(sourcePath)
	if err != nil {
		return err
	}

	sctx := &send.SendContext{
		HashKeyPart1:    hashKeyPart1,
		Ectxs:           []*cryptobox.EncryptionContext{ec},
		Compression:     cryptobox.CompressionZstd,
		CheckpointBytes: cfg.CheckpointBytes,
		UseStatCache:    cfg.StatCacheEnabled,
	}

	logger.SendStarted(sourceKindName(source.Kind), 1)
	id, err := send.Send(conn, &send.Request{
		Ctx:          sctx,
		Source:       source,
		Log:          sendLog,
		Tags:         tags,
		PrimaryKeyID: "default",
		SendKeyID:    "default",
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	logger.ItemCommitted(id.String(), 0)
	fmt.Println(id.String())
	return nil
}

func buildSource(path string) (send.DataSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return send.DataSource{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return send.DataSource{Kind: send.SourceDirectory, Path: path}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return send.DataSource{}, fmt.Errorf("open %s: %w", path, err)
	}
	return send.DataSource{Kind: send.SourceReadable, Reader: f}, nil
}

func sourceKindName(kind send.SourceKind) string {
	switch kind {
	case send.SourceDirectory:
		return "directory"
	case send.SourceSubprocess:
		return "subprocess"
	default:
		return "stream"
	}
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

// dial returns an open, duplex packet connection to repositoryURL: a
// "file://" URL is served in-process over a local bolt store; any
// other scheme is dialed over QUIC using an insecure (self-signed)
// client TLS config, suitable for a repository whose certificate was
// generated the same way.
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
