// Command vaultbridge-serve runs a repository server: it accepts QUIC
// sessions and dispatches each through repo.Serve, runs periodic GC,
// and exposes Prometheus metrics and a health endpoint (C11/C13/C14/C18).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cas/boltstore"
	"github.com/quantarax/vaultbridge/internal/config"
	"github.com/quantarax/vaultbridge/internal/observability"
	"github.com/quantarax/vaultbridge/internal/quicutil"
	"github.com/quantarax/vaultbridge/internal/repo"
	"github.com/quantarax/vaultbridge/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to vaultbridge config YAML")
	dbPath := flag.String("db", "", "path to the repository's bolt store (default: <send_log_path>.repository.bolt)")
	listenAddr := flag.String("listen", "", "QUIC listen address, overriding the config file")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9091", "address for the metrics/health HTTP server")
	gcInterval := flag.Duration("gc-interval", time.Hour, "interval between automatic GC sweeps (0 disables)")
	flag.Parse()

	if err := run(*configPath, *dbPath, *listenAddr, *metricsAddr, *gcInterval); err != nil {
		fmt.Fprintln(os.Stderr, "vaultbridge-serve:", err)
		os.Exit(1)
	}
}

func run(configPath, dbPath, listenAddr, metricsAddr string, gcInterval time.Duration) error {
	logger := observability.NewLogger("vaultbridge-serve", "1.0.0", os.Stdout)
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker("1.0.0")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenAddr != "" {
		cfg.QUICAddress = listenAddr
	}
	if dbPath == "" {
		dbPath = cfg.SendLogPath + ".repository.bolt"
	}

	if shutdownTracing, err := observability.InitTracing(context.Background(), "vaultbridge-serve"); err == nil {
		defer shutdownTracing(context.Background())
	}

	store, err := boltstore.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open repository store %s: %w", dbPath, err)
	}
	defer store.Close()

	server := repo.NewServer(store)

	cert, key, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		return fmt.Errorf("generate TLS certificate: %w", err)
	}
	tlsConfig, err := quicutil.MakeTLSConfig(cert, key)
	if err != nil {
		return fmt.Errorf("build TLS config: %w", err)
	}
	tlsConfig.NextProtos = []string{"vaultbridge"}

	listener, err := transport.Listen(cfg.QUICAddress, tlsConfig)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.QUICAddress, err)
	}
	defer listener.Close()

	healthChecker.RegisterCheck("quic_listener", observability.QUICListenerCheck(cfg.QUICAddress))
	healthChecker.RegisterCheck("chunk_store", observability.CASStoreCheck("bolt", func() error {
		return store.Walk(func(_ address.Address, _ time.Time) error { return nil })
	}))
	healthChecker.RegisterCheck("disk_space", observability.DiskSpaceCheck(dbPath, 1))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", healthChecker.Handler())
	httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "metrics server stopped")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if gcInterval > 0 {
		go runGCLoop(ctx, server, logger, metrics, gcInterval)
	}

	logger.Info(fmt.Sprintf("repository listening on %s (metrics on %s)", listener.Addr(), metricsAddr))

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error(err, "accept failed")
				continue
			}
			logger.ConnectionEstablished(conn.RemoteAddr(), "")
			go serveConn(server, conn, logger)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	<-acceptDone
	return nil
}

func serveConn(server *repo.Server, conn *transport.StreamConn, logger *observability.Logger) {
	defer conn.Close()
	if err := server.Serve(conn); err != nil && !errors.Is(err, io.EOF) {
		logger.Error(err, "session ended with error")
	}
}

func runGCLoop(ctx context.Context, server *repo.Server, logger *observability.Logger, metrics *observability.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.GCStarted(server.GCGeneration())
			start := time.Now()
			stats, err := server.GC(func(msg string) { logger.Debug(msg) })
			metrics.RecordGCRun(err == nil, time.Since(start).Seconds(), stats.ChunksFreed, stats.BytesFreed)
			if err != nil {
				logger.Error(err, "gc sweep failed")
				continue
			}
			logger.GCCompleted(stats.ChunksConsidered, stats.ChunksFreed, stats.BytesFreed)
		}
	}
}
