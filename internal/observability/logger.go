package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{
		logger: logger,
	}
}

// WithSession adds session_id context to logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("session_id", sessionID).Logger(),
	}
}

// WithItem adds item_id context to logger.
func (l *Logger) WithItem(itemID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("item_id", itemID).Logger(),
	}
}

// WithPeer adds peer_id context to logger.
func (l *Logger) WithPeer(peerID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("peer_id", peerID).Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// SendStarted logs the start of a send attempt (spec §4.8 step 1).
func (l *Logger) SendStarted(sourceKind string, attempt int) {
	l.logger.Info().
		Str("source_kind", sourceKind).
		Int("attempt", attempt).
		Msg("send attempt started")
}

// ChunkDeduped logs a leaf chunk the send-log's address cache already
// held, so its ciphertext was never retransmitted (spec §4.7/§4.8).
func (l *Logger) ChunkDeduped(addr string) {
	l.logger.Debug().
		Str("address", addr).
		Msg("chunk deduplicated against send-log cache")
}

// ChunkSent logs a chunk actually transmitted to the repository.
func (l *Logger) ChunkSent(addr string, size int) {
	l.logger.Debug().
		Str("address", addr).
		Int("size", size).
		Msg("chunk transmitted")
}

// Checkpointed logs a TSendSync barrier crossing and send-log
// checkpoint (spec §4.8 step 6).
func (l *Logger) Checkpointed(dirtyBytes uint64) {
	l.logger.Info().
		Uint64("dirty_bytes", dirtyBytes).
		Msg("send-log checkpointed at sync barrier")
}

// SmearDetected logs a filesystem-modified condition triggering a
// bounded retry (spec §4.8 "Smear recovery").
func (l *Logger) SmearDetected(attempt int, path string, cause error) {
	l.logger.Warn().
		Int("attempt", attempt).
		Str("path", path).
		Err(cause).
		Msg("filesystem modified mid-send, retrying")
}

// ItemCommitted logs a completed send's RAddItem acknowledgment.
func (l *Logger) ItemCommitted(itemID string, dataChunks uint64) {
	l.logger.Info().
		Str("item_id", itemID).
		Uint64("data_chunks", dataChunks).
		Msg("item committed")
}

// ReceiveStarted logs the start of a retrieval (spec §4.9).
func (l *Logger) ReceiveStarted(itemID string, ranged bool) {
	l.logger.Info().
		Str("item_id", itemID).
		Bool("ranged", ranged).
		Msg("receive started")
}

// ReceiveCompleted logs a completed retrieval.
func (l *Logger) ReceiveCompleted(itemID string, bytesEmitted uint64, duration time.Duration) {
	l.logger.Info().
		Str("item_id", itemID).
		Uint64("bytes_emitted", bytesEmitted).
		Float64("duration_seconds", duration.Seconds()).
		Msg("receive completed")
}

// ChunkVerifyFailed logs a chunk that failed address or AEAD
// verification on the receive path (spec §4.9, vaulterr.ErrCorruptData).
func (l *Logger) ChunkVerifyFailed(itemID, addr string, err error) {
	l.logger.Error().
		Str("item_id", itemID).
		Str("address", addr).
		Err(err).
		Msg("chunk verification failed")
}

// GCStarted logs the start of a mark-and-sweep sweep (C18).
func (l *Logger) GCStarted(gcGeneration string) {
	l.logger.Info().
		Str("gc_generation", gcGeneration).
		Msg("repository gc started")
}

// GCCompleted logs a finished sweep's stats.
func (l *Logger) GCCompleted(chunksConsidered, chunksFreed, bytesFreed int64) {
	l.logger.Info().
		Int64("chunks_considered", chunksConsidered).
		Int64("chunks_freed", chunksFreed).
		Int64("bytes_freed", bytesFreed).
		Msg("repository gc completed")
}

// ConnectionEstablished logs connection establishment.
func (l *Logger) ConnectionEstablished(remoteAddr string, connectionID string) {
	l.logger.Info().
		Str("remote_addr", remoteAddr).
		Str("connection_id", connectionID).
		Msg("QUIC connection established")
}

// ConnectionFailed logs connection failure.
func (l *Logger) ConnectionFailed(remoteAddr string, err error) {
	l.logger.Error().
		Str("remote_addr", remoteAddr).
		Err(err).
		Msg("QUIC connection failed")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
