package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// Send/receive session metrics
	SendsTotal            *prometheus.CounterVec
	SendsActive           prometheus.Gauge
	SendDuration          prometheus.Histogram
	ReceivesTotal         *prometheus.CounterVec
	BytesTransmittedTotal *prometheus.CounterVec
	ChunksSentTotal       prometheus.Counter
	ChunksDedupedTotal    prometheus.Counter
	ChunksReceivedTotal   prometheus.Counter
	ChunkSizeBytes        prometheus.Histogram
	SmearRetriesTotal     *prometheus.CounterVec
	RoundTripLatency      prometheus.Histogram

	// Connection metrics
	QUICConnectionsTotal   *prometheus.CounterVec
	QUICConnectionsActive  prometheus.Gauge
	QUICConnectionDuration prometheus.Histogram
	ClockSkewRejectionsTotal prometheus.Counter

	// Crypto metrics
	CryptoOperationsTotal   *prometheus.CounterVec
	CryptoOperationDuration prometheus.Histogram
	ChunkVerifyFailuresTotal prometheus.Counter

	// Repository/GC metrics
	GCRunsTotal         *prometheus.CounterVec
	GCChunksFreedTotal  prometheus.Counter
	GCBytesFreedTotal   prometheus.Counter
	GCDuration          prometheus.Histogram
	DatabaseOperationsTotal *prometheus.CounterVec
	DiskSpaceUsedBytes      prometheus.Gauge

	// Active sends counter (atomic for thread-safety)
	activeSends int64
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		SendsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultbridge_sends_total",
				Help: "Total send sessions initiated",
			},
			[]string{"status"},
		),

		SendsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vaultbridge_sends_active",
				Help: "Currently active send sessions",
			},
		),

		SendDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultbridge_send_duration_seconds",
				Help:    "Send session completion time distribution",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),

		ReceivesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultbridge_receives_total",
				Help: "Total receive sessions initiated",
			},
			[]string{"status"},
		),

		BytesTransmittedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultbridge_bytes_transmitted_total",
				Help: "Total plaintext bytes transmitted",
			},
			[]string{"direction"},
		),

		ChunksSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultbridge_chunks_sent_total",
				Help: "Total chunks transmitted to a repository",
			},
		),

		ChunksDedupedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultbridge_chunks_deduped_total",
				Help: "Chunks skipped because the send-log cache already held their address",
			},
		),

		ChunksReceivedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultbridge_chunks_received_total",
				Help: "Total chunks received and verified",
			},
		),

		ChunkSizeBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultbridge_chunk_size_bytes",
				Help:    "Distribution of chunk sizes produced by the content-defined chunker",
				Buckets: prometheus.ExponentialBuckets(1<<10, 2, 12),
			},
		),

		SmearRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultbridge_smear_retries_total",
				Help: "Bounded retries triggered by a file changing mid-send",
			},
			[]string{"outcome"},
		),

		RoundTripLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultbridge_round_trip_latency_seconds",
				Help:    "Request/response latency for repository packet exchanges",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
		),

		QUICConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultbridge_quic_connections_total",
				Help: "QUIC connection attempts",
			},
			[]string{"result"},
		),

		QUICConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vaultbridge_quic_connections_active",
				Help: "Active QUIC connections",
			},
		),

		QUICConnectionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultbridge_quic_connection_duration_seconds",
				Help:    "QUIC connection lifetime",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),

		ClockSkewRejectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultbridge_clock_skew_rejections_total",
				Help: "Sessions refused at open for exceeding the clock skew tolerance",
			},
		),

		CryptoOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultbridge_crypto_operations_total",
				Help: "Cryptographic operations performed",
			},
			[]string{"operation"},
		),

		CryptoOperationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultbridge_crypto_operation_duration_seconds",
				Help:    "Crypto operation latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),

		ChunkVerifyFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultbridge_chunk_verify_failures_total",
				Help: "Chunks that failed address or AEAD verification on receive",
			},
		),

		GCRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultbridge_gc_runs_total",
				Help: "Repository GC sweeps performed",
			},
			[]string{"result"},
		),

		GCChunksFreedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultbridge_gc_chunks_freed_total",
				Help: "Chunks deleted by GC sweeps",
			},
		),

		GCBytesFreedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultbridge_gc_bytes_freed_total",
				Help: "Bytes reclaimed by GC sweeps",
			},
		),

		GCDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultbridge_gc_duration_seconds",
				Help:    "Repository GC sweep duration",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultbridge_database_operations_total",
				Help: "Send-log/chunk-store database operation count",
			},
			[]string{"operation", "result"},
		),

		DiskSpaceUsedBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vaultbridge_disk_space_used_bytes",
				Help: "Disk space used by the local chunk store",
			},
		),
	}

	return m
}

// RecordSendStart increments active send counters.
func (m *Metrics) RecordSendStart() {
	atomic.AddInt64(&m.activeSends, 1)
	m.SendsActive.Set(float64(atomic.LoadInt64(&m.activeSends)))
}

// RecordSendComplete records send-session completion metrics.
func (m *Metrics) RecordSendComplete(success bool, durationSeconds float64) {
	atomic.AddInt64(&m.activeSends, -1)
	m.SendsActive.Set(float64(atomic.LoadInt64(&m.activeSends)))

	status := "success"
	if !success {
		status = "failure"
	}

	m.SendsTotal.WithLabelValues(status).Inc()
	m.SendDuration.Observe(durationSeconds)
}

// RecordReceiveComplete records receive-session completion.
func (m *Metrics) RecordReceiveComplete(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.ReceivesTotal.WithLabelValues(status).Inc()
}

// RecordChunkSent updates metrics for a chunk actually transmitted.
func (m *Metrics) RecordChunkSent(bytes int) {
	m.ChunksSentTotal.Inc()
	m.ChunkSizeBytes.Observe(float64(bytes))
	m.BytesTransmittedTotal.WithLabelValues("sent").Add(float64(bytes))
}

// RecordChunkDeduped updates metrics for a chunk skipped via the
// send-log cache.
func (m *Metrics) RecordChunkDeduped() {
	m.ChunksDedupedTotal.Inc()
}

// RecordChunkReceived updates metrics for a verified received chunk.
func (m *Metrics) RecordChunkReceived(bytes int) {
	m.ChunksReceivedTotal.Inc()
	m.BytesTransmittedTotal.WithLabelValues("received").Add(float64(bytes))
}

// RecordChunkVerifyFailure increments the verification-failure counter.
func (m *Metrics) RecordChunkVerifyFailure() {
	m.ChunkVerifyFailuresTotal.Inc()
}

// RecordSmearRetry increments smear-retry counters.
func (m *Metrics) RecordSmearRetry(outcome string) {
	m.SmearRetriesTotal.WithLabelValues(outcome).Inc()
}

// RecordRoundTrip observes a packet round-trip latency.
func (m *Metrics) RecordRoundTrip(durationSeconds float64) {
	m.RoundTripLatency.Observe(durationSeconds)
}

// RecordQUICConnection logs QUIC connection attempts.
func (m *Metrics) RecordQUICConnection(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.QUICConnectionsTotal.WithLabelValues(result).Inc()

	if success {
		m.QUICConnectionsActive.Inc()
	}
}

// RecordQUICConnectionClose updates metrics for closed QUIC connections.
func (m *Metrics) RecordQUICConnectionClose(durationSeconds float64) {
	m.QUICConnectionsActive.Dec()
	m.QUICConnectionDuration.Observe(durationSeconds)
}

// RecordClockSkewRejection increments the clock-skew rejection counter.
func (m *Metrics) RecordClockSkewRejection() {
	m.ClockSkewRejectionsTotal.Inc()
}

// RecordCryptoOperation records cryptographic operation duration.
func (m *Metrics) RecordCryptoOperation(operation string, durationSeconds float64) {
	m.CryptoOperationsTotal.WithLabelValues(operation).Inc()
	m.CryptoOperationDuration.Observe(durationSeconds)
}

// RecordGCRun records a completed GC sweep's stats.
func (m *Metrics) RecordGCRun(success bool, durationSeconds float64, chunksFreed, bytesFreed int64) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.GCRunsTotal.WithLabelValues(result).Inc()
	m.GCDuration.Observe(durationSeconds)
	if success {
		m.GCChunksFreedTotal.Add(float64(chunksFreed))
		m.GCBytesFreedTotal.Add(float64(bytesFreed))
	}
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
