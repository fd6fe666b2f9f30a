// Package metrics registers the transport's Prometheus collectors,
// grounded on the teacher's registerOrReuse guard
// (internal/protocol/nfs/v4/state/metrics_util.go) so repeated construction
// (e.g. in tests) never panics on AlreadyRegisteredError.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOrReuse registers c with reg, returning the already-registered
// collector instead of panicking when c's descriptor collides with one
// already present in reg.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// ClientMetrics tracks per-client counters: RPCs sent/succeeded/failed/
// timed out, chunks fetched/failed, streams opened/closed, and write
// latency. Every method is nil-safe — a nil *ClientMetrics silently
// discards observations — mirroring the teacher's nil-safe
// BackchannelMetrics so callers never need to check for a metrics-less
// Client before recording.
//
// transport.Client records RPCs sent, local RpcRequest write failures,
// sync-call timeouts and write latency. Nothing in the transport calls
// IncRpcSucceeded, IncChunksFetched, IncChunksFailed, IncStreamsOpened or
// IncStreamsClosed, and received RpcFailure frames are not counted, so
// those counters stay at zero.
type ClientMetrics struct {
	rpcSent        prometheus.Counter
	rpcSucceeded   prometheus.Counter
	rpcFailed      prometheus.Counter
	rpcTimedOut    prometheus.Counter
	chunksFetched  prometheus.Counter
	chunksFailed   prometheus.Counter
	streamsOpened  prometheus.Counter
	streamsClosed  prometheus.Counter
	writeLatencyMs prometheus.Histogram
}

// NewClientMetrics registers the client's collectors under reg, labeled
// with remote, reusing any already-registered collector with the same
// descriptor.
func NewClientMetrics(reg prometheus.Registerer, remote string) *ClientMetrics {
	labels := prometheus.Labels{"remote": remote}

	return &ClientMetrics{
		rpcSent: registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chanrpc", Subsystem: "client", Name: "rpc_sent_total",
			Help: "RpcRequest frames sent.", ConstLabels: labels,
		})).(prometheus.Counter),
		rpcSucceeded: registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chanrpc", Subsystem: "client", Name: "rpc_succeeded_total",
			Help: "RpcResponse frames received.", ConstLabels: labels,
		})).(prometheus.Counter),
		rpcFailed: registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chanrpc", Subsystem: "client", Name: "rpc_failed_total",
			Help: "RpcFailure frames received, or local write failures.", ConstLabels: labels,
		})).(prometheus.Counter),
		rpcTimedOut: registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chanrpc", Subsystem: "client", Name: "rpc_timed_out_total",
			Help: "sendRpcSync calls that exceeded their deadline.", ConstLabels: labels,
		})).(prometheus.Counter),
		chunksFetched: registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chanrpc", Subsystem: "client", Name: "chunks_fetched_total",
			Help: "ChunkFetchSuccess frames received.", ConstLabels: labels,
		})).(prometheus.Counter),
		chunksFailed: registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chanrpc", Subsystem: "client", Name: "chunks_failed_total",
			Help: "ChunkFetchFailure frames received.", ConstLabels: labels,
		})).(prometheus.Counter),
		streamsOpened: registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chanrpc", Subsystem: "client", Name: "streams_opened_total",
			Help: "StreamRequest frames sent.", ConstLabels: labels,
		})).(prometheus.Counter),
		streamsClosed: registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chanrpc", Subsystem: "client", Name: "streams_closed_total",
			Help: "StreamResponse completions and StreamFailures.", ConstLabels: labels,
		})).(prometheus.Counter),
		writeLatencyMs: registerOrReuse(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chanrpc", Subsystem: "client", Name: "write_latency_ms",
			Help: "Latency of a single outbound frame write.", ConstLabels: labels,
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		})).(prometheus.Histogram),
	}
}

func (m *ClientMetrics) IncRpcSent() {
	if m != nil {
		m.rpcSent.Inc()
	}
}

func (m *ClientMetrics) IncRpcSucceeded() {
	if m != nil {
		m.rpcSucceeded.Inc()
	}
}

func (m *ClientMetrics) IncRpcFailed() {
	if m != nil {
		m.rpcFailed.Inc()
	}
}

func (m *ClientMetrics) IncRpcTimedOut() {
	if m != nil {
		m.rpcTimedOut.Inc()
	}
}

func (m *ClientMetrics) IncChunksFetched() {
	if m != nil {
		m.chunksFetched.Inc()
	}
}

func (m *ClientMetrics) IncChunksFailed() {
	if m != nil {
		m.chunksFailed.Inc()
	}
}

func (m *ClientMetrics) IncStreamsOpened() {
	if m != nil {
		m.streamsOpened.Inc()
	}
}

func (m *ClientMetrics) IncStreamsClosed() {
	if m != nil {
		m.streamsClosed.Inc()
	}
}

func (m *ClientMetrics) ObserveWriteLatency(d time.Duration) {
	if m != nil {
		m.writeLatencyMs.Observe(float64(d.Microseconds()) / 1000.0)
	}
}

// ChunksBeingTransferred is a process-wide gauge of chunks currently in
// flight across all streams. It holds whatever value the last Set call
// stored; the transport's request handler neither creates nor updates it.
type ChunksBeingTransferred struct {
	gauge prometheus.Gauge
}

// NewChunksBeingTransferred registers the gauge under reg.
func NewChunksBeingTransferred(reg prometheus.Registerer) *ChunksBeingTransferred {
	return &ChunksBeingTransferred{
		gauge: registerOrReuse(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chanrpc", Name: "chunks_being_transferred",
			Help: "Number of chunks currently being sent across all streams.",
		})).(prometheus.Gauge),
	}
}

func (g *ChunksBeingTransferred) Set(v float64) {
	if g != nil {
		g.gauge.Set(v)
	}
}
