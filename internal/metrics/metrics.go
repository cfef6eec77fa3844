// Package metrics holds the Prometheus collectors for the vault core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vaultkeep"

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Cache
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheInvalidations prometheus.Counter
	CacheEntries       prometheus.Gauge

	// Store
	StoreOps        *prometheus.CounterVec
	StoreOpDuration *prometheus.HistogramVec
	LockWait        prometheus.Histogram

	// Batch
	Transactions        *prometheus.CounterVec
	TransactionDuration prometheus.Histogram
	TransactionOps      prometheus.Histogram

	// Graph
	GraphRebuildDuration prometheus.Histogram
	GraphNodes           prometheus.Gauge
	GraphEdges           prometheus.Gauge
	GraphBrokenLinks     prometheus.Gauge

	// Watcher
	WatcherEvents *prometheus.CounterVec

	// Event stream
	StreamClients prometheus.Gauge
	StreamDropped prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg creates
// unregistered collectors, which is what tests and embedded engines use.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of content cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of content cache misses",
		}),
		CacheInvalidations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of content cache invalidations",
		}),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of cached entries",
		}),

		StoreOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations by operation and result",
		}, []string{"op", "result"}),
		StoreOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for per-path locks",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 10, 7),
		}),

		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "transactions_total",
			Help:      "Total number of batch transactions by outcome",
		}, []string{"outcome"}),
		TransactionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "transaction_duration_seconds",
			Help:      "Batch transaction duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		TransactionOps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "transaction_operations",
			Help:      "Number of operations per batch transaction",
			Buckets:   prometheus.LinearBuckets(1, 5, 10),
		}),

		GraphRebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "rebuild_duration_seconds",
			Help:      "Full link graph rebuild duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		GraphNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "nodes",
			Help:      "Number of files in the link graph",
		}),
		GraphEdges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "edges",
			Help:      "Number of resolved links in the link graph",
		}),
		GraphBrokenLinks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "broken_links",
			Help:      "Number of unresolved internal links",
		}),

		WatcherEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "events_total",
			Help:      "Total number of change events applied by kind",
		}, []string{"kind"}),

		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "clients",
			Help:      "Number of connected event stream clients",
		}),
		StreamDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total number of event frames dropped for slow clients",
		}),
	}
}

// OrNop returns m, or a set of unregistered collectors when m is nil.
func OrNop(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	return New(nil)
}
