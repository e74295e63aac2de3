// Package metrics exposes Prometheus counters/gauges for the name server
// and storage server. Metrics are always created; whether they are served
// over HTTP is gated by MetricsConfig.Enabled at the call site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NSMetrics tracks name server request/coordination metrics, all under the
// ns_ prefix.
type NSMetrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	StorageServersUp   prometheus.Gauge
	ActiveClients      prometheus.Gauge
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	SSPurgeTotal       prometheus.Counter
}

// NewNSMetrics registers and returns a fresh set of NS metrics against reg.
func NewNSMetrics(reg prometheus.Registerer) *NSMetrics {
	factory := promauto.With(reg)
	return &NSMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ns_requests_total",
			Help: "Total client requests handled by the name server, by message type and status.",
		}, []string{"msg_type", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ns_request_duration_seconds",
			Help:    "Name server request handling latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"msg_type"}),
		StorageServersUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ns_storage_servers_up",
			Help: "Number of currently registered, active storage servers.",
		}),
		ActiveClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ns_active_clients",
			Help: "Number of currently connected client sessions.",
		}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ns_cache_hits_total",
			Help: "Total lookup-cache hits.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ns_cache_misses_total",
			Help: "Total lookup-cache misses.",
		}),
		SSPurgeTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ns_storage_server_purges_total",
			Help: "Total storage server removals (failure or dead-report).",
		}),
	}
}

// SSMetrics tracks storage server request/write-engine metrics, all under
// the ss_ prefix.
type SSMetrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	SentenceLocksHeld prometheus.Gauge
	CommitsTotal     prometheus.Counter
	ConflictsTotal   prometheus.Counter
	UndoTotal        prometheus.Counter
	CheckpointsTotal prometheus.Counter
}

// NewSSMetrics registers and returns a fresh set of SS metrics against reg.
func NewSSMetrics(reg prometheus.Registerer) *SSMetrics {
	factory := promauto.With(reg)
	return &SSMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ss_requests_total",
			Help: "Total client requests handled by the storage server, by verb and status.",
		}, []string{"verb", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ss_request_duration_seconds",
			Help:    "Storage server request handling latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"verb"}),
		SentenceLocksHeld: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ss_sentence_locks_held",
			Help: "Current number of held (file, sentence) advisory locks.",
		}),
		CommitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ss_commits_total",
			Help: "Total successful write commits (ETIRW).",
		}),
		ConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ss_lock_conflicts_total",
			Help: "Total sentence lock acquisition conflicts.",
		}),
		UndoTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ss_undo_total",
			Help: "Total successful undo operations.",
		}),
		CheckpointsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ss_checkpoints_total",
			Help: "Total checkpoints created.",
		}),
	}
}

// Handler returns the Prometheus scrape handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
