package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transaction metrics
	TransactionsOpenTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vertexdb_transactions_open",
			Help: "Number of currently open transactions by kind",
		},
		[]string{"kind"},
	)

	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertexdb_commits_total",
			Help: "Total number of committed transactions by outcome",
		},
		[]string{"outcome"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vertexdb_commit_duration_seconds",
			Help:    "Time taken to validate and durably apply a commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertexdb_conflicts_total",
			Help: "Total number of commit conflicts detected during validation",
		},
		[]string{"reason"},
	)

	// Query metrics
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vertexdb_query_duration_seconds",
			Help:    "End-to-end query execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertexdb_queries_total",
			Help: "Total number of executed queries by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	RowsProduced = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vertexdb_query_rows_produced",
			Help:    "Number of answer rows produced per query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	PlanningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vertexdb_planning_duration_seconds",
			Help:    "Time taken to plan a query into an executable program",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Storage / durability metrics
	Watermark = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vertexdb_watermark",
			Help: "Current sequence watermark by kind (commit, durability)",
		},
		[]string{"kind"},
	)

	WALAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vertexdb_wal_append_duration_seconds",
			Help:    "Time taken to append a record to the durability log",
			Buckets: prometheus.DefBuckets,
		},
	)

	WALBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vertexdb_wal_bytes_written_total",
			Help: "Total compressed bytes written to the durability log",
		},
	)

	KeyspaceSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vertexdb_keyspace_bytes",
			Help: "On-disk size of a keyspace file in bytes",
		},
		[]string{"keyspace"},
	)

	SnapshotsOpenTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vertexdb_snapshots_open",
			Help: "Number of currently open read/write snapshots",
		},
	)

	// Type system metrics
	TypeCacheRebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vertexdb_type_cache_rebuild_duration_seconds",
			Help:    "Time taken to rebuild the type cache from a schema scan",
			Buckets: prometheus.DefBuckets,
		},
	)

	TypeCacheRebuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vertexdb_type_cache_rebuilds_total",
			Help: "Total number of type cache rebuilds",
		},
	)
)

func init() {
	prometheus.MustRegister(TransactionsOpenTotal)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(ConflictsTotal)

	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(RowsProduced)
	prometheus.MustRegister(PlanningDuration)

	prometheus.MustRegister(Watermark)
	prometheus.MustRegister(WALAppendDuration)
	prometheus.MustRegister(WALBytesWritten)
	prometheus.MustRegister(KeyspaceSize)
	prometheus.MustRegister(SnapshotsOpenTotal)

	prometheus.MustRegister(TypeCacheRebuildDuration)
	prometheus.MustRegister(TypeCacheRebuildsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
