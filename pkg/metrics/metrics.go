/*
Package metrics exposes Prometheus collectors for the deltadb engine:
repository insert/fetch activity, blob repository size, ISAM block splits
and the delta mirroring client's connection state.
*/
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Repository metrics
	RepositoryObjectsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deltadb_repository_objects_total",
			Help: "Current population of a repository",
		},
		[]string{"repository", "class"},
	)

	RepositoryInsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltadb_repository_inserts_total",
			Help: "Total number of successful inserts by repository",
		},
		[]string{"repository"},
	)

	RepositoryDuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltadb_repository_duplicates_total",
			Help: "Total number of inserts rejected by a unique-key index",
		},
		[]string{"repository"},
	)

	RepositoryFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltadb_repository_fetches_total",
			Help: "Total number of fetch-by-id operations by repository",
		},
		[]string{"repository"},
	)

	RepositoryInsertDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deltadb_repository_insert_duration_seconds",
			Help:    "Time taken to insert one object, including delta flush",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"repository"},
	)

	// Blob repository metrics
	BlobRepositoryBlobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deltadb_blobrepo_blobs_total",
			Help: "Number of blobs held by a blob repository",
		},
		[]string{"repository"},
	)

	BlobRepositoryBytesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deltadb_blobrepo_bytes_total",
			Help: "Total bytes held by a blob repository's data file",
		},
		[]string{"repository"},
	)

	// ISAM metrics
	ISAMBlockSplitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltadb_isam_block_splits_total",
			Help: "Total number of block spills performed by an ISAM file",
		},
		[]string{"file"},
	)

	// Delta mirroring client metrics
	DeltaClientConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deltadb_delta_client_connected",
			Help: "Whether the delta client currently holds a live connection to the mirror daemon (1) or not (0)",
		},
	)

	DeltaClientSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltadb_delta_client_sent_total",
			Help: "Total number of commands sent to the mirror daemon by command name",
		},
		[]string{"command"},
	)

	DeltaClientNacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltadb_delta_client_nacks_total",
			Help: "Total number of NACKs received from the mirror daemon by command name",
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(
		RepositoryObjectsTotal,
		RepositoryInsertsTotal,
		RepositoryDuplicatesTotal,
		RepositoryFetchesTotal,
		RepositoryInsertDuration,
		BlobRepositoryBlobsTotal,
		BlobRepositoryBytesTotal,
		ISAMBlockSplitsTotal,
		DeltaClientConnected,
		DeltaClientSentTotal,
		DeltaClientNacksTotal,
	)
}

// Handler returns the Prometheus HTTP handler for a metrics endpoint.
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

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
