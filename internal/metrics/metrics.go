// Package metrics exposes Prometheus collectors for the uploader.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordsFetchedTotal    prometheus.Counter
	recordsPersistedTotal  prometheus.Counter
	duplicatesSkippedTotal prometheus.Counter
	recordFailuresTotal    prometheus.Counter
	putRetriesTotal        prometheus.Counter
	runsTotal              *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times; every observer calls it, so explicit initialization is optional.
func Init() {
	once.Do(func() {
		recordsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "uploader_records_fetched_total",
			Help: "Total number of records pulled from the source.",
		})

		recordsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "uploader_records_persisted_total",
			Help: "Total number of records durably written to the backend.",
		})

		duplicatesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "uploader_duplicates_skipped_total",
			Help: "Total number of records skipped because their identity was already persisted.",
		})

		recordFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "uploader_record_failures_total",
			Help: "Total number of per-record permanent write failures.",
		})

		putRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "uploader_put_retries_total",
			Help: "Total number of write retries after transient connection failures.",
		})

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploader_runs_total",
				Help: "Total number of pipeline runs, labeled by final state.",
			},
			[]string{"state"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetched increments the fetched records counter.
func ObserveFetched() {
	Init()
	recordsFetchedTotal.Inc()
}

// ObservePersisted increments the persisted records counter.
func ObservePersisted() {
	Init()
	recordsPersistedTotal.Inc()
}

// ObserveDuplicate increments the skipped duplicates counter.
func ObserveDuplicate() {
	Init()
	duplicatesSkippedTotal.Inc()
}

// ObserveRecordFailure increments the per-record failure counter.
func ObserveRecordFailure() {
	Init()
	recordFailuresTotal.Inc()
}

// ObserveRetry increments the write retry counter.
func ObserveRetry() {
	Init()
	putRetriesTotal.Inc()
}

// ObserveRun increments the run counter for the given final state.
func ObserveRun(state string) {
	Init()
	runsTotal.WithLabelValues(state).Inc()
}
