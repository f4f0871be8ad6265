// Package metrics defines the Prometheus collectors shared by all four
// cmd/ binaries, grounded on
// contract-data-processor/consumer/postgresql/metrics.go.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Registry groups one component's counters/histograms. Each cmd/ binary
// constructs its own Registry with a distinct subsystem name so the
// exported metric names don't collide if multiple components are scraped
// from one Prometheus target list.
type Registry struct {
	BlocksFetched      prometheus.Counter
	BlocksArchived     prometheus.Counter
	ArchivesImported   prometheus.Counter
	TxnsImported       prometheus.Counter
	RoundsApplied      prometheus.Counter
	RoundCommitSeconds prometheus.Histogram
	TransportErrors    prometheus.Counter
	Mismatches         prometheus.Counter
}

// New creates and registers a Registry under the given subsystem
// ("archiver", "loader", "accountant", "validator").
func New(subsystem string) *Registry {
	r := &Registry{
		BlocksFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "algoidx", Subsystem: subsystem, Name: "blocks_fetched_total",
			Help: "Total number of blocks fetched from the node.",
		}),
		BlocksArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "algoidx", Subsystem: subsystem, Name: "blocks_archived_total",
			Help: "Total number of blocks sealed into an archive.",
		}),
		ArchivesImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "algoidx", Subsystem: subsystem, Name: "archives_imported_total",
			Help: "Total number of archives imported into the transaction store.",
		}),
		TxnsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "algoidx", Subsystem: subsystem, Name: "txns_imported_total",
			Help: "Total number of transactions inserted into the transaction store.",
		}),
		RoundsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "algoidx", Subsystem: subsystem, Name: "rounds_applied_total",
			Help: "Total number of rounds committed into the ledger projection.",
		}),
		RoundCommitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "algoidx", Subsystem: subsystem, Name: "round_commit_seconds",
			Help:    "Time to commit one round's consolidated write.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "algoidx", Subsystem: subsystem, Name: "transport_errors_total",
			Help: "Total number of node/HTTP transport errors encountered.",
		}),
		Mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "algoidx", Subsystem: subsystem, Name: "mismatches_total",
			Help: "Total number of validator mismatches recorded.",
		}),
	}
	prometheus.MustRegister(
		r.BlocksFetched, r.BlocksArchived, r.ArchivesImported, r.TxnsImported,
		r.RoundsApplied, r.RoundCommitSeconds, r.TransportErrors, r.Mismatches,
	)
	return r
}

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ServeOps starts the health and metrics HTTP listeners every cmd/ binary
// exposes, per spec.md §6's ops surface. It never returns; callers run it
// in its own goroutine.
func ServeOps(logger *zap.Logger, healthPort, metricsPort int) {
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	go func() {
		addr := fmt.Sprintf(":%d", healthPort)
		if err := http.ListenAndServe(addr, healthMux); err != nil {
			logger.Error("health server failed", zap.Error(err))
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", Handler())
	addr := fmt.Sprintf(":%d", metricsPort)
	if err := http.ListenAndServe(addr, metricsMux); err != nil {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
