// Package observability holds the Prometheus metrics for the reconciliation
// pipeline and the listener that exposes them.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_recon"

// Metrics holds the Prometheus counters and histograms for the pipeline.
type Metrics struct {
	// Remote dataset API metrics.
	Requests       *prometheus.CounterVec   // labels: dataset, stage={count,page}
	RequestErrors  *prometheus.CounterVec   // labels: dataset, stage={count,page}
	RecordsFetched *prometheus.CounterVec   // labels: dataset
	FetchDuration  *prometheus.HistogramVec // labels: dataset
	ShortPages     *prometheus.CounterVec   // labels: dataset

	// Reconciliation metrics.
	JoinDropped       prometheus.Counter
	OrphanGroups      prometheus.Counter
	UndeclaredGroups  prometheus.Counter
	RecordsReconciled prometheus.Counter
	RecordsPersisted  prometheus.Counter

	// Run metrics.
	Runs        *prometheus.CounterVec // labels: status={complete,failed}
	RunDuration prometheus.Histogram
}

// NewMetrics creates all pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Requests issued to the remote dataset API by dataset and stage.",
		}, []string{"dataset", "stage"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_request_errors_total",
			Help:      "Failed remote dataset API requests by dataset and stage.",
		}, []string{"dataset", "stage"}),
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Records retrieved per dataset.",
		}, []string{"dataset"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_fetch_duration_seconds",
			Help:      "Wall time to fetch every page of a dataset query.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"dataset"}),
		ShortPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_pages_total",
			Help:      "Pages that returned fewer rows than the count request implied.",
		}, []string{"dataset"}),
		JoinDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_dropped_line_items_total",
			Help:      "Line items dropped because their ZIP has no crosswalk entry.",
		}),
		OrphanGroups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_line_item_groups_total",
			Help:      "County line-item groups whose disaster has no declaration.",
		}),
		UndeclaredGroups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undeclared_line_item_groups_total",
			Help:      "County line-item groups outside the counties their disaster declared.",
		}),
		RecordsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_reconciled_total",
			Help:      "County/disaster records produced by the merge.",
		}),
		RecordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_persisted_total",
			Help:      "Reconciled records written to the sink.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch, reconcile, and persist cycle.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
	}

	reg.MustRegister(
		m.Requests,
		m.RequestErrors,
		m.RecordsFetched,
		m.FetchDuration,
		m.ShortPages,
		m.JoinDropped,
		m.OrphanGroups,
		m.UndeclaredGroups,
		m.RecordsReconciled,
		m.RecordsPersisted,
		m.Runs,
		m.RunDuration,
	)

	return m
}

// Discard returns Metrics backed by a private registry nothing scrapes.
// Components use it when constructed without metrics.
func Discard() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
