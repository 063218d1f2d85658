package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the fire
// query pipeline.
type Metrics struct {
	// Fetch metrics, one observation per attempt.
	FetchAttempts *prometheus.CounterVec   // labels: source, outcome={success,not_found,timeout,transport,quota,credential,malformed,canceled,internal}
	FetchDuration *prometheus.HistogramVec // labels: source

	// Query metrics.
	Queries           *prometheus.CounterVec // labels: outcome={done,no_source,failed}
	QueryDuration     *prometheus.HistogramVec // labels: outcome, as Queries
	SegmentsPerQuery  prometheus.Histogram
	QueriesInFlight   prometheus.Gauge
	RecordsReturned   prometheus.Counter
	DuplicatesDropped prometheus.Counter

	// Availability cache lookups.
	AvailabilityCache *prometheus.CounterVec // labels: result={hit,miss}

	// Kafka publication.
	RecordsPublished prometheus.Counter
	PublishErrors    prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firms",
			Name:      "fetch_attempts_total",
			Help:      "FIRMS segment fetch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "firms",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single FIRMS fetch attempt.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firms",
			Name:      "queries_total",
			Help:      "Fire queries by terminal state.",
		}, []string{"outcome"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "firms",
			Name:      "query_duration_seconds",
			Help:      "End-to-end duration of a fire query by terminal state.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		SegmentsPerQuery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "firms",
			Name:      "segments_per_query",
			Help:      "Number of fetch targets composed per query.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
		}),
		QueriesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "firms",
			Name:      "queries_in_flight",
			Help:      "Fire queries currently being processed.",
		}),
		RecordsReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firms",
			Name:      "records_returned_total",
			Help:      "Deduplicated detections returned to callers.",
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firms",
			Name:      "duplicates_dropped_total",
			Help:      "Detections dropped because their dedup key was already seen.",
		}),
		AvailabilityCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firms",
			Name:      "availability_cache_total",
			Help:      "Availability cache lookups by result.",
		}, []string{"result"}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firms",
			Name:      "kafka_published_total",
			Help:      "Detections published to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firms",
			Name:      "kafka_publish_errors_total",
			Help:      "Failed publication batches.",
		}),
	}

	prometheus.MustRegister(
		m.FetchAttempts,
		m.FetchDuration,
		m.Queries,
		m.QueryDuration,
		m.SegmentsPerQuery,
		m.QueriesInFlight,
		m.RecordsReturned,
		m.DuplicatesDropped,
		m.AvailabilityCache,
		m.RecordsPublished,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FetchAttempts:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "firms", Name: "fetch_attempts_total"}, []string{"source", "outcome"}),
		FetchDuration:     prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "firms", Name: "fetch_duration_seconds"}, []string{"source"}),
		Queries:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "firms", Name: "queries_total"}, []string{"outcome"}),
		QueryDuration:     prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "firms", Name: "query_duration_seconds"}, []string{"outcome"}),
		SegmentsPerQuery:  prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "firms", Name: "segments_per_query"}),
		QueriesInFlight:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "firms", Name: "queries_in_flight"}),
		RecordsReturned:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "firms", Name: "records_returned_total"}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "firms", Name: "duplicates_dropped_total"}),
		AvailabilityCache: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "firms", Name: "availability_cache_total"}, []string{"result"}),
		RecordsPublished:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "firms", Name: "kafka_published_total"}),
		PublishErrors:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "firms", Name: "kafka_publish_errors_total"}),
	}
}
