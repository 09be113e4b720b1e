package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fit_atlas_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	queryTotal   *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec
	queryResults prometheus.Histogram
	warnings     *prometheus.CounterVec

	collaboratorTotal *prometheus.CounterVec

	catalogueAssets   prometheus.Gauge
	catalogueRejected prometheus.Gauge
	refreshTotal      *prometheus.CounterVec
	refreshLatency    prometheus.Histogram

	exportTotal *prometheus.CounterVec
)

// Init registers the service metrics with the default registry. Calling it
// again is a no-op.
func Init() {
	registerOnce.Do(func() {
		queryTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "queries_total",
				Help: "Total queries by intent and outcome",
			},
			[]string{"intent", "outcome"},
		)
		queryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "query_latency_seconds",
				Help:    "Query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"intent"},
		)
		queryResults = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "query_matches",
				Help:    "Matched assets per answered query",
				Buckets: prometheus.ExponentialBuckets(1, 4, 9),
			},
		)
		warnings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "query_warnings_total",
				Help: "Warnings returned with query results by code",
			},
			[]string{"code"},
		)
		collaboratorTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "collaborator_calls_total",
				Help: "Suggestion source and formatter calls by result",
			},
			[]string{"collaborator", "result"},
		)
		catalogueAssets = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "catalogue_assets",
				Help: "Assets in the live snapshot",
			},
		)
		catalogueRejected = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "catalogue_rejected_rows",
				Help: "Rows rejected by the last snapshot build",
			},
		)
		refreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "catalogue_refresh_total",
				Help: "Catalogue refreshes by result",
			},
			[]string{"result"},
		)
		refreshLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "catalogue_refresh_latency_seconds",
				Help:    "Catalogue load and build latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "exports_total",
				Help: "Result exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			queryTotal,
			queryLatency,
			queryResults,
			warnings,
			collaboratorTotal,
			catalogueAssets,
			catalogueRejected,
			refreshTotal,
			refreshLatency,
			exportTotal,
		)
	})
}

// ObserveQuery records one query. outcome is "answered" or "refused".
func ObserveQuery(intent, outcome string, matches int, duration time.Duration) {
	if intent == "" {
		intent = "unknown"
	}
	if queryTotal != nil {
		queryTotal.WithLabelValues(intent, outcome).Inc()
	}
	if queryLatency != nil {
		queryLatency.WithLabelValues(intent).Observe(duration.Seconds())
	}
	if queryResults != nil && outcome == OutcomeAnswered {
		queryResults.Observe(float64(matches))
	}
}

func IncWarning(code string) {
	if warnings != nil {
		warnings.WithLabelValues(code).Inc()
	}
}

// IncCollaborator counts a call to the suggestion source or the formatter.
func IncCollaborator(name string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if collaboratorTotal != nil {
		collaboratorTotal.WithLabelValues(name, result).Inc()
	}
}

// ObserveRefresh records a catalogue refresh and, on success, the new snapshot size.
func ObserveRefresh(err error, assets, rejected int, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if refreshTotal != nil {
		refreshTotal.WithLabelValues(result).Inc()
	}
	if refreshLatency != nil {
		refreshLatency.Observe(duration.Seconds())
	}
	if err != nil {
		return
	}
	if catalogueAssets != nil {
		catalogueAssets.Set(float64(assets))
	}
	if catalogueRejected != nil {
		catalogueRejected.Set(float64(rejected))
	}
}

func IncExport(format string, err error) {
	if format == "" {
		format = "unknown"
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

const (
	OutcomeAnswered = "answered"
	OutcomeRefused  = "refused"
)
