package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the fetcher collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	records     *prometheus.CounterVec
	pages       *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conflictwatch",
			Name:      "requests_total",
			Help:      "Upstream API requests by source and HTTP status (0 for network errors)",
		}, []string{"source", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conflictwatch",
			Name:      "records_total",
			Help:      "Records received from upstream APIs",
		}, []string{"source"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conflictwatch",
			Name:      "pages_total",
			Help:      "Pages requested from upstream APIs",
		}, []string{"source"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conflictwatch",
			Name:      "run_duration_seconds",
			Help:      "Duration of fetcher runs",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		}, []string{"source", "result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "conflictwatch",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful run",
		}, []string{"source"}),
	}
	reg.MustRegister(m.requests, m.records, m.pages, m.runDuration, m.lastSuccess)
	return m
}

// ObserveRequest counts one upstream request. status 0 means no response.
func (m *Metrics) ObserveRequest(source string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(source, strconv.Itoa(status)).Inc()
}

// ObservePage counts one page and the records it carried.
func (m *Metrics) ObservePage(source string, records int) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(source).Inc()
	m.records.WithLabelValues(source).Add(float64(records))
}

// ObserveRun records the outcome of a fetcher run.
func (m *Metrics) ObserveRun(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runDuration.WithLabelValues(source, result).Observe(d.Seconds())
	if err == nil {
		m.lastSuccess.WithLabelValues(source).SetToCurrentTime()
	}
}
