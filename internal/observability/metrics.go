package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	redactionsTotal    *prometheus.CounterVec
	filterDuration     prometheus.Histogram
	recognizerFailures *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	cacheLookupsTotal  *prometheus.CounterVec
	batchRecordsTotal  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		redactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "piifilter_redactions_total", Help: "Total placeholders written, by category"},
			[]string{"category"},
		),
		filterDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "piifilter_filter_duration_seconds",
				Help:    "Time spent in one filter pass",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 2.5},
			},
		),
		recognizerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "piifilter_recognizer_failures_total", Help: "Name recognizer failures, by reason"},
			[]string{"reason"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "piifilter_http_requests_total", Help: "Total HTTP requests"},
			[]string{"route", "code"},
		),
		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "piifilter_cache_lookups_total", Help: "Result cache lookups, by result"},
			[]string{"result"},
		),
		batchRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "piifilter_batch_records_total", Help: "Batch records processed, by outcome"},
			[]string{"outcome"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.redactionsTotal,
		m.filterDuration,
		m.recognizerFailures,
		m.httpRequestsTotal,
		m.cacheLookupsTotal,
		m.batchRecordsTotal,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveFilter records one filter pass
func (m *Metrics) ObserveFilter(counts map[string]int, d time.Duration) {
	if m == nil {
		return
	}
	for category, n := range counts {
		if n > 0 {
			m.redactionsTotal.WithLabelValues(category).Add(float64(n))
		}
	}
	m.filterDuration.Observe(d.Seconds())
}

func (m *Metrics) RecognizerFailure(reason string) {
	if m == nil {
		return
	}
	m.recognizerFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) BatchRecord(outcome string) {
	if m == nil {
		return
	}
	m.batchRecordsTotal.WithLabelValues(outcome).Inc()
}
