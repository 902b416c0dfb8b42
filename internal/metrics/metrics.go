// Package metrics exposes the pipeline's Prometheus instruments. All methods
// are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	updates            *prometheus.CounterVec
	classifications    *prometheus.CounterVec
	fetches            *prometheus.CounterVec
	replies            *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	rateLimited        prometheus.Counter
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		updates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopbot_updates_total",
				Help: "Inbound webhook updates by outcome",
			},
			[]string{"outcome"},
		),
		classifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopbot_classifications_total",
				Help: "Classifier verdicts by kind",
			},
			[]string{"kind"},
		),
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopbot_enrich_fetches_total",
				Help: "Enrichment fetches by kind and result",
			},
			[]string{"kind", "result"},
		),
		replies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopbot_replies_total",
				Help: "Outbound replies by kind and send result",
			},
			[]string{"kind", "result"},
		),
		completionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shopbot_completion_duration_seconds",
				Help:    "Duration of completion API calls in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"result"},
		),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "shopbot_rate_limited_total",
			Help: "Requests that could not get a rate limit token in time",
		}),
	}
}

func (m *Metrics) Update(outcome string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Classification(kind string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) Fetch(kind string, err error) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) Reply(kind string, err error) {
	if m == nil {
		return
	}
	r := "sent"
	if err != nil {
		r = "failed"
	}
	m.replies.WithLabelValues(kind, r).Inc()
}

func (m *Metrics) Completion(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.completionDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Handler serves the registry in Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
