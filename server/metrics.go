package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are registered on their own registry so several servers can run
// in one process (tests).
type Metrics struct {
	registry       *prometheus.Registry
	keyPresses     *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadDuration prometheus.Histogram
	fetchFailures  prometheus.Counter
	wsClients      prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		keyPresses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxpro_key_presses_total",
				Help: "Key presses by outcome",
			},
			[]string{"outcome"},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxpro_uploads_total",
				Help: "Uploads by result",
			},
			[]string{"result"},
		),
		uploadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voxpro_upload_duration_seconds",
				Help:    "Time spent storing an upload",
				Buckets: prometheus.DefBuckets,
			},
		),
		fetchFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "voxpro_assignment_fetch_failures_total",
				Help: "Failed assignment fetches by console sessions",
			},
		),
		wsClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "voxpro_websocket_clients",
				Help: "Connected websocket clients",
			},
		),
	}
	m.registry.MustRegister(
		m.keyPresses, m.uploads, m.uploadDuration, m.fetchFailures, m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
