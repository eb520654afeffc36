package core

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/printomat/printomat/internal/db"
)

// Metrics collects broker counters. A nil *Metrics is valid and records
// nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry         *prometheus.Registry
	submissionsTotal *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
	printerConnected prometheus.Gauge
}

func NewMetrics(jobs *db.JobStore) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "printomat_submissions_total",
			Help: "Total submissions by admission outcome.",
		}, []string{"outcome"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "printomat_deliveries_total",
			Help: "Total delivery attempts by result.",
		}, []string{"result"}),
		printerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "printomat_printer_connected",
			Help: "Whether a printer session is currently active.",
		}),
	}

	queueDepth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "printomat_queue_depth",
		Help: "Jobs currently waiting for delivery.",
	}, func() float64 {
		stats, err := jobs.Stats(context.Background())
		if err != nil {
			return 0
		}
		return float64(stats.Queued)
	})

	registry.MustRegister(
		m.submissionsTotal,
		m.deliveriesTotal,
		m.printerConnected,
		queueDepth,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPrinterConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.printerConnected.Set(1)
	} else {
		m.printerConnected.Set(0)
	}
}
