package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages.
const (
	StageClassification = "classification"
	StageEnrichment     = "enrichment"
	StageSubmission     = "submission"
)

// Outcomes of one processed message or task.
const (
	OutcomeAcknowledged = "acknowledged"
	OutcomePoisoned     = "poisoned"
	OutcomeFailed       = "failed"
	OutcomeSucceeded    = "succeeded"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight *prometheus.GaugeVec
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics() *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idp",
			Subsystem: "worker",
			Name:      "messages_processed_total",
			Help:      "Total processed messages by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idp",
			Subsystem: "worker",
			Name:      "message_process_duration_seconds",
			Help:      "Message processing duration in seconds by stage and outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"stage", "outcome"},
	)
	processInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "idp",
			Subsystem: "worker",
			Name:      "messages_in_flight",
			Help:      "Number of in-flight messages by stage.",
		},
		[]string{"stage"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idp",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between a message being sent and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Start(stage string) {
	if m == nil {
		return
	}
	m.processInFlight.WithLabelValues(stage).Inc()
}

func (m *WorkerMetrics) Finish(stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.processInFlight.WithLabelValues(stage).Dec()
	m.processTotal.WithLabelValues(stage, outcome).Inc()
	m.processDuration.WithLabelValues(stage, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(stage string, lag time.Duration) {
	if m == nil || lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(stage).Observe(lag.Seconds())
}
