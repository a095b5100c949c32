package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energymon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "energymon_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Ingest metrics
	ReadingsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energymon_readings_ingested_total",
			Help: "Total number of readings received",
		},
		[]string{"status"}, // status: accepted, rejected, failed
	)

	// Evaluation metrics
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energymon_alerts_created_total",
			Help: "Total number of alerts raised by the evaluator",
		},
		[]string{"kind"},
	)

	WindowEvaluationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energymon_window_evaluation_failures_total",
			Help: "Total number of window evaluations skipped because of an error",
		},
		[]string{"window"}, // window: budget, threshold, daily, weekly, monthly
	)

	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energymon_dispatch_total",
			Help: "Total number of alert deliveries attempted per notifier",
		},
		[]string{"notifier", "result"}, // result: sent, failed, circuit_open
	)

	BreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "energymon_breaker_open",
			Help: "Whether the circuit breaker for a notifier is open (1) or closed (0)",
		},
		[]string{"notifier"},
	)

	// Forecast metrics
	ForecastsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energymon_forecasts_generated_total",
			Help: "Total number of predictions generated",
		},
		[]string{"status"}, // status: saved, failed
	)

	ForecastAnomaliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "energymon_forecast_anomalies_total",
			Help: "Total number of predictions flagged as anomalous",
		},
	)

	// Stream metrics
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "energymon_stream_clients",
			Help: "Number of connected live stream clients",
		},
	)
)
