package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "doctrack"

type moduleMetrics struct {
	operationsStarted  prometheus.Counter
	operationsFinished *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	operationsActive   prometheus.Gauge
	callbackPanics     prometheus.Counter

	historyWrites  *prometheus.CounterVec
	streamClients  prometheus.Gauge
	streamDropped  prometheus.Counter
	sweepsTotal    prometheus.Counter
	sweptOperation prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			operationsStarted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "operations_started_total",
					Help:      "Total operations started.",
				},
			),
			operationsFinished: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "operations_finished_total",
					Help:      "Total operations finished by terminal status.",
				},
				[]string{"status"},
			),
			operationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "operation_duration_seconds",
					Help:      "Operation duration in seconds by terminal status.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"status"},
			),
			operationsActive: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "operations_active",
					Help:      "Running operations in the most recently updated registry.",
				},
			),
			callbackPanics: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "callback_panics_total",
					Help:      "Total update callbacks that panicked.",
				},
			),
			historyWrites: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "history_writes_total",
					Help:      "Total history inserts by result.",
				},
				[]string{"status"},
			),
			streamClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "stream_clients",
					Help:      "Connected progress stream clients.",
				},
			),
			streamDropped: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "stream_dropped_messages_total",
					Help:      "Progress messages dropped for slow stream clients.",
				},
			),
			sweepsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "sweeps_total",
					Help:      "Total scheduled clear-completed sweeps.",
				},
			),
			sweptOperation: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "swept_operations_total",
					Help:      "Total finished operations removed by sweeps.",
				},
			),
		}

		prometheus.MustRegister(
			m.operationsStarted,
			m.operationsFinished,
			m.operationDuration,
			m.operationsActive,
			m.callbackPanics,
			m.historyWrites,
			m.streamClients,
			m.streamDropped,
			m.sweepsTotal,
			m.sweptOperation,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordOperationStart() {
	getMetrics().operationsStarted.Inc()
}

func RecordOperationFinish(status string, duration time.Duration) {
	m := getMetrics()
	m.operationsFinished.WithLabelValues(status).Inc()
	m.operationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func SetActiveOperations(count int) {
	getMetrics().operationsActive.Set(float64(count))
}

func RecordCallbackPanic() {
	getMetrics().callbackPanics.Inc()
}

func RecordHistoryWrite(success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().historyWrites.WithLabelValues(status).Inc()
}

func SetStreamClients(count int) {
	getMetrics().streamClients.Set(float64(count))
}

func RecordStreamDrop() {
	getMetrics().streamDropped.Inc()
}

func RecordSweep(removed int) {
	m := getMetrics()
	m.sweepsTotal.Inc()
	m.sweptOperation.Add(float64(removed))
}
