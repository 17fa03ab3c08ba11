package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	proxyStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mca",
			Subsystem: "proxy",
			Name:      "starts_total",
			Help:      "Number of proxy processes spawned.",
		}, []string{"worker"},
	)
	proxyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mca",
			Subsystem: "proxy",
			Name:      "failures_total",
			Help:      "Number of proxies that never became ready, by reason.",
		}, []string{"worker", "reason"},
	)
	proxyStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mca",
			Subsystem: "proxy",
			Name:      "stops_total",
			Help:      "Number of proxy stops (graceful or kill).",
		}, []string{"worker", "mode"},
	)
	proxyReadyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mca",
			Subsystem: "proxy",
			Name:      "ready_duration_seconds",
			Help:      "Time from spawn until the proxy port accepted connections.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"worker"},
	)
	proxiesReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mca",
			Subsystem: "proxy",
			Name:      "ready",
			Help:      "Current number of ready proxies.",
		},
	)

	workerOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mca",
			Subsystem: "worker",
			Name:      "outcomes_total",
			Help:      "Worker call outcomes by status.",
		}, []string{"worker", "status"},
	)
	workerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mca",
			Subsystem: "worker",
			Name:      "call_duration_seconds",
			Help:      "Wall time of a worker call including timeouts.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 500},
		}, []string{"worker", "status"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{proxyStarts, proxyFailures, proxyStops, proxyReadyDuration, proxiesReady, workerOutcomes, workerCallDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncProxyStart(worker string) {
	if regOK.Load() {
		proxyStarts.WithLabelValues(worker).Inc()
	}
}

func IncProxyFailure(worker, reason string) {
	if regOK.Load() {
		proxyFailures.WithLabelValues(worker, reason).Inc()
	}
}

func IncProxyStop(worker, mode string) {
	if regOK.Load() {
		proxyStops.WithLabelValues(worker, mode).Inc()
	}
}

func ObserveProxyReady(worker string, seconds float64) {
	if regOK.Load() {
		proxyReadyDuration.WithLabelValues(worker).Observe(seconds)
	}
}

func SetProxiesReady(n int) {
	if regOK.Load() {
		proxiesReady.Set(float64(n))
	}
}

func ObserveOutcome(worker, status string, seconds float64) {
	if regOK.Load() {
		workerOutcomes.WithLabelValues(worker, status).Inc()
		workerCallDuration.WithLabelValues(worker, status).Observe(seconds)
	}
}
