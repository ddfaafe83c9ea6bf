// pkg/metrics/metrics.go
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Singleton metrics registry
	registry    *prometheus.Registry
	metricsOnce sync.Once

	// Signaling metrics
	sipExchanges        *prometheus.CounterVec
	sipExchangeDuration *prometheus.HistogramVec

	// Transport metrics
	transportErrors *prometheus.CounterVec

	// Registration metrics
	registrationState prometheus.Gauge

	// Call metrics
	activeCalls  prometheus.Gauge
	callOutcomes *prometheus.CounterVec
)

// InitMetrics initializes the Prometheus metrics
func InitMetrics() {
	metricsOnce.Do(func() {
		registry = prometheus.NewRegistry()

		sipExchanges = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sespcl_sip_exchanges_total",
				Help: "Number of SIP request/response exchanges by method and status class",
			},
			[]string{"method", "status_class"},
		)
		registry.MustRegister(sipExchanges)

		sipExchangeDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sespcl_sip_exchange_seconds",
				Help:    "Duration of SIP exchanges",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
			},
			[]string{"method"},
		)
		registry.MustRegister(sipExchangeDuration)

		transportErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sespcl_transport_errors_total",
				Help: "Number of transport-level failures by kind",
			},
			[]string{"kind"},
		)
		registry.MustRegister(transportErrors)

		registrationState = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sespcl_registered",
				Help: "Registration state (1 if registered, 0 if not)",
			},
		)
		registry.MustRegister(registrationState)

		activeCalls = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sespcl_active_calls",
				Help: "Number of call sessions currently tracked",
			},
		)
		registry.MustRegister(activeCalls)

		callOutcomes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sespcl_call_outcomes_total",
				Help: "Number of placed calls by signaling outcome",
			},
			[]string{"outcome"},
		)
		registry.MustRegister(callOutcomes)
	})
}

// StartMetricsServer starts an HTTP server to expose Prometheus metrics
func StartMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Health endpoint that just returns 200 OK
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("Starting metrics server", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	return server
}

// Shutdown stops the metrics server
func Shutdown(ctx context.Context, server *http.Server, logger *zap.Logger) {
	logger.Info("Shutting down metrics server")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down metrics server", zap.Error(err))
	}
}

// RecordExchange increments the exchange counter for a method/status pair.
func RecordExchange(method string, statusClass string) {
	if sipExchanges != nil {
		sipExchanges.WithLabelValues(method, statusClass).Inc()
	}
}

// ObserveExchangeDuration records the duration of one SIP exchange.
func ObserveExchangeDuration(method string, duration time.Duration) {
	if sipExchangeDuration != nil {
		sipExchangeDuration.WithLabelValues(method).Observe(duration.Seconds())
	}
}

// RecordTransportError increments the transport error counter.
func RecordTransportError(kind string) {
	if transportErrors != nil {
		transportErrors.WithLabelValues(kind).Inc()
	}
}

// SetRegistered updates the registration state gauge.
func SetRegistered(registered bool) {
	if registrationState == nil {
		return
	}
	if registered {
		registrationState.Set(1)
	} else {
		registrationState.Set(0)
	}
}

// SetActiveCalls updates the tracked call gauge.
func SetActiveCalls(count int) {
	if activeCalls != nil {
		activeCalls.Set(float64(count))
	}
}

// RecordCallOutcome increments the call outcome counter.
func RecordCallOutcome(outcome string) {
	if callOutcomes != nil {
		callOutcomes.WithLabelValues(outcome).Inc()
	}
}
