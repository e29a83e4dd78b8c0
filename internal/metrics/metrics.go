// Package metrics provides Prometheus collectors and the HTTP handler for
// exporting gateway runtime metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	containersStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockgate_containers_started_total",
			Help: "Total containers created and started by the gateway",
		},
	)
	readinessTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockgate_readiness_timeouts_total",
			Help: "Total run operations that failed the readiness wait",
		},
	)
	proxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockgate_proxy_requests_total",
			Help: "Total proxied requests",
		},
		[]string{"method"},
	)
	proxyUpstreamFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockgate_proxy_upstream_failures_total",
			Help: "Total proxied requests that failed against the upstream",
		},
	)
	proxyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dockgate_proxy_duration_seconds",
			Help:    "Duration of proxied requests",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(
		containersStarted,
		readinessTimeouts,
		proxyRequests,
		proxyUpstreamFailures,
		proxyDuration,
	)
}

// IncContainerStarted counts a successful create-and-start.
func IncContainerStarted() {
	containersStarted.Inc()
}

// IncReadinessTimeout counts a run operation aborted by the readiness gate.
func IncReadinessTimeout() {
	readinessTimeouts.Inc()
}

// ObserveProxyRequest records one proxied request and its duration.
func ObserveProxyRequest(method string, elapsed time.Duration) {
	proxyRequests.WithLabelValues(method).Inc()
	proxyDuration.Observe(elapsed.Seconds())
}

// IncProxyUpstreamFailure counts a forward that failed at the transport level.
func IncProxyUpstreamFailure() {
	proxyUpstreamFailures.Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
