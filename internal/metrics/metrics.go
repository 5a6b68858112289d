package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kaygw_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kaygw_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kaygw_token_refresh_total",
			Help: "Provider access-token refresh exchanges by service and result",
		},
		[]string{"service", "result"},
	)

	TokenCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kaygw_token_cache_total",
			Help: "Credential bundle cache lookups by result",
		},
		[]string{"result"},
	)

	OAuthStatesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kaygw_oauth_state_swept_total",
			Help: "Expired OAuth state rows removed by the background sweep",
		},
	)

	SessionOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kaygw_session_operations_total",
			Help: "CLI session operations by operation and result",
		},
		[]string{"op", "result"},
	)

	ClientCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kaygw_client_cache_evictions_total",
			Help: "Provider clients closed on cache eviction",
		},
	)
)

// Result returns the label value for an operation outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
