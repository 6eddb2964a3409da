package fetch

import (
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buddy",
			Name:      "remote_requests_total",
			Help:      "Calls to the remote adoption service by operation and status code.",
		},
		[]string{"op", "code"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buddy",
			Name:      "remote_request_duration_seconds",
			Help:      "Latency of calls to the remote adoption service.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func observe(op string, resp *resty.Response, err error, d time.Duration) {
	code := "error"
	if err == nil && resp != nil {
		code = strconv.Itoa(resp.StatusCode())
	}
	remoteRequestsTotal.WithLabelValues(op, code).Inc()
	remoteRequestDuration.WithLabelValues(op).Observe(d.Seconds())
}
