package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealdesk_api_requests_total",
			Help: "API requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealdesk_api_retries_total",
			Help: "Request attempts beyond the first",
		},
	)
)
