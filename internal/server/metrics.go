package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aibox_requests_total",
		Help: "API requests by use case.",
	}, []string{"use_case"})

	providerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aibox_provider_errors_total",
		Help: "Provider errors by normalized code.",
	}, []string{"code"})

	streamFragmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aibox_stream_fragments_total",
		Help: "Streamed fragments by type.",
	}, []string{"type"})

	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aibox_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
)
