package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace           = "petstoreapp"
	inboundSubsystem    = "inbound"
	httpSubsystem       = "http"
	downstreamSubsystem = "downstream"
	sessionSubsystem    = "session"

	inFlightRequestsMetricName       = "in_flight_requests"
	requestsTotalMetricName          = "requests_total"
	requestDurationSecondsMetricName = "request_duration_seconds"

	downstreamErrorsTotalMetricName       = "errors_total"
	translationFailuresTotalMetricName    = "translation_failures_total"
	degradedResponsesTotalMetricName      = "degraded_responses_total"
	sessionsCreatedTotalMetricName        = "created_total"
	authenticationFailuresTotalMetricName = "authentication_failures_total"
)

var latencyBuckets = []float64{
	0.005, /* 5ms */
	0.025, /* 25ms */
	0.1,   /* 100ms */
	0.5,   /* 500ms */
	1.0,   /* 1s */
	10.0,  /* 10s */
	30.0,  /* 30s */
	60.0,  /* 1m */
	300.0, /* 5m */
}

var (
	InboundRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: inboundSubsystem,
			Name:      requestsTotalMetricName,
			Help:      "A counter for inbound requests by status code and method.",
		},
		[]string{"code", "method"},
	)

	InboundRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: inboundSubsystem,
			Name:      requestDurationSecondsMetricName,
			Help:      "A histogram of latencies for inbound requests.",
			Buckets:   latencyBuckets,
		},
		[]string{"method"},
	)

	InboundRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: inboundSubsystem,
			Name:      inFlightRequestsMetricName,
			Help:      "A gauge of inbound requests currently being served.",
		},
	)

	DownstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: downstreamSubsystem,
			Name:      downstreamErrorsTotalMetricName,
			Help:      "A counter for failed downstream calls by target service and error kind.",
		},
		[]string{"target", "kind"},
	)

	TranslationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: downstreamSubsystem,
			Name:      translationFailuresTotalMetricName,
			Help:      "The number of downstream error responses whose headers or body could not be extracted.",
		},
	)

	DegradedResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: downstreamSubsystem,
			Name:      degradedResponsesTotalMetricName,
			Help:      "The number of responses served with placeholder data after a downstream failure.",
		},
		[]string{"domain"},
	)

	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: sessionSubsystem,
			Name:      sessionsCreatedTotalMetricName,
			Help:      "The number of sessions created.",
		},
	)

	AuthenticationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: sessionSubsystem,
			Name:      authenticationFailuresTotalMetricName,
			Help:      "The number of requests that presented an invalid bearer token.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: httpSubsystem,
			Name:      requestsTotalMetricName,
			Help:      "A counter for outbound http requests.",
		},
		[]string{"code", "method"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: httpSubsystem,
			Name:      requestDurationSecondsMetricName,
			Help:      "A histogram of latencies for outbound http requests.",
			Buckets:   latencyBuckets,
		},
		[]string{"code", "method"},
	)

	httpInFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: httpSubsystem,
			Name:      inFlightRequestsMetricName,
			Help:      "A gauge of outbound requests currently being performed.",
		},
	)
)

// NewRoundTripper instruments outbound requests made through next.
func NewRoundTripper(next http.RoundTripper) promhttp.RoundTripperFunc {
	rt := next

	rt = promhttp.InstrumentRoundTripperCounter(httpRequestsTotal, rt)
	rt = promhttp.InstrumentRoundTripperDuration(httpRequestDurationSeconds, rt)
	return promhttp.InstrumentRoundTripperInFlight(httpInFlightRequests, rt)
}
