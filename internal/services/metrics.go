package services

import "github.com/prometheus/client_golang/prometheus"

var (
	responsesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forms_responses_submitted_total",
		Help: "Responses accepted and stored.",
	})

	responsesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forms_response_validation_failures_total",
		Help: "Submissions rejected by response validation.",
	})

	orderRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forms_order_version_conflicts_total",
		Help: "Field order mutations retried after losing the version check.",
	})
)

func init() {
	prometheus.MustRegister(responsesSubmitted, responsesRejected, orderRetries)
}
