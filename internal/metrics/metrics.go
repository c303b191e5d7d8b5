package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestsTotal counts backend calls by outcome class (2xx, 4xx, 5xx, network).
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dortmed_client_requests_total",
			Help: "Total backend requests issued by the session client",
		},
		[]string{"outcome"},
	)

	// RefreshTotal counts refresh network calls by result.
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dortmed_client_refresh_total",
			Help: "Total credential refresh attempts",
		},
		[]string{"result"},
	)

	// TeardownTotal counts session teardowns by reason.
	TeardownTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dortmed_client_teardown_total",
			Help: "Total session teardowns",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RefreshTotal)
	prometheus.MustRegister(TeardownTotal)
}

// OutcomeLabel maps a status code to the outcome label. Zero means no response.
func OutcomeLabel(status int) string {
	switch {
	case status == 0:
		return "network"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
