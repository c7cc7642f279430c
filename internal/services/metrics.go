package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// authEvents counts authentication attempts by event and outcome.
var authEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Authentication events by type and outcome.",
	},
	[]string{"event", "outcome"},
)

func init() {
	prometheus.MustRegister(authEvents)
}

func recordAuth(event string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	authEvents.WithLabelValues(event, outcome).Inc()
}
