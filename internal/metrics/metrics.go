// Package metrics holds the process-wide Prometheus collectors. They are
// registered on the default registry and exposed by the HTTP gateway at
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsTotal counts accepted TCP protocol connections.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsmessenger_tcp_connections_total",
		Help: "Accepted TCP protocol connections.",
	})

	// RequestsTotal counts handled protocol requests by command and outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsmessenger_requests_total",
		Help: "Handled protocol requests.",
	}, []string{"command", "status"})

	// ActiveSessions tracks the number of live authenticated sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dsmessenger_active_sessions",
		Help: "Live authenticated sessions.",
	})

	// StoreWriteFailures counts failed mailbox store flushes.
	StoreWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsmessenger_store_write_failures_total",
		Help: "Failed mailbox store flushes.",
	})
)
