//go:build linux

package reactor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reactor metrics, registered on the default registry; the binary exposes
// them via promhttp when a metrics address is configured.
var (
	connectionsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "filament",
			Subsystem: "reactor",
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted client connections",
		},
	)

	connectionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filament",
			Subsystem: "reactor",
			Name:      "connections_closed_total",
			Help:      "Total number of closed client connections",
		},
		[]string{"reason"},
	)

	requestsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filament",
			Subsystem: "reactor",
			Name:      "requests_total",
			Help:      "Total number of requests answered",
		},
		[]string{"status"},
	)

	parseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "filament",
			Subsystem: "reactor",
			Name:      "parse_errors_total",
			Help:      "Total number of requests rejected by the parser",
		},
	)

	idleEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "filament",
			Subsystem: "reactor",
			Name:      "idle_evictions_total",
			Help:      "Total number of connections evicted by the idle timer",
		},
	)
)

// Close reasons for the connections_closed_total label.
const (
	closeReasonEOF       = "eof"
	closeReasonReadError = "read_error"
	closeReasonParse     = "parse_error"
	closeReasonWrite     = "write_error"
	closeReasonDone      = "done"
	closeReasonEvicted   = "idle_timeout"
	closeReasonEpoll     = "epoll_error"
	closeReasonShutdown  = "shutdown"
)
