// Package metrics declares the Prometheus collectors cmd/ntserver
// exposes on /metrics, grounded on the teacher's own package-level
// prometheus.New*/MustRegister pattern (ws/metrics.go), narrowed to
// NetworkTables' own connection/topic/message counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nt_connections_total",
		Help: "Total number of client connections accepted",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nt_connections_active",
		Help: "Current number of connected clients",
	})

	ConnectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nt_connections_rejected_total",
		Help: "Total connection attempts rejected, by reason",
	}, []string{"reason"})

	TopicsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nt_topics_active",
		Help: "Current number of published/retained topics",
	})

	ValuesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nt_values_received_total",
		Help: "Total value frames received from clients",
	})

	ValuesBroadcast = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nt_values_broadcast_total",
		Help: "Total value frames sent to subscribers",
	})

	CPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nt_host_cpu_percent",
		Help: "Most recent host CPU utilization sample",
	})
)

func init() {
	prometheus.MustRegister(ConnectionsTotal)
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(ConnectionsRejected)
	prometheus.MustRegister(TopicsActive)
	prometheus.MustRegister(ValuesReceived)
	prometheus.MustRegister(ValuesBroadcast)
	prometheus.MustRegister(CPUPercent)
}
