package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of the monitor
type Metrics struct {
	Outcomes       *prometheus.CounterVec
	Rounds         prometheus.Counter
	Dropped        prometheus.Counter
	ToolErrors     prometheus.Counter
	ActivePolicies prometheus.Gauge
}

// NewMetrics creates a new set of unregistered metrics
func NewMetrics() *Metrics {
	return &Metrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dscpd_policy_outcomes_total",
			Help: "Total number of policy outcomes recorded, by action and status",
		}, []string{"action", "status"}),

		Rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dscpd_rounds_acknowledged_total",
			Help: "Total number of negotiation rounds acknowledged to the peer",
		}),

		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dscpd_policy_items_dropped_total",
			Help: "Total number of policy items dropped because their round was full",
		}),

		ToolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dscpd_packet_filter_errors_total",
			Help: "Total number of packet filter operations that failed",
		}),

		ActivePolicies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dscpd_active_policies",
			Help: "Number of policies in the policy table",
		}),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Outcomes.Describe(ch)
	m.Rounds.Describe(ch)
	m.Dropped.Describe(ch)
	m.ToolErrors.Describe(ch)
	m.ActivePolicies.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Outcomes.Collect(ch)
	m.Rounds.Collect(ch)
	m.Dropped.Collect(ch)
	m.ToolErrors.Collect(ch)
	m.ActivePolicies.Collect(ch)
}
