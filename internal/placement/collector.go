package placement

import (
	"github.com/prometheus/client_golang/prometheus"
)

const MetricPrefix = "flotilla_placement_"

var hostsDesc = prometheus.NewDesc(
	MetricPrefix+"hosts",
	"Number of hosts with placement history",
	nil,
	nil,
)

var liveInstancesDesc = prometheus.NewDesc(
	MetricPrefix+"live_instances",
	"Number of live instances of a role across all hosts",
	[]string{"role"},
	nil,
)

var idleEntriesDesc = prometheus.NewDesc(
	MetricPrefix+"idle_entries",
	"Number of hosts with history for a role but nothing running, starting or requested",
	[]string{"role"},
	nil,
)

var endedInstancesDesc = prometheus.NewDesc(
	MetricPrefix+"ended_instances",
	"Number of instances of a role that have ended, by outcome, across all hosts with history",
	[]string{"role", "outcome"},
	nil,
)

// Collector exposes a History as prometheus metrics. roleNames gives the label for each role index.
type Collector struct {
	history   *History
	roleNames []string
}

func NewCollector(history *History, roleNames []string) *Collector {
	return &Collector{
		history:   history,
		roleNames: roleNames,
	}
}

func (c *Collector) Describe(desc chan<- *prometheus.Desc) {
	desc <- hostsDesc
	desc <- liveInstancesDesc
	desc <- idleEntriesDesc
	desc <- endedInstancesDesc
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	nodes := c.history.Nodes()
	live := make([]int, c.history.RoleCount())
	idle := make([]int, c.history.RoleCount())
	ended := make([]EntryStatus, c.history.RoleCount())
	for _, node := range nodes {
		for role, status := range node.Statuses() {
			if status == nil {
				continue
			}
			active := status.Live - status.Releasing
			live[role] += active
			if active == 0 && status.Requested == 0 && status.Starting == 0 {
				idle[role]++
			}
			ended[role].Completed += status.Completed
			ended[role].Failed += status.Failed
			ended[role].StartFailed += status.StartFailed
		}
	}

	metrics <- prometheus.MustNewConstMetric(hostsDesc, prometheus.GaugeValue, float64(len(nodes)))
	for role := range live {
		name := c.roleName(role)
		metrics <- prometheus.MustNewConstMetric(liveInstancesDesc, prometheus.GaugeValue, float64(live[role]), name)
		metrics <- prometheus.MustNewConstMetric(idleEntriesDesc, prometheus.GaugeValue, float64(idle[role]), name)
		metrics <- prometheus.MustNewConstMetric(endedInstancesDesc, prometheus.GaugeValue, float64(ended[role].Completed), name, "completed")
		metrics <- prometheus.MustNewConstMetric(endedInstancesDesc, prometheus.GaugeValue, float64(ended[role].Failed), name, "failed")
		metrics <- prometheus.MustNewConstMetric(endedInstancesDesc, prometheus.GaugeValue, float64(ended[role].StartFailed), name, "start_failed")
	}
}

func (c *Collector) roleName(role int) string {
	if role < len(c.roleNames) {
		return c.roleNames[role]
	}
	return "unknown"
}
