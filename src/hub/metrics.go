package hub

import (
	"github.com/prometheus/client_golang/prometheus"
)

type hubMetrics struct {
	broadcasts      *prometheus.CounterVec
	publishAttempts prometheus.Counter
	publishFailures prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) (*hubMetrics, error) {
	m := &hubMetrics{
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delta_hub_broadcasts_total",
			Help: "Number of messages broadcast, by message type",
		}, []string{"type"}),
		publishAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_hub_dfs_write_attempts_total",
			Help: "Number of attempts to write a delta to the DFS",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_hub_dfs_publish_failures_total",
			Help: "Number of deltas that could not be written to the DFS",
		}),
	}

	if registerer == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.broadcasts, m.publishAttempts, m.publishFailures} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
